package domain

import "time"

const (
	// AccessCodePartition is the partition for issued personal codes.
	AccessCodePartition = "access-code"

	// AdminAddress is the bound email of a code that may register any address.
	AdminAddress = "**Admin**@**Admin**.com"

	DefaultCodeLifetime = 14 * 24 * time.Hour
)

// AccessCode authorizes registration for Email (or any address when Email is AdminAddress).
// Only a bcrypt hash of the code is stored.
type AccessCode struct {
	Partition string    `json:"-"`
	RowID     string    `json:"row_key"`
	Email     string    `json:"email"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expire_date"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AttrEmail     = "email"
	AttrCodeHash  = "code_hash"
	AttrCreatedAt = "created_at"
)

var accessCodeFields = FieldTable[AccessCode]{
	stringField(AttrEmail, func(c *AccessCode) *string { return &c.Email }),
	stringField(AttrCodeHash, func(c *AccessCode) *string { return &c.CodeHash }),
	timeField(AttrExpiresAt, func(c *AccessCode) *time.Time { return &c.ExpiresAt }),
	timeField(AttrCreatedAt, func(c *AccessCode) *time.Time { return &c.CreatedAt }),
}

func (c *AccessCode) Identity() (string, string) { return c.Partition, c.RowID }

func (c *AccessCode) ToFields() Fields { return accessCodeFields.Encode(c) }

func (c *AccessCode) FromFields(f Fields) error { return accessCodeFields.Decode(c, f) }

// AccessCodeSchema is the attribute kind table of a stored access code.
func AccessCodeSchema() map[string]Kind { return accessCodeFields.Schema() }

// Expired reports whether the code can no longer be used at now.
func (c *AccessCode) Expired(now time.Time) bool { return !c.ExpiresAt.After(now) }

// AccessCodeRequest is the issuance payload. Code and ExpiresAt are optional.
type AccessCodeRequest struct {
	Email     string     `json:"email" validate:"required,email|eq=**Admin**@**Admin**.com"`
	Code      string     `json:"code,omitempty" validate:"omitempty,min=6,max=72"`
	ExpiresAt *time.Time `json:"expire_date,omitempty"`
}

// IssuedAccessCode is returned to the admin once; the plaintext code is not stored.
type IssuedAccessCode struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expire_date"`
}
