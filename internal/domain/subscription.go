package domain

import "time"

// SubscriptionPartition is the partition every watch record lives under.
const SubscriptionPartition = "appointment-watch"

// Read defaults for attributes missing from a stored record.
const (
	DefaultPartySize = 1
	DefaultMaxDays   = 45
	DefaultQuota     = 10
	DefaultLifetime  = 30 * 24 * time.Hour
)

// Subscription is a persisted watch: notify NotificationAddress when a slot for
// (LocationCode, ProductKey, PartySize) opens within MaxDays.
type Subscription struct {
	Partition           string    `json:"partition_key"`
	RowID               string    `json:"row_key"`
	LocationCode        string    `json:"city_code"`
	ProductKey          string    `json:"product_key"`
	PartySize           int       `json:"person_count"`
	MaxDays             int       `json:"max_days"`
	NotificationAddress string    `json:"notification_mail"`
	ExpiresAt           time.Time `json:"expire_date"`
	Quota               int       `json:"mail_quota"`
	Enabled             bool      `json:"enabled"`
	OwnerID             string    `json:"user_id,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Attribute names of a stored subscription.
const (
	AttrLocationCode        = "city_code"
	AttrProductKey          = "product_key"
	AttrPartySize           = "person_count"
	AttrMaxDays             = "max_days"
	AttrNotificationAddress = "notification_mail"
	AttrExpiresAt           = "expire_date"
	AttrQuota               = "remaining_quota"
	AttrEnabled             = "enabled"
	AttrOwnerID             = "user_id"
	AttrUpdatedAt           = "updated_at"
)

var subscriptionFields = FieldTable[Subscription]{
	stringField(AttrLocationCode, func(s *Subscription) *string { return &s.LocationCode }),
	stringField(AttrProductKey, func(s *Subscription) *string { return &s.ProductKey }),
	intField(AttrPartySize, func(s *Subscription) *int { return &s.PartySize }),
	intField(AttrMaxDays, func(s *Subscription) *int { return &s.MaxDays }),
	stringField(AttrNotificationAddress, func(s *Subscription) *string { return &s.NotificationAddress }),
	timeField(AttrExpiresAt, func(s *Subscription) *time.Time { return &s.ExpiresAt }),
	intField(AttrQuota, func(s *Subscription) *int { return &s.Quota }),
	boolField(AttrEnabled, func(s *Subscription) *bool { return &s.Enabled }),
	stringField(AttrOwnerID, func(s *Subscription) *string { return &s.OwnerID }),
	timeField(AttrUpdatedAt, func(s *Subscription) *time.Time { return &s.UpdatedAt }),
}

// NewStoredSubscription returns a record seeded with the read defaults relative to now.
func NewStoredSubscription(now time.Time) *Subscription {
	return &Subscription{
		Partition: SubscriptionPartition,
		PartySize: DefaultPartySize,
		MaxDays:   DefaultMaxDays,
		Quota:     DefaultQuota,
		Enabled:   true,
		ExpiresAt: now.Add(DefaultLifetime).UTC(),
	}
}

func (s *Subscription) Identity() (string, string) { return s.Partition, s.RowID }

func (s *Subscription) ToFields() Fields { return subscriptionFields.Encode(s) }

func (s *Subscription) FromFields(f Fields) error { return subscriptionFields.Decode(s, f) }

// SubscriptionFieldNames lists every mapped attribute.
func SubscriptionFieldNames() []string { return subscriptionFields.Names() }

// SubscriptionSchema is the attribute kind table of a stored subscription.
func SubscriptionSchema() map[string]Kind { return subscriptionFields.Schema() }

// Expired reports whether the record should be reclaimed at now.
func (s *Subscription) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now) || s.Quota < 1
}

// SubscriptionRequest is the registration payload.
type SubscriptionRequest struct {
	LocationCode        string     `json:"city_code" validate:"required"`
	ProductKey          string     `json:"product_key" validate:"required"`
	PartySize           *int       `json:"person_count,omitempty" validate:"omitempty,min=1,max=10"`
	MaxDays             *int       `json:"max_days,omitempty" validate:"omitempty,min=1,max=200"`
	NotificationAddress string     `json:"notification_mail" validate:"required,email"`
	ExpiresAt           *time.Time `json:"expire_date" validate:"required"`
	Quota               *int       `json:"mail_quota,omitempty" validate:"omitempty,min=1,max=100"`
	Enabled             *bool      `json:"enabled,omitempty"`
}

// Request defaults, distinct from the read defaults above.
const (
	RequestDefaultMaxDays = 30
	RequestDefaultQuota   = 10
)

// ToSubscription applies request defaults. Identity is left to the caller.
func (r SubscriptionRequest) ToSubscription(now time.Time) *Subscription {
	s := &Subscription{
		Partition:           SubscriptionPartition,
		LocationCode:        r.LocationCode,
		ProductKey:          r.ProductKey,
		PartySize:           DefaultPartySize,
		MaxDays:             RequestDefaultMaxDays,
		NotificationAddress: r.NotificationAddress,
		Quota:               RequestDefaultQuota,
		Enabled:             true,
		UpdatedAt:           now.UTC(),
	}
	if r.PartySize != nil {
		s.PartySize = *r.PartySize
	}
	if r.MaxDays != nil {
		s.MaxDays = *r.MaxDays
	}
	if r.Quota != nil {
		s.Quota = *r.Quota
	}
	if r.Enabled != nil {
		s.Enabled = *r.Enabled
	}
	if r.ExpiresAt != nil {
		s.ExpiresAt = r.ExpiresAt.UTC()
	}
	return s
}
