package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a ULID string. ULIDs sort by creation time, so row keys of
// subscriptions and access codes list oldest first.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
