package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrCycleInProgress = errors.New("poll cycle already in progress")
)

// FetchError is a failed availability lookup for one subscription's criteria.
type FetchError struct {
	Location string
	Product  string
	Persons  int
	Status   int // 0 when no response was received
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch slots %s/%s/%d: http %d: %v", e.Location, e.Product, e.Persons, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch slots %s/%s/%d: %v", e.Location, e.Product, e.Persons, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError is an I/O failure against the record store.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DispatchError is a failed hand-off to the message sender.
type DispatchError struct {
	SubscriptionID string
	To             string
	Err            error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s to %s: %v", e.SubscriptionID, e.To, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// ValidationError is malformed or out-of-range input. It matches ErrBadRequest.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrBadRequest }

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
