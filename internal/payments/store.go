// Package payments is the system of record for accepted payments.
package payments

import (
	"context"
	"errors"
)

// ErrDuplicate is returned by Insert when a payment for the same token and day already exists.
var ErrDuplicate = errors.New("payment already exists for token and day")

// Store persists payments with a uniqueness constraint on (token, day).
type Store interface {
	// Exists reports whether a payment for tokenKey on payDay (yyyy-MM-dd) is stored.
	Exists(ctx context.Context, tokenKey, payDay string) (bool, error)
	// Insert stores rec, or returns ErrDuplicate when (TokenKey, PayDay) is taken. The check and
	// the write are atomic.
	Insert(ctx context.Context, rec Record) error
}
