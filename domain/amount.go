package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Amount is an exact decimal used for every price and quantity in the system.
// Arithmetic on it never goes through binary floating point.
type Amount = decimal.Decimal

// Timestamp is a UTC instant with millisecond resolution.
type Timestamp = time.Time

// NewAmount parses a decimal string.
func NewAmount(s string) (Amount, error) {
	return decimal.NewFromString(s)
}

// MustAmount parses a decimal string and panics on malformed input. For
// constants and tests.
func MustAmount(s string) Amount {
	return decimal.RequireFromString(s)
}

// Now returns the current UTC instant.
func Now() Timestamp {
	return time.Now().UTC()
}
