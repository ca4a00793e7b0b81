package promo

import (
	"context"
)

// Validator defines the interface for promo code validation.
type Validator interface {
	// Validate checks if a promo code is valid.
	// A valid promo code must:
	// - Be between 8 and 10 characters in length
	// - Appear in at least MinMatchCount promo code files
	Validate(ctx context.Context, code string) error

	// Close releases resources held by the validator.
	Close() error
}

// CodeSet represents a set of promo codes for fast lookup.
type CodeSet interface {
	// Contains checks if a promo code exists in the set.
	Contains(code string) bool

	// Size returns the number of codes in the set.
	Size() int
}

// Loader defines the interface for loading promo code files.
type Loader interface {
	// Load reads a gzipped promo code file and returns a CodeSet.
	Load(ctx context.Context, filePath string) (CodeSet, error)
}
