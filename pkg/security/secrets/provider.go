package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a provider has no value for a secret name.
var ErrNotFound = errors.New("secret not found")

// Provider looks up secret values by name.
type Provider interface {
	// Lookup returns the value of the named secret. It returns an error
	// wrapping ErrNotFound when the provider does not hold the secret.
	Lookup(ctx context.Context, name string) (string, error)

	// Name identifies the provider in logs ("env", "file").
	Name() string
}
