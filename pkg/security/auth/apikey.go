package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrInvalidKey is returned for a key that matches no configured key.
var ErrInvalidKey = errors.New("invalid API key")

type storedKey struct {
	name string
	hash [sha256.Size]byte
}

// Validator checks presented keys against a fixed set. Keys are compared
// by SHA-256 digest in constant time, and every stored key is compared on
// each call.
type Validator struct {
	keys []storedKey
}

// NewValidator creates a validator. Empty keys and duplicate names are
// rejected.
func NewValidator(keys []APIKey) (*Validator, error) {
	v := &Validator{keys: make([]storedKey, 0, len(keys))}
	names := make(map[string]bool, len(keys))
	for i, k := range keys {
		if k.Key == "" {
			return nil, fmt.Errorf("api key %d (%q) is empty", i, k.Name)
		}
		name := k.Name
		if name == "" {
			name = fmt.Sprintf("key-%d", i)
		}
		if names[name] {
			return nil, fmt.Errorf("duplicate api key name %q", name)
		}
		names[name] = true
		v.keys = append(v.keys, storedKey{name: name, hash: sha256.Sum256([]byte(k.Key))})
	}
	return v, nil
}

// Validate returns the name of the key matching presented.
func (v *Validator) Validate(presented string) (string, error) {
	if presented == "" {
		return "", ErrInvalidKey
	}
	digest := sha256.Sum256([]byte(presented))

	match := -1
	for i := range v.keys {
		if subtle.ConstantTimeCompare(digest[:], v.keys[i].hash[:]) == 1 && match < 0 {
			match = i
		}
	}
	if match < 0 {
		return "", ErrInvalidKey
	}
	return v.keys[match].name, nil
}

// Len returns the number of configured keys.
func (v *Validator) Len() int {
	return len(v.keys)
}
