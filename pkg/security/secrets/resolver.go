package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"go.uber.org/multierr"
)

var referencePattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver replaces "${secret:name}" references with values from an ordered
// list of providers. The first provider holding a secret wins.
type Resolver struct {
	providers []Provider
	cache     *Cache
	logger    *slog.Logger
}

// NewResolver creates a resolver. Resolved values are cached for cacheTTL;
// zero disables caching.
func NewResolver(providers []Provider, cacheTTL time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		providers: providers,
		cache:     NewCache(cacheTTL, DefaultCacheSize),
		logger:    logger,
	}
}

// HasReference reports whether value contains a secret reference.
func HasReference(value string) bool {
	return referencePattern.MatchString(value)
}

// Lookup returns the named secret from the first provider holding it.
func (r *Resolver) Lookup(ctx context.Context, name string) (string, error) {
	if value, ok := r.cache.Get(name); ok {
		return value, nil
	}

	var errs error
	for _, p := range r.providers {
		value, err := p.Lookup(ctx, name)
		if err == nil {
			r.cache.Set(name, value)
			r.logger.Debug("Secret resolved", "name", redactName(name), "provider", p.Name())
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}

	if errs != nil {
		return "", fmt.Errorf("secret %q: %w", name, errs)
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve returns value with every reference replaced. A value without
// references is returned unchanged. If any reference cannot be resolved
// the error lists them all and the returned string is empty, so a partial
// value is never used as a credential.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !HasReference(value) {
		return value, nil
	}

	var errs error
	out := referencePattern.ReplaceAllStringFunc(value, func(ref string) string {
		name := referencePattern.FindStringSubmatch(ref)[1]
		v, err := r.Lookup(ctx, name)
		if err != nil {
			errs = multierr.Append(errs, err)
			return ""
		}
		return v
	})
	if errs != nil {
		return "", errs
	}
	return out, nil
}

// Refresh drops cached values so the next lookup reads the providers again.
func (r *Resolver) Refresh() {
	r.cache.Clear()
	for _, p := range r.providers {
		if f, ok := p.(interface{ Forget() }); ok {
			f.Forget()
		}
	}
}

// Close releases providers that hold resources.
func (r *Resolver) Close() error {
	var err error
	for _, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

// redactName shortens a secret name for logs.
func redactName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
