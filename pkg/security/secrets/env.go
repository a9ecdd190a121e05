package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix is the environment variable prefix of secrets.
const DefaultEnvPrefix = "GATEHOUSE_SECRET_"

// EnvProvider reads secrets from environment variables.
//
// A secret name is upper-cased, hyphens and dots become underscores and the
// prefix is prepended: with the default prefix, "shop-pfx" is read from
// GATEHOUSE_SECRET_SHOP_PFX.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an environment provider. An empty prefix selects
// DefaultEnvPrefix.
func NewEnvProvider(prefix string) *EnvProvider {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvProvider{prefix: prefix}
}

// Lookup returns the variable for name. A variable that is set but empty is
// a valid, empty secret.
func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	envVar := p.VarName(name)
	value, ok := os.LookupEnv(envVar)
	if !ok {
		return "", fmt.Errorf("%w: %s (env var %s)", ErrNotFound, name, envVar)
	}
	return value, nil
}

// Name returns "env".
func (p *EnvProvider) Name() string {
	return "env"
}

// VarName returns the environment variable a secret name is read from.
func (p *EnvProvider) VarName(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}
