package auth

// APIKey is a named credential accepted by the admin API.
type APIKey struct {
	// Name identifies the key in logs. It is never secret.
	Name string `yaml:"name"`

	// Key is the credential itself.
	Key string `yaml:"key"`
}
