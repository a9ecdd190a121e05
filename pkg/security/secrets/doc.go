// Package secrets resolves "${secret:name}" references so credentials such
// as certificate archive passwords and admin API keys need not be written
// into route files or the configuration.
//
// Two providers are available and are consulted in order:
//
//   - EnvProvider reads GATEHOUSE_SECRET_{NAME}, with the name upper-cased
//     and hyphens or dots turned into underscores.
//   - FileProvider reads a file named after the secret from a directory,
//     the layout used by Kubernetes and Docker secret mounts. Files must be
//     private to their owner (0600 or 0400).
//
// Usage:
//
//	files, err := secrets.NewFileProvider("/run/secrets", true, logger)
//	if err != nil {
//		return err
//	}
//	resolver := secrets.NewResolver([]secrets.Provider{
//		secrets.NewEnvProvider(""),
//		files,
//	}, 5*time.Minute, logger)
//	defer resolver.Close()
//
//	password, err := resolver.Resolve(ctx, "${secret:shop-pfx}")
//
// Values without a reference pass through Resolve unchanged, so literal
// passwords keep working.
package secrets
