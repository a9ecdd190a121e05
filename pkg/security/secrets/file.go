package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileProvider reads secrets from individual files in a directory, one
// secret per file named after it, as mounted by Kubernetes or Docker
// secrets. Values are trimmed of surrounding whitespace.
//
// Files must not be readable by group or others. When watching, the
// provider forgets cached values whenever the directory changes.
type FileProvider struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewFileProvider creates a provider for dir, which must exist.
func NewFileProvider(dir string, watch bool, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets directory %s is not a directory", dir)
	}

	p := &FileProvider{
		dir:    dir,
		logger: logger,
		values: make(map[string]string),
		done:   make(chan struct{}),
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create secrets watcher: %w", err)
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watch secrets directory: %w", err)
		}
		p.watcher = w
		p.wg.Add(1)
		go p.watchLoop()
	}

	logger.Info("Secrets directory opened", "path", dir, "watch", watch)
	return p, nil
}

// Lookup reads the file named after the secret.
func (p *FileProvider) Lookup(ctx context.Context, name string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}

	p.mu.RLock()
	value, ok := p.values[name]
	p.mu.RUnlock()
	if ok {
		return value, nil
	}

	path := filepath.Join(p.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("stat secret %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %s is not a regular file", name)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions on secret %s: %o (expected 0600 or 0400)", name, info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	value = strings.TrimSpace(string(data))

	p.mu.Lock()
	p.values[name] = value
	p.mu.Unlock()

	return value, nil
}

// Name returns "file".
func (p *FileProvider) Name() string {
	return "file"
}

// Forget drops every cached value.
func (p *FileProvider) Forget() {
	p.mu.Lock()
	p.values = make(map[string]string)
	p.mu.Unlock()
}

// Close stops watching. It is safe to call more than once.
func (p *FileProvider) Close() error {
	if p.watcher == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	default:
		close(p.done)
	}
	err := p.watcher.Close()
	p.wg.Wait()
	return err
}

func (p *FileProvider) watchLoop() {
	defer p.wg.Done()
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			p.logger.Debug("Secret file changed",
				"file", filepath.Base(event.Name),
				"op", event.Op.String(),
			)
			p.Forget()

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("Secrets watcher error", "error", err)

		case <-p.done:
			return
		}
	}
}

// validName rejects names that would leave the secrets directory.
func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid secret name %q", name)
	}
	return nil
}
