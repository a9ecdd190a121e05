package routes

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"mercator-hq/gatehouse/internal/hostname"
	"mercator-hq/gatehouse/pkg/routing"
	gwtls "mercator-hq/gatehouse/pkg/security/tls"
)

// Default settle delays.
const (
	DefaultConfigSettleDelay      = 100 * time.Millisecond
	DefaultCertificateSettleDelay = 500 * time.Millisecond
)

// maxParallelReloads bounds concurrent certificate loads after a
// certificate directory changes.
const maxParallelReloads = 4

// Options configures a Manager.
type Options struct {
	// Dir is the routes directory. It is created if missing.
	Dir string

	// ConfigSettleDelay is the quiet period before a route file is re-read.
	ConfigSettleDelay time.Duration

	// CertificateSettleDelay is the quiet period before certificates in a
	// changed directory are re-resolved.
	CertificateSettleDelay time.Duration

	// Routes and Certificates are the live stores fed by the manager.
	Routes       *routing.Table
	Certificates *gwtls.Store

	// Loader resolves certificates. Defaults to gwtls.NewLoader(Logger).
	Loader *gwtls.Loader

	// Secrets resolves "${secret:name}" references in certificate
	// passwords. Without it passwords are used as written.
	Secrets SecretResolver

	Logger   *slog.Logger
	Recorder Recorder
}

// SecretResolver expands secret references. *secrets.Resolver satisfies it.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// Manager owns the set of route entries and applies them to the live route
// table and certificate store.
type Manager struct {
	dir          string
	routes       *routing.Table
	certs        *gwtls.Store
	loader       *gwtls.Loader
	secrets      SecretResolver
	logger       *slog.Logger
	recorder     Recorder
	configEvents *Debouncer
	certEvents   *Debouncer

	// entryLocks serializes writers of one entry id so the stores are
	// applied in the order the entries were swapped. certLocks serializes
	// certificate changes for one host.
	entryLocks keyedMutex
	certLocks  keyedMutex

	entries sync.Map // id -> *Entry
	files   sync.Map // file base name -> id
	origins sync.Map // id -> file base name the entry was last read from
	written sync.Map // file path -> [sha256.Size]byte of the manager's last write

	// watchMu guards the watcher registry. It is never held across event
	// handling.
	watchMu       sync.Mutex
	ctx           context.Context
	configWatcher *dirWatcher
	certWatchers  map[string]*dirWatcher
	closed        bool
}

// NewManager creates a manager. Call Start to load and watch.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("routes directory is required")
	}
	if opts.Routes == nil || opts.Certificates == nil {
		return nil, fmt.Errorf("route table and certificate store are required")
	}
	if opts.ConfigSettleDelay <= 0 {
		opts.ConfigSettleDelay = DefaultConfigSettleDelay
	}
	if opts.CertificateSettleDelay <= 0 {
		opts.CertificateSettleDelay = DefaultCertificateSettleDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "routes")
	}
	if opts.Loader == nil {
		opts.Loader = gwtls.NewLoader(opts.Logger)
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve routes directory: %w", err)
	}

	return &Manager{
		dir:          dir,
		routes:       opts.Routes,
		certs:        opts.Certificates,
		loader:       opts.Loader,
		secrets:      opts.Secrets,
		logger:       opts.Logger,
		recorder:     opts.Recorder,
		configEvents: NewDebouncer(opts.ConfigSettleDelay),
		certEvents:   NewDebouncer(opts.CertificateSettleDelay),
		certWatchers: make(map[string]*dirWatcher),
	}, nil
}

// Dir returns the absolute routes directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Start creates the routes directory if needed, begins watching it and
// loads every route file. Watchers stop when ctx is cancelled or Close is
// called.
func (m *Manager) Start(ctx context.Context) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create routes directory: %w", err)
	}

	w, err := newDirWatcher(m.dir, []string{FileExtension}, m.onConfigEvent, m.logger)
	if err != nil {
		return err
	}

	m.watchMu.Lock()
	if m.closed {
		m.watchMu.Unlock()
		w.Close()
		return fmt.Errorf("manager is closed")
	}
	m.ctx = ctx
	m.configWatcher = w
	m.watchMu.Unlock()

	go w.run(ctx)

	files, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("read routes directory: %w", err)
	}

	loaded := 0
	for _, f := range files {
		if !isRouteFile(f) {
			continue
		}
		if m.syncFile(filepath.Join(m.dir, f.Name())) {
			loaded++
		}
	}

	m.logger.Info("Routes loaded",
		"dir", m.dir,
		"files", loaded,
		"active_routes", m.routes.Len(),
		"certificates", m.certs.Len(),
	)

	return nil
}

// Close stops every watcher, cancels pending reloads and releases the
// certificates the manager registered.
func (m *Manager) Close() error {
	m.configEvents.Stop()
	m.certEvents.Stop()

	m.watchMu.Lock()
	if m.closed {
		m.watchMu.Unlock()
		return nil
	}
	m.closed = true
	watchers := make([]*dirWatcher, 0, len(m.certWatchers)+1)
	if m.configWatcher != nil {
		watchers = append(watchers, m.configWatcher)
	}
	for dir, w := range m.certWatchers {
		watchers = append(watchers, w)
		delete(m.certWatchers, dir)
	}
	m.watchMu.Unlock()

	var err error
	for _, w := range watchers {
		err = multierr.Append(err, w.Close())
	}

	m.certs.Clear()
	m.recorder.SetCertificates(0)

	return err
}

// List returns copies of every entry sorted by id.
func (m *Manager) List() []*Entry {
	var out []*Entry
	m.entries.Range(func(_, v any) bool {
		out = append(out, v.(*Entry).clone())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of the entry with id.
func (m *Manager) Get(id string) (*Entry, bool) {
	v, ok := m.entries.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Entry).clone(), true
}

// Save writes entry to "{id}.json" and applies it immediately. An empty id
// is replaced by a generated one. The watcher recognizes the written
// content and does not apply it a second time.
func (m *Manager) Save(entry *Entry) (*Entry, error) {
	if entry == nil {
		return nil, fmt.Errorf("nil route entry")
	}

	e := entry.clone()
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid route %q: %w", e.ID, err)
	}

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode route %q: %w", e.ID, err)
	}
	data = append(data, '\n')

	name := FileName(e.ID)
	path := filepath.Join(m.dir, name)

	unlock := m.entryLocks.Lock(e.ID)
	defer unlock()

	m.written.Store(path, sha256.Sum256(data))
	if err := writeFileAtomic(path, data); err != nil {
		m.written.Delete(path)
		return nil, newFileError("save", e.ID, path, err)
	}

	m.files.Store(name, e.ID)
	m.origins.Store(e.ID, name)
	prev, _ := m.entries.Swap(e.ID, e)
	m.apply(asEntry(prev), e)

	m.logger.Info("Route saved",
		"route_id", e.ID,
		"host", e.Host(),
		"enabled", e.Enabled,
	)

	return e.clone(), nil
}

// Delete removes the route file holding id and drops the route from the
// live stores. The file is located by name first and then by scanning file
// contents. Failures are returned as *FileError and leave state unchanged.
func (m *Manager) Delete(id string) error {
	id = strings.TrimSpace(id)

	path, err := m.locate(id)
	if err != nil {
		return newFileError("delete", id, "", err)
	}

	if err := os.Remove(path); err != nil {
		return newFileError("delete", id, path, err)
	}

	m.written.Delete(path)
	m.files.Delete(filepath.Base(path))

	unlock := m.entryLocks.Lock(id)
	m.origins.Delete(id)
	if v, ok := m.entries.LoadAndDelete(id); ok {
		m.unapply(v.(*Entry))
	}
	unlock()
	m.refreshGauges()

	m.logger.Info("Route deleted", "route_id", id, "path", path)

	return nil
}

// locate finds the file holding the entry with id.
func (m *Manager) locate(id string) (string, error) {
	if id == "" {
		return "", ErrRouteNotFound
	}

	if err := (&Entry{ID: id}).validateID(); err == nil {
		path := filepath.Join(m.dir, FileName(id))
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}

	files, err := os.ReadDir(m.dir)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.IsDir() || !strings.EqualFold(filepath.Ext(f.Name()), FileExtension) {
			continue
		}
		path := filepath.Join(m.dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if e, err := ParseEntry(data); err == nil && e.ID == id {
			return path, nil
		}
	}

	return "", ErrRouteNotFound
}

// onConfigEvent runs on the watcher goroutine. Every event for a path is
// coalesced; when the path settles its current content decides whether it
// was written or removed.
func (m *Manager) onConfigEvent(event fsnotify.Event) {
	path := event.Name
	m.configEvents.Trigger(path, func() {
		m.syncFile(path)
	})
}

// syncFile brings the in-memory state for one route file in line with the
// disk. It reports whether an entry was applied.
func (m *Manager) syncFile(path string) bool {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m.forgetFile(path)
		return false
	}
	if err != nil {
		m.logger.Error("Failed to read route file", "path", path, "error", err)
		m.recorder.RecordRouteReload(ReloadIOError)
		return false
	}

	sum := sha256.Sum256(data)
	if v, ok := m.written.Load(path); ok {
		if v.([sha256.Size]byte) == sum {
			m.logger.Debug("Skipping route file written by manager", "path", path)
			m.recorder.RecordRouteReload(ReloadSkipped)
			return false
		}
		m.written.Delete(path)
	}

	entry, err := decodeFile(path, data)
	if err != nil {
		m.logger.Warn("Skipping invalid route file", "path", path, "error", err)
		m.recorder.RecordRouteReload(ReloadParseError)
		return false
	}

	name := filepath.Base(path)
	if v, ok := m.files.Load(name); ok && v.(string) != entry.ID {
		// The file now holds a different route; drop the one it used to hold.
		m.dropEntry(v.(string), name)
	}
	m.files.Store(name, entry.ID)

	unlock := m.entryLocks.Lock(entry.ID)
	m.origins.Store(entry.ID, name)
	prev, _ := m.entries.Swap(entry.ID, entry)
	m.apply(asEntry(prev), entry)
	unlock()
	m.recorder.RecordRouteReload(ReloadApplied)

	m.logger.Info("Route file applied",
		"path", path,
		"route_id", entry.ID,
		"host", entry.Host(),
		"enabled", entry.Enabled,
	)

	return true
}

// forgetFile handles a route file that no longer exists. The entry is found
// by the id last read from that file, then by the id derived from the file
// name, then by scanning for an entry whose file name matches.
func (m *Manager) forgetFile(path string) {
	name := filepath.Base(path)
	m.written.Delete(path)

	id := ""
	if v, ok := m.files.LoadAndDelete(name); ok {
		id = v.(string)
	} else if stem := idFromFileName(name); stem != "" {
		if _, ok := m.entries.Load(stem); ok {
			id = stem
		}
	}
	if id == "" {
		m.entries.Range(func(k, _ any) bool {
			if FileName(k.(string)) == name {
				id = k.(string)
				return false
			}
			return true
		})
	}
	if id == "" || !m.dropEntry(id, name) {
		return
	}

	m.refreshGauges()
	m.recorder.RecordRouteReload(ReloadRemoved)

	m.logger.Info("Route file removed", "path", path, "route_id", id)
}

// dropEntry forgets the entry with id if it was last read from the file
// name. An entry that has since moved to another file is kept.
func (m *Manager) dropEntry(id, name string) bool {
	unlock := m.entryLocks.Lock(id)
	defer unlock()

	if o, ok := m.origins.Load(id); ok && o.(string) != name {
		return false
	}
	m.origins.Delete(id)

	v, ok := m.entries.LoadAndDelete(id)
	if !ok {
		return false
	}
	m.unapply(v.(*Entry))
	return true
}

// apply moves the live stores from prev's state to next's.
func (m *Manager) apply(prev, next *Entry) {
	defer m.refreshGauges()

	if prev != nil && (prev.Host() != next.Host() || !next.Enabled) {
		m.unapply(prev)
	}

	if !next.Enabled {
		m.unapply(next)
		m.pruneCertWatchers()
		return
	}

	route, err := next.Route()
	if err != nil {
		m.logger.Warn("Route not applied", "route_id", next.ID, "error", err)
		m.unapply(next)
		return
	}
	m.routes.Upsert(route)

	if next.CertificatesDirectory == "" {
		if prev != nil && prev.CertificatesDirectory != "" && prev.Host() == next.Host() {
			m.removeCertificate(next.Host())
		}
		m.pruneCertWatchers()
		return
	}

	m.loadCertificate(next.Host())
	m.watchCertificates(m.certDir(next))
	m.pruneCertWatchers()
}

// unapply removes e's route and certificate. Another entry's route for the
// same host is left in place, together with its certificate.
func (m *Manager) unapply(e *Entry) {
	host := e.Host()
	if host == "" {
		return
	}

	removed := m.routes.RemoveOwned(host, e.ID)
	if removed || m.routes.Get(host) == nil {
		m.removeCertificate(host)
	}
}

// removeCertificate drops host's certificate once any load for host has
// finished.
func (m *Manager) removeCertificate(host string) {
	unlock := m.certLocks.Lock(hostname.Normalize(host))
	defer unlock()
	m.certs.Remove(host)
}

// loadCertificate resolves and registers the certificate of the entry that
// currently owns host. Loads for one host run one at a time and each reads
// the owner afresh, so the last load reflects the latest entry.
func (m *Manager) loadCertificate(host string) {
	unlock := m.certLocks.Lock(hostname.Normalize(host))
	defer unlock()

	e := m.owner(host)
	if e == nil || e.CertificatesDirectory == "" {
		m.certs.Remove(host)
		return
	}
	dir := m.certDir(e)

	password, err := m.certificatePassword(e)
	if err != nil {
		m.logger.Warn("Certificate password unresolved",
			"host", host,
			"route_id", e.ID,
			"error", err,
		)
		m.certs.Remove(host)
		m.recorder.RecordCertificateLoad(CertificateMissing)
		return
	}

	cert := m.loader.ResolveForHost(dir, host, password)
	if cert == nil {
		m.certs.Remove(host)
		m.recorder.RecordCertificateLoad(CertificateMissing)
		return
	}

	if err := m.certs.Register(host, cert); err != nil {
		m.logger.Warn("Certificate rejected",
			"host", host,
			"cert_dir", dir,
			"error", err,
		)
		m.certs.Remove(host)
		m.recorder.RecordCertificateLoad(CertificateRejected)
		return
	}

	m.recorder.RecordCertificateLoad(CertificateLoaded)
}

// owner returns the enabled entry whose route is live for host.
func (m *Manager) owner(host string) *Entry {
	r := m.routes.Get(host)
	if r == nil {
		return nil
	}
	v, ok := m.entries.Load(r.ID)
	if !ok {
		return nil
	}
	e := v.(*Entry)
	if !e.Enabled || hostname.Normalize(e.Host()) != hostname.Normalize(host) {
		return nil
	}
	return e
}

// certificatePassword expands secret references in e's password.
func (m *Manager) certificatePassword(e *Entry) (string, error) {
	if m.secrets == nil || e.CertificatePassword == "" {
		return e.CertificatePassword, nil
	}
	ctx := context.Background()
	m.watchMu.Lock()
	if m.ctx != nil {
		ctx = m.ctx
	}
	m.watchMu.Unlock()
	return m.secrets.Resolve(ctx, e.CertificatePassword)
}

// certDir returns e's certificate directory, resolved against the routes
// directory when relative.
func (m *Manager) certDir(e *Entry) string {
	dir := e.CertificatesDirectory
	if dir == "" {
		return ""
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(m.dir, dir)
	}
	return filepath.Clean(dir)
}

// watchCertificates starts a watcher for dir unless one is running.
func (m *Manager) watchCertificates(dir string) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()

	if m.closed || m.ctx == nil {
		return
	}
	if _, ok := m.certWatchers[dir]; ok {
		return
	}

	w, err := newDirWatcher(dir, gwtls.WatchedExtensions, func(fsnotify.Event) {
		m.certEvents.Trigger(dir, func() { m.reloadCertificates(dir) })
	}, m.logger)
	if err != nil {
		m.logger.Warn("Cannot watch certificate directory", "cert_dir", dir, "error", err)
		return
	}

	m.certWatchers[dir] = w
	go w.run(m.ctx)

	m.logger.Info("Watching certificate directory", "cert_dir", dir)
}

// pruneCertWatchers stops watchers for directories no enabled entry uses.
func (m *Manager) pruneCertWatchers() {
	used := make(map[string]bool)
	m.entries.Range(func(_, v any) bool {
		e := v.(*Entry)
		if e.Enabled && e.CertificatesDirectory != "" {
			used[m.certDir(e)] = true
		}
		return true
	})

	m.watchMu.Lock()
	var stale []*dirWatcher
	for dir, w := range m.certWatchers {
		if !used[dir] {
			stale = append(stale, w)
			delete(m.certWatchers, dir)
		}
	}
	m.watchMu.Unlock()

	for _, w := range stale {
		if err := w.Close(); err != nil {
			m.logger.Warn("Failed to close certificate watcher", "cert_dir", w.dir, "error", err)
		}
	}
}

// reloadCertificates re-resolves the certificate of every enabled entry
// that uses dir. Hosts are reloaded in parallel.
func (m *Manager) reloadCertificates(dir string) {
	var g errgroup.Group
	g.SetLimit(maxParallelReloads)

	m.entries.Range(func(_, v any) bool {
		e := v.(*Entry)
		if !e.Enabled || e.CertificatesDirectory == "" || m.certDir(e) != dir {
			return true
		}
		if r := m.routes.Get(e.Host()); r == nil || r.ID != e.ID {
			return true
		}

		host := e.Host()
		m.logger.Info("Reloading certificate", "host", host, "cert_dir", dir)
		g.Go(func() error {
			m.loadCertificate(host)
			return nil
		})
		return true
	})

	g.Wait()
	m.refreshGauges()
}

func (m *Manager) refreshGauges() {
	m.recorder.SetActiveRoutes(m.routes.Len())
	m.recorder.SetCertificates(m.certs.Len())
}

func asEntry(v any) *Entry {
	e, _ := v.(*Entry)
	return e
}

// writeFileAtomic writes data to a hidden temp file in the target directory
// and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
