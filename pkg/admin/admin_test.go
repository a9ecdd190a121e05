package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/gatehouse/internal/testcerts"
	"mercator-hq/gatehouse/pkg/limits/admission"
	"mercator-hq/gatehouse/pkg/routes"
	"mercator-hq/gatehouse/pkg/routing"
	"mercator-hq/gatehouse/pkg/security/auth"
	gwtls "mercator-hq/gatehouse/pkg/security/tls"
	"mercator-hq/gatehouse/pkg/telemetry/health"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager(t *testing.T) (*routes.Manager, string) {
	t.Helper()

	dir := t.TempDir()
	m, err := routes.NewManager(routes.Options{
		Dir:          dir,
		Routes:       routing.NewTable(),
		Certificates: gwtls.NewStore(),
		Logger:       quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		m.Close()
		cancel()
	})
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return m, dir
}

// do sends a request from a loopback peer.
func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.RemoteAddr = "127.0.0.1:52000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestRoutesAPI_Lifecycle(t *testing.T) {
	m, dir := newManager(t)
	h := New(Options{Routes: m, Logger: quietLogger()})

	// Field names match case-insensitively.
	rec := do(h, http.MethodPost, "/api/routes", `{
		"Id": "shop",
		"NAME": "Shop",
		"dnsurl": "shop.example.com",
		"localUrl": "http://127.0.0.1:9000",
		"certificatePassword": "s3cret",
		"enabled": true
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/api/routes/shop" {
		t.Errorf("Location = %q, want /api/routes/shop", loc)
	}
	var created routes.Entry
	decode(t, rec, &created)
	if created.CertificatePassword != routes.RedactedPassword {
		t.Errorf("password in response = %q, want redacted", created.CertificatePassword)
	}

	if _, err := os.Stat(filepath.Join(dir, "shop.json")); err != nil {
		t.Fatalf("route file not written: %v", err)
	}

	rec = do(h, http.MethodGet, "/api/routes", "")
	var list routeList
	decode(t, rec, &list)
	if list.Count != 1 || list.Routes[0].ID != "shop" {
		t.Fatalf("list = %+v, want one route shop", list)
	}
	if list.Routes[0].CertificatePassword != routes.RedactedPassword {
		t.Error("list leaked the certificate password")
	}

	// Echoing the redacted password back keeps the stored one.
	rec = do(h, http.MethodPut, "/api/routes/shop", `{
		"name": "Shop v2",
		"dnsUrl": "shop.example.com",
		"localUrl": "http://127.0.0.1:9001",
		"certificatePassword": "********",
		"enabled": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	stored, ok := m.Get("shop")
	if !ok {
		t.Fatal("route missing after update")
	}
	if stored.Name != "Shop v2" || stored.LocalURL != "http://127.0.0.1:9001" {
		t.Errorf("stored = %+v, want updated name and backend", stored)
	}
	if stored.CertificatePassword != "s3cret" {
		t.Errorf("stored password = %q, want preserved", stored.CertificatePassword)
	}

	rec = do(h, http.MethodGet, "/api/routes/shop", "")
	if rec.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", rec.Code)
	}

	rec = do(h, http.MethodDelete, "/api/routes/shop", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204; body %s", rec.Code, rec.Body.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "shop.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("route file still present: %v", err)
	}

	if rec := do(h, http.MethodGet, "/api/routes/shop", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", rec.Code)
	}
	if rec := do(h, http.MethodDelete, "/api/routes/shop", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", rec.Code)
	}
}

func TestRoutesAPI_GeneratesID(t *testing.T) {
	m, _ := newManager(t)
	h := New(Options{Routes: m, Logger: quietLogger()})

	rec := do(h, http.MethodPost, "/api/routes",
		`{"name":"Blog","dnsUrl":"blog.example.com","localUrl":"http://127.0.0.1:9100","enabled":true}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	var created routes.Entry
	decode(t, rec, &created)
	if created.ID == "" {
		t.Fatal("created route has no id")
	}
	if _, ok := m.Get(created.ID); !ok {
		t.Errorf("route %q not stored", created.ID)
	}
}

func TestRoutesAPI_Rejects(t *testing.T) {
	m, _ := newManager(t)
	h := New(Options{Routes: m, Logger: quietLogger()})

	if rec := do(h, http.MethodPost, "/api/routes",
		`{"id":"a","dnsUrl":"a.example.com","localUrl":"http://127.0.0.1:1","enabled":true}`); rec.Code != http.StatusCreated {
		t.Fatalf("seed POST status = %d; body %s", rec.Code, rec.Body.String())
	}

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", http.MethodPost, "/api/routes", `{"id":`, http.StatusBadRequest, "invalid_json"},
		{"empty body", http.MethodPost, "/api/routes", "", http.StatusBadRequest, "invalid_request"},
		{"missing backend", http.MethodPost, "/api/routes", `{"id":"b","dnsUrl":"b.example.com"}`, http.StatusBadRequest, "invalid_route"},
		{"duplicate id", http.MethodPost, "/api/routes", `{"id":"a","dnsUrl":"a.example.com","localUrl":"http://127.0.0.1:2"}`, http.StatusConflict, "conflict"},
		{"id mismatch", http.MethodPut, "/api/routes/a", `{"id":"z","dnsUrl":"a.example.com","localUrl":"http://127.0.0.1:2"}`, http.StatusBadRequest, "invalid_request"},
		{"path traversal id", http.MethodPut, "/api/routes/..hidden", `{"dnsUrl":"a.example.com","localUrl":"http://127.0.0.1:2"}`, http.StatusBadRequest, "invalid_route"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, tt.method, tt.target, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			var body struct {
				Error string `json:"error"`
			}
			decode(t, rec, &body)
			if body.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tt.wantErr)
			}
		})
	}
}

type failingStore struct {
	err error
}

func (s failingStore) List() []*routes.Entry                    { return nil }
func (s failingStore) Get(string) (*routes.Entry, bool)         { return nil, false }
func (s failingStore) Save(*routes.Entry) (*routes.Entry, error) { return nil, s.err }
func (s failingStore) Delete(string) error                      { return s.err }

func TestRoutesAPI_FileErrors(t *testing.T) {
	tests := []struct {
		kind     routes.FileErrorKind
		wantCode int
		wantErr  string
	}{
		{routes.NotFound, http.StatusNotFound, "not_found"},
		{routes.FileLocked, http.StatusConflict, "file_locked"},
		{routes.PermissionDenied, http.StatusForbidden, "permission_denied"},
		{routes.Unknown, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			store := failingStore{err: &routes.FileError{Op: "delete", ID: "x", Kind: tt.kind, Err: errors.New("boom")}}
			h := New(Options{Routes: store, Logger: quietLogger()})

			rec := do(h, http.MethodDelete, "/api/routes/x", "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var body struct {
				Error string `json:"error"`
			}
			decode(t, rec, &body)
			if body.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tt.wantErr)
			}
		})
	}
}

func TestAPI_LoopbackOnly(t *testing.T) {
	checker := health.New(time.Second)
	checker.MarkReady()
	h := New(Options{
		Routes:      failingStore{},
		Health:      checker,
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
		MetricsPath: "/metrics",
		Logger:      quietLogger(),
	})

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		target     string
		wantCode   int
	}{
		{"loopback v4", "127.0.0.1:4000", "", "/api/routes", http.StatusOK},
		{"loopback v6", "[::1]:4000", "", "/api/routes", http.StatusOK},
		{"remote peer", "203.0.113.5:4000", "", "/api/routes", http.StatusForbidden},
		{"forged forwarding header", "203.0.113.5:4000", "127.0.0.1", "/api/routes", http.StatusForbidden},
		{"probe from remote peer", "203.0.113.5:4000", "", "/health", http.StatusOK},
		{"version from remote peer", "203.0.113.5:4000", "", "/version", http.StatusOK},
		{"metrics from loopback", "127.0.0.1:4000", "", "/metrics", http.StatusOK},
		{"metrics from remote peer", "203.0.113.5:4000", "", "/metrics", http.StatusForbidden},
		{"metrics with forged forwarding header", "203.0.113.5:4000", "127.0.0.1", "/metrics", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}

func TestAPI_RequiresAPIKey(t *testing.T) {
	keys, err := auth.NewValidator([]auth.APIKey{{Name: "deploy", Key: "s3cret"}})
	if err != nil {
		t.Fatal(err)
	}
	checker := health.New(time.Second)
	checker.MarkReady()
	h := New(Options{Routes: failingStore{}, Health: checker, APIKeys: keys, Logger: quietLogger()})

	tests := []struct {
		name       string
		remoteAddr string
		key        string
		target     string
		wantCode   int
	}{
		{"loopback with key", "127.0.0.1:4000", "s3cret", "/api/routes", http.StatusOK},
		{"loopback without key", "127.0.0.1:4000", "", "/api/routes", http.StatusUnauthorized},
		{"loopback with wrong key", "127.0.0.1:4000", "nope", "/api/routes", http.StatusUnauthorized},
		{"remote peer with key", "203.0.113.5:4000", "s3cret", "/api/routes", http.StatusForbidden},
		{"probe without key", "127.0.0.1:4000", "", "/ready", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.key != "" {
				req.Header.Set("Authorization", "Bearer "+tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if rec.Code == http.StatusUnauthorized {
				var body map[string]string
				decode(t, rec, &body)
				if body["error"] != "unauthorized" {
					t.Errorf("error code = %q, want unauthorized", body["error"])
				}
			}
		})
	}
}

func TestBlocksAPI(t *testing.T) {
	guard := admission.NewGuard(admission.Config{MaxRequestsPerSecond: 1}, admission.WithLogger(quietLogger()))
	const ip = "198.51.100.7"
	guard.Check(ip)
	if d := guard.Check(ip); d.Allowed {
		t.Fatal("second request within a second should be blocked")
	}

	h := New(Options{Blocks: guard, Logger: quietLogger()})

	rec := do(h, http.MethodGet, "/api/blocks", "")
	var list struct {
		Blocks []blockView `json:"blocks"`
		Count  int         `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 1 || list.Blocks[0].IP != ip || list.Blocks[0].Reason != admission.ReasonBurst {
		t.Fatalf("blocks = %+v, want one burst block for %s", list, ip)
	}

	if rec := do(h, http.MethodDelete, "/api/blocks/"+ip, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("unblock status = %d, want 204", rec.Code)
	}
	if d := guard.Check(ip); !d.Allowed {
		t.Error("request after unblock should be allowed")
	}
	if rec := do(h, http.MethodDelete, "/api/blocks/"+ip, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second unblock status = %d, want 404", rec.Code)
	}
}

func TestCertificatesAPI(t *testing.T) {
	pair := testcerts.Generate(t, testcerts.Options{
		CommonName: "example.com",
		DNSNames:   []string{"example.com", "www.example.com"},
		NotAfter:   time.Now().Add(10 * 24 * time.Hour),
	})
	store := gwtls.NewStore()
	cert := pair.TLSCertificate(t)
	if err := store.Register("example.com", cert); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	h := New(Options{Certificates: store, Logger: quietLogger()})
	rec := do(h, http.MethodGet, "/api/certificates", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var list struct {
		Certificates []certificateView `json:"certificates"`
		Count        int               `json:"count"`
	}
	decode(t, rec, &list)
	if list.Count != 2 {
		t.Fatalf("count = %d, want 2 (host and alias)", list.Count)
	}
	for _, c := range list.Certificates {
		if c.Warning == "" {
			t.Errorf("%s: expected an expiry warning for a certificate with 10 days left", c.Host)
		}
		if c.Subject == "" {
			t.Errorf("%s: empty subject", c.Host)
		}
	}
}

func TestProbeEndpoints(t *testing.T) {
	checker := health.New(time.Second)
	h := New(Options{
		Health:      checker,
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "# metrics\n") }),
		MetricsPath: "/metrics",
		Version:     "1.2.3",
		Logger:      quietLogger(),
	})

	if rec := do(h, http.MethodGet, "/ready", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready before start = %d, want 503", rec.Code)
	}
	checker.MarkReady()
	if rec := do(h, http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Errorf("/ready after start = %d, want 200", rec.Code)
	}

	rec := do(h, http.MethodGet, "/version", "")
	var info health.VersionInfo
	decode(t, rec, &info)
	if info.Version != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", info.Version)
	}

	if rec := do(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "# metrics") {
		t.Errorf("/metrics = %d %q", rec.Code, rec.Body.String())
	}

	// Route endpoints are absent without a store.
	if rec := do(h, http.MethodGet, "/api/routes", ""); rec.Code != http.StatusNotFound {
		t.Errorf("/api/routes without store = %d, want 404", rec.Code)
	}
}
