package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if got := New(0).checkTimeout; got != 5*time.Second {
		t.Errorf("default timeout = %v, want 5s", got)
	}
	if got := New(time.Second).checkTimeout; got != time.Second {
		t.Errorf("timeout = %v, want 1s", got)
	}
}

func TestCheckReadiness_Lifecycle(t *testing.T) {
	checker := New(time.Second)
	ctx := context.Background()

	if got := checker.CheckReadiness(ctx).Status; got != StatusStarting {
		t.Errorf("before MarkReady status = %q, want %q", got, StatusStarting)
	}

	checker.MarkReady()
	if got := checker.CheckReadiness(ctx); !got.Ready() {
		t.Errorf("after MarkReady status = %q, want ready", got.Status)
	}

	checker.MarkDraining()
	if got := checker.CheckReadiness(ctx).Status; got != StatusDraining {
		t.Errorf("after MarkDraining status = %q, want %q", got, StatusDraining)
	}
}

func TestCheckReadiness_Degraded(t *testing.T) {
	checker := New(time.Second)
	checker.MarkReady()
	checker.RegisterCheck("good", func(context.Context) error { return nil })
	checker.RegisterCheck("bad", func(context.Context) error { return errors.New("store closed") })

	status := checker.CheckReadiness(context.Background())

	if status.Status != StatusDegraded {
		t.Errorf("status = %q, want %q", status.Status, StatusDegraded)
	}
	if status.Checks["bad"].Message != "store closed" {
		t.Errorf("bad check = %+v", status.Checks["bad"])
	}
	if status.Checks["good"].Status != StatusOK {
		t.Errorf("good check = %+v", status.Checks["good"])
	}

	checker.UnregisterCheck("bad")
	if got := checker.ListChecks(); len(got) != 1 || got[0] != "good" {
		t.Errorf("ListChecks() = %v, want [good]", got)
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	checker := New(20 * time.Millisecond)
	checker.MarkReady()
	checker.RegisterCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	status := checker.CheckReadiness(context.Background())
	if status.Checks["slow"].Message != ErrCheckTimeout.Error() {
		t.Errorf("slow check = %+v, want timeout", status.Checks["slow"])
	}
}

func TestHandlers(t *testing.T) {
	checker := New(time.Second)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		method  string
		ready   bool
		want    int
	}{
		{"liveness", checker.LivenessHandler(), http.MethodGet, false, http.StatusOK},
		{"liveness wrong method", checker.LivenessHandler(), http.MethodPost, false, http.StatusMethodNotAllowed},
		{"readiness starting", checker.ReadinessHandler(), http.MethodGet, false, http.StatusServiceUnavailable},
		{"readiness ready", checker.ReadinessHandler(), http.MethodGet, true, http.StatusOK},
		{"version", VersionHandler("1.0.0", "abc", "now"), http.MethodGet, false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ready {
				checker.MarkReady()
			}
			req := httptest.NewRequest(tt.method, "/", nil)
			w := httptest.NewRecorder()

			tt.handler(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK {
				var body map[string]any
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Errorf("body is not JSON: %v", err)
				}
			}
		})
	}
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestChecks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := DirectoryCheck(dir)(ctx); err != nil {
		t.Errorf("DirectoryCheck(dir) = %v", err)
	}
	if err := DirectoryCheck(file)(ctx); err == nil {
		t.Error("DirectoryCheck(file) should fail")
	}
	if err := DirectoryCheck(filepath.Join(dir, "missing"))(ctx); err == nil {
		t.Error("DirectoryCheck(missing) should fail")
	}

	if err := PingCheck(pingerFunc(func(context.Context) error { return errors.New("down") }))(ctx); err == nil {
		t.Error("PingCheck should surface the ping error")
	}
}
