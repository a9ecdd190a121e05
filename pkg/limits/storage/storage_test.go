package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestSQLiteBackend(t *testing.T, path string) *SQLiteBackend {
	t.Helper()

	backend, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	return backend
}

// backends returns a fresh instance of every implementation.
func backends(t *testing.T) map[string]Backend {
	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": newTestSQLiteBackend(t, filepath.Join(t.TempDir(), "blocks.db")),
	}
}

func TestBackend_SaveAndListActive(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			blocks := []*Block{
				{IP: "203.0.113.9", BlockedUntil: epoch.Add(30 * time.Minute), Reason: "burst", CreatedAt: epoch},
				{IP: "198.51.100.1", BlockedUntil: epoch.Add(-time.Minute), Reason: "sustained", CreatedAt: epoch.Add(-time.Hour)},
				{IP: "2001:db8::1", BlockedUntil: epoch.Add(time.Hour), Reason: "sustained", CreatedAt: epoch},
			}
			for _, b := range blocks {
				if err := backend.Save(ctx, b); err != nil {
					t.Fatalf("Save(%s) error = %v", b.IP, err)
				}
			}

			active, err := backend.ListActive(ctx, epoch)
			if err != nil {
				t.Fatalf("ListActive() error = %v", err)
			}
			if len(active) != 2 {
				t.Fatalf("ListActive() returned %d blocks, want 2", len(active))
			}
			if active[0].IP != "2001:db8::1" || active[1].IP != "203.0.113.9" {
				t.Errorf("ListActive() order = %s, %s", active[0].IP, active[1].IP)
			}
			if !active[1].BlockedUntil.Equal(epoch.Add(30*time.Minute)) || active[1].Reason != "burst" {
				t.Errorf("block round trip = %+v", active[1])
			}
		})
	}
}

func TestBackend_SaveReplaces(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			backend.Save(ctx, &Block{IP: "192.0.2.1", BlockedUntil: epoch.Add(time.Minute), Reason: "burst"})
			backend.Save(ctx, &Block{IP: "192.0.2.1", BlockedUntil: epoch.Add(time.Hour), Reason: "sustained"})

			active, err := backend.ListActive(ctx, epoch.Add(10*time.Minute))
			if err != nil {
				t.Fatal(err)
			}
			if len(active) != 1 || active[0].Reason != "sustained" {
				t.Errorf("ListActive() = %+v, want the replacement block", active)
			}
		})
	}
}

func TestBackend_DeleteAndCleanup(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 4; i++ {
				backend.Save(ctx, &Block{
					IP:           fmt.Sprintf("192.0.2.%d", i),
					BlockedUntil: epoch.Add(time.Duration(i) * time.Minute),
				})
			}

			if err := backend.Delete(ctx, "192.0.2.3"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}

			// Blocks ending at 0m and 1m have expired at 1m.
			n, err := backend.Cleanup(ctx, epoch.Add(time.Minute))
			if err != nil {
				t.Fatalf("Cleanup() error = %v", err)
			}
			if n != 2 {
				t.Errorf("Cleanup() = %d, want 2", n)
			}

			active, _ := backend.ListActive(ctx, epoch)
			if len(active) != 1 || active[0].IP != "192.0.2.2" {
				t.Errorf("remaining blocks = %+v, want only 192.0.2.2", active)
			}
		})
	}
}

func TestBackend_RejectsInvalid(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := backend.Save(ctx, nil); err == nil {
				t.Error("Save(nil) should fail")
			}
			if err := backend.Save(ctx, &Block{BlockedUntil: epoch}); err == nil {
				t.Error("Save() without IP should fail")
			}
		})
	}
}

func TestSQLiteBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.db")
	ctx := context.Background()

	first, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Save(ctx, &Block{IP: "203.0.113.5", BlockedUntil: epoch.Add(time.Hour), Reason: "burst"}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := first.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	second := newTestSQLiteBackend(t, path)
	active, err := second.ListActive(ctx, epoch)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].IP != "203.0.113.5" {
		t.Errorf("ListActive() after reopen = %+v", active)
	}
}

func TestBackend_Ping(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := backend.Ping(context.Background()); err != nil {
				t.Errorf("Ping() error = %v", err)
			}
		})
	}

	closed, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatal(err)
	}
	closed.Close()
	if err := closed.Ping(context.Background()); err == nil {
		t.Error("Ping() on closed database should fail")
	}
}

func TestSQLiteBackend_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Error("NewSQLiteBackend(\"\") should fail")
	}
}

func TestSQLiteBackend_ConcurrentSaves(t *testing.T) {
	backend := newTestSQLiteBackend(t, filepath.Join(t.TempDir(), "blocks.db"))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := backend.Save(ctx, &Block{IP: fmt.Sprintf("10.0.0.%d", i), BlockedUntil: epoch.Add(time.Hour)}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	active, err := backend.ListActive(ctx, epoch)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 20 {
		t.Errorf("ListActive() returned %d blocks, want 20", len(active))
	}
}
