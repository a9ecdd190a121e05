package routing

import (
	"fmt"
	"sync"
	"testing"
)

func mustRoute(t *testing.T, id, host, backend string) *Route {
	t.Helper()
	r, err := NewRoute(id, id, host, backend, true)
	if err != nil {
		t.Fatalf("NewRoute() error = %v", err)
	}
	return r
}

func TestTable_ResolveWithAlias(t *testing.T) {
	table := NewTable()
	table.Upsert(mustRoute(t, "site", "Example.com", "http://127.0.0.1:3000"))

	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"www.example.com", true},
		{"EXAMPLE.COM:443", true},
		{"api.example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		got := table.Resolve(tt.host)
		if (got != nil) != tt.want {
			t.Errorf("Resolve(%q) = %v, want found=%v", tt.host, got, tt.want)
		}
		if got != nil && got.Backend.Host != "127.0.0.1:3000" {
			t.Errorf("Resolve(%q) backend = %s", tt.host, got.Backend)
		}
	}
}

func TestTable_WWWRouteResolvesApex(t *testing.T) {
	table := NewTable()
	table.Upsert(mustRoute(t, "www", "www.example.com", "http://127.0.0.1:3000"))

	if table.Resolve("example.com") == nil {
		t.Error("Resolve(example.com) should fall back to www.example.com")
	}
}

func TestTable_DirectMatchBeatsAlias(t *testing.T) {
	table := NewTable()
	table.Upsert(mustRoute(t, "apex", "example.com", "http://127.0.0.1:1"))
	table.Upsert(mustRoute(t, "www", "www.example.com", "http://127.0.0.1:2"))

	if got := table.Resolve("www.example.com"); got.ID != "www" {
		t.Errorf("Resolve(www.example.com) = %s, want www", got.ID)
	}
	if got := table.Resolve("example.com"); got.ID != "apex" {
		t.Errorf("Resolve(example.com) = %s, want apex", got.ID)
	}
}

func TestTable_LastWriteWins(t *testing.T) {
	table := NewTable()
	table.Upsert(mustRoute(t, "a", "example.com", "http://127.0.0.1:1"))
	table.Upsert(mustRoute(t, "b", "example.com", "http://127.0.0.1:2"))

	if got := table.Resolve("example.com"); got.ID != "b" {
		t.Errorf("Resolve() = %s, want b", got.ID)
	}
	if table.Len() != 1 {
		t.Errorf("Len() = %d, want 1", table.Len())
	}
}

func TestTable_RemoveOwned(t *testing.T) {
	table := NewTable()
	table.Upsert(mustRoute(t, "b", "example.com", "http://127.0.0.1:2"))

	if table.RemoveOwned("example.com", "a") {
		t.Error("RemoveOwned() removed a route owned by another entry")
	}
	if table.Resolve("example.com") == nil {
		t.Fatal("route disappeared")
	}
	if !table.RemoveOwned("example.com", "b") {
		t.Error("RemoveOwned() did not remove the owner's route")
	}
	if table.Resolve("example.com") != nil {
		t.Error("route still present after RemoveOwned")
	}
}

func TestTable_Remove(t *testing.T) {
	table := NewTable()
	table.Upsert(mustRoute(t, "a", "example.com", "http://127.0.0.1:1"))
	table.Remove("EXAMPLE.com")

	if table.Resolve("example.com") != nil || table.Resolve("www.example.com") != nil {
		t.Error("route still resolvable after Remove")
	}
}

func TestTable_ConcurrentUpsertRemove(t *testing.T) {
	table := NewTable()

	const hosts = 32
	var wg sync.WaitGroup
	for i := 0; i < hosts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			host := fmt.Sprintf("h%d.example.com", i)
			for n := 0; n < 100; n++ {
				r, _ := NewRoute(fmt.Sprintf("%d-%d", i, n), "", host, "http://127.0.0.1:80", true)
				table.Upsert(r)
				_ = table.Resolve(host)
				if i%2 == 1 {
					table.Remove(host)
				}
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < hosts; i++ {
		host := fmt.Sprintf("h%d.example.com", i)
		got := table.Resolve(host)
		if i%2 == 0 {
			if got == nil || got.ID != fmt.Sprintf("%d-99", i) {
				t.Errorf("Resolve(%s) = %v, want last write %d-99", host, got, i)
			}
		} else if got != nil {
			t.Errorf("Resolve(%s) returned a removed route", host)
		}
	}
}

func TestNewRoute(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		backend  string
		wantHost string
		wantErr  bool
	}{
		{"bare host", "Example.com", "http://localhost:3000", "example.com", false},
		{"url host", "https://example.com/app", "http://localhost:3000", "example.com", false},
		{"host with path", "example.com/app", "http://localhost:3000", "example.com", false},
		{"empty host", "", "http://localhost:3000", "", true},
		{"bad scheme", "example.com", "ftp://localhost", "", true},
		{"no backend host", "example.com", "http://", "", true},
		{"empty backend", "example.com", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRoute("id", "name", tt.host, tt.backend, true)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRoute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && r.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", r.Host, tt.wantHost)
			}
		})
	}
}
