package tls

import (
	"crypto/tls"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/gatehouse/internal/testcerts"
)

func newTestCert(t *testing.T, names ...string) *tls.Certificate {
	t.Helper()
	pair := testcerts.Generate(t, testcerts.Options{CommonName: names[0], DNSNames: names})
	return buildCertificate(pair.Cert, nil, pair.Key)
}

func TestStore_RegisterAndResolveAlias(t *testing.T) {
	store := NewStore()
	cert := newTestCert(t, "example.com", "www.example.com")

	if err := store.Register("Example.com", cert); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	for _, host := range []string{"example.com", "www.example.com", "EXAMPLE.com:443"} {
		if got := store.Resolve(host); got != cert {
			t.Errorf("Resolve(%q) did not return the registered certificate", host)
		}
	}

	hosts := store.ListHosts()
	if len(hosts) != 2 {
		t.Errorf("ListHosts() = %v, want primary and alias", hosts)
	}
}

func TestStore_AliasNotRegisteredWhenUncovered(t *testing.T) {
	store := NewStore()
	cert := newTestCert(t, "example.com")

	if err := store.Register("example.com", cert); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if got := store.Resolve("www.example.com"); got != nil {
		t.Error("Resolve(www.example.com) returned a certificate that does not cover it")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_RejectsUncoveredPrimary(t *testing.T) {
	store := NewStore()
	if err := store.Register("other.com", newTestCert(t, "example.com")); err == nil {
		t.Fatal("Register() accepted a certificate for a host it does not cover")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestStore_RemoveDropsAlias(t *testing.T) {
	store := NewStore()
	if err := store.Register("example.com", newTestCert(t, "example.com", "www.example.com")); err != nil {
		t.Fatal(err)
	}

	store.Remove("example.com")

	if store.Resolve("example.com") != nil || store.Resolve("www.example.com") != nil {
		t.Error("certificate still resolvable after Remove")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestStore_RemoveKeepsIndependentAliasHost(t *testing.T) {
	store := NewStore()
	apex := newTestCert(t, "example.com", "www.example.com")
	www := newTestCert(t, "www.example.com")

	if err := store.Register("www.example.com", www); err != nil {
		t.Fatal(err)
	}
	if err := store.Register("example.com", apex); err != nil {
		t.Fatal(err)
	}

	// The independent www registration must survive both the apex alias
	// registration and the apex removal.
	if got := store.Resolve("www.example.com"); got != www {
		t.Error("alias registration replaced an independent primary")
	}

	store.Remove("example.com")

	if got := store.Resolve("www.example.com"); got != www {
		t.Error("removing example.com removed the independently registered www.example.com")
	}
}

func TestStore_ResolveRevalidatesMatch(t *testing.T) {
	store := NewStore()
	cert := newTestCert(t, "example.com")

	// Bypass Register to simulate a slot overwritten with foreign material.
	store.entries.Store("shop.example.com", &storeEntry{cert: cert})

	if got := store.Resolve("shop.example.com"); got != nil {
		t.Error("Resolve() returned a certificate that does not match the host")
	}
}

func TestStore_ResolveRejectsExpired(t *testing.T) {
	store := NewStore()
	cert := newTestCert(t, "example.com")
	if err := store.Register("example.com", cert); err != nil {
		t.Fatal(err)
	}

	store.now = func() time.Time { return cert.Leaf.NotAfter.Add(time.Minute) }

	if got := store.Resolve("example.com"); got != nil {
		t.Error("Resolve() returned an expired certificate")
	}
}

func TestStore_RotationReplacesCertificate(t *testing.T) {
	store := NewStore()
	old := newTestCert(t, "example.com")
	rotated := newTestCert(t, "example.com")

	_ = store.Register("example.com", old)
	_ = store.Register("example.com", rotated)

	if got := store.Resolve("example.com"); got != rotated {
		t.Error("Resolve() did not return the rotated certificate")
	}
}

func TestStore_ConcurrentRegisterRemove(t *testing.T) {
	store := NewStore()

	const hosts = 16
	certs := make([]*tls.Certificate, hosts)
	for i := range certs {
		certs[i] = newTestCert(t, fmt.Sprintf("h%d.example.com", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < hosts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			host := fmt.Sprintf("h%d.example.com", i)
			for n := 0; n < 50; n++ {
				_ = store.Register(host, certs[i])
				_ = store.Resolve(host)
				if i%2 == 1 {
					store.Remove(host)
				}
			}
			// Final write per key.
			if i%2 == 0 {
				_ = store.Register(host, certs[i])
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < hosts; i++ {
		host := fmt.Sprintf("h%d.example.com", i)
		got := store.Resolve(host)
		if i%2 == 0 && got != certs[i] {
			t.Errorf("Resolve(%s) lost the last write", host)
		}
		if i%2 == 1 && got != nil {
			t.Errorf("Resolve(%s) returned a removed certificate", host)
		}
	}
}

func TestStore_Clear(t *testing.T) {
	store := NewStore()
	_ = store.Register("example.com", newTestCert(t, "example.com", "www.example.com"))
	store.Clear()
	if store.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", store.Len())
	}
}
