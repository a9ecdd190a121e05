package tls

import (
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/gatehouse/internal/hostname"
)

// storeEntry is an immutable record held by the Store. Rotation replaces the
// whole entry, so a reader sees either the old or the new certificate.
type storeEntry struct {
	cert *tls.Certificate

	// aliasOf is the primary host for alias registrations, "" otherwise.
	aliasOf string
}

// Store maps normalized host names to certificates. All operations are
// per-key atomic and reads take no lock.
type Store struct {
	entries sync.Map // string -> *storeEntry
	now     func() time.Time
}

// NewStore creates an empty certificate store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Register stores cert under host and, when cert covers it, under the host's
// www/non-www alias. A certificate that does not cover host is rejected.
func (s *Store) Register(host string, cert *tls.Certificate) error {
	h := hostname.Normalize(host)
	if h == "" {
		return fmt.Errorf("empty host")
	}
	if cert == nil {
		return fmt.Errorf("nil certificate for %s", h)
	}

	leaf, err := leafOf(cert)
	if err != nil {
		return err
	}
	cert.Leaf = leaf

	if !matchesX509Host(leaf, h) {
		return fmt.Errorf("certificate %q does not cover %s", leaf.Subject.CommonName, h)
	}

	s.entries.Store(h, &storeEntry{cert: cert})

	if alias := hostname.Alias(h); alias != "" {
		if matchesX509Host(leaf, alias) {
			s.storeAlias(alias, h, cert)
		} else {
			s.removeAliasOf(alias, h)
		}
	}

	return nil
}

// Remove drops the certificate registered for host and the alias entry that
// host registered. An alias slot holding another host's primary
// registration is left alone.
func (s *Store) Remove(host string) {
	h := hostname.Normalize(host)
	if h == "" {
		return
	}

	if v, ok := s.entries.Load(h); ok {
		e := v.(*storeEntry)
		if e.aliasOf == "" {
			s.entries.CompareAndDelete(h, e)
		}
	}

	if alias := hostname.Alias(h); alias != "" {
		s.removeAliasOf(alias, h)
	}
}

// storeAlias registers cert under alias unless the slot holds a primary
// registration of its own.
func (s *Store) storeAlias(alias, primary string, cert *tls.Certificate) {
	e := &storeEntry{cert: cert, aliasOf: primary}
	for {
		v, loaded := s.entries.LoadOrStore(alias, e)
		if !loaded {
			return
		}
		old := v.(*storeEntry)
		if old.aliasOf == "" {
			return
		}
		if s.entries.CompareAndSwap(alias, old, e) {
			return
		}
	}
}

// removeAliasOf deletes alias only if it was registered as an alias of primary.
func (s *Store) removeAliasOf(alias, primary string) {
	v, ok := s.entries.Load(alias)
	if !ok {
		return
	}
	if e := v.(*storeEntry); e.aliasOf == primary {
		s.entries.CompareAndDelete(alias, e)
	}
}

// Resolve returns the certificate for host, trying the www/non-www alias on
// a miss. A stored certificate that no longer covers the requested name, or
// that is outside its validity window, is not returned.
func (s *Store) Resolve(host string) *tls.Certificate {
	h := hostname.Normalize(host)
	if h == "" {
		return nil
	}

	if cert := s.lookup(h); cert != nil {
		return cert
	}

	if alias := hostname.Alias(h); alias != "" {
		// The alias slot's certificate must still cover the name the
		// client actually asked for.
		if v, ok := s.entries.Load(alias); ok {
			cert := v.(*storeEntry).cert
			if matchesX509Host(cert.Leaf, h) && s.current(cert) {
				return cert
			}
		}
	}

	return nil
}

func (s *Store) lookup(h string) *tls.Certificate {
	v, ok := s.entries.Load(h)
	if !ok {
		return nil
	}

	cert := v.(*storeEntry).cert
	if !matchesX509Host(cert.Leaf, h) || !s.current(cert) {
		return nil
	}

	return cert
}

func (s *Store) current(cert *tls.Certificate) bool {
	return ValidateX509Certificate(cert.Leaf, s.now()) == nil
}

// ListHosts returns every registered host, aliases included, sorted.
func (s *Store) ListHosts() []string {
	var hosts []string
	s.entries.Range(func(k, _ any) bool {
		hosts = append(hosts, k.(string))
		return true
	})
	sort.Strings(hosts)
	return hosts
}

// Len returns the number of registered host keys, aliases included.
func (s *Store) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Clear drops every certificate.
func (s *Store) Clear() {
	s.entries.Range(func(k, _ any) bool {
		s.entries.Delete(k)
		return true
	})
}
