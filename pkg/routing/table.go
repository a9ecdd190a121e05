package routing

import (
	"sort"
	"sync"

	"mercator-hq/gatehouse/internal/hostname"
)

// Table maps normalized host names to routes. Every operation is atomic per
// key; lookups take no lock.
type Table struct {
	routes sync.Map // string -> *Route
}

// NewTable creates an empty route table.
func NewTable() *Table {
	return &Table{}
}

// Upsert stores route under its host, replacing any previous route. The last
// write wins when several entries target the same host.
func (t *Table) Upsert(route *Route) {
	if route == nil || route.Host == "" {
		return
	}
	t.routes.Store(route.Host, route)
}

// Remove deletes whatever route is stored for host.
func (t *Table) Remove(host string) {
	if h := hostname.Normalize(host); h != "" {
		t.routes.Delete(h)
	}
}

// RemoveOwned deletes the route for host only if it was produced by the entry
// with the given id. It reports whether a route was removed.
func (t *Table) RemoveOwned(host, id string) bool {
	h := hostname.Normalize(host)
	if h == "" {
		return false
	}

	v, ok := t.routes.Load(h)
	if !ok {
		return false
	}

	r := v.(*Route)
	if r.ID != id {
		return false
	}

	return t.routes.CompareAndDelete(h, r)
}

// Get returns the route stored exactly under host, without alias fallback.
func (t *Table) Get(host string) *Route {
	if v, ok := t.routes.Load(hostname.Normalize(host)); ok {
		return v.(*Route)
	}
	return nil
}

// Resolve returns the route for host, falling back to its www/non-www alias.
func (t *Table) Resolve(host string) *Route {
	h := hostname.Normalize(host)
	if h == "" {
		return nil
	}

	if v, ok := t.routes.Load(h); ok {
		return v.(*Route)
	}

	if alias := hostname.Alias(h); alias != "" {
		if v, ok := t.routes.Load(alias); ok {
			return v.(*Route)
		}
	}

	return nil
}

// ListAll returns every stored route sorted by host.
func (t *Table) ListAll() []*Route {
	var routes []*Route
	t.routes.Range(func(_, v any) bool {
		routes = append(routes, v.(*Route))
		return true
	})

	sort.Slice(routes, func(i, j int) bool { return routes[i].Host < routes[j].Host })
	return routes
}

// Len returns the number of stored routes.
func (t *Table) Len() int {
	n := 0
	t.routes.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
