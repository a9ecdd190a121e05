package routes

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// isRouteFile reports whether a directory entry is a route definition.
// Hidden files, which include the manager's temporary writes, are skipped.
func isRouteFile(f fs.DirEntry) bool {
	name := f.Name()
	return !f.IsDir() && !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), FileExtension)
}

// decodeFile parses and validates the content of one route file. An entry
// without an id takes it from the file name.
func decodeFile(path string, data []byte) (*Entry, error) {
	entry, err := ParseEntry(data)
	if err == nil {
		if entry.ID == "" {
			entry.ID = idFromFileName(path)
		}
		err = entry.Validate()
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return entry, nil
}

// ReadDir reads every route file in dir without applying anything. Valid
// entries are returned sorted by id; every file that could not be read or
// parsed contributes a *ParseError to the combined error.
func ReadDir(dir string) ([]*Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read routes directory: %w", err)
	}

	var (
		entries []*Entry
		errs    error
	)
	for _, f := range files {
		if !isRouteFile(f) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = multierr.Append(errs, &ParseError{Path: path, Err: err})
			continue
		}
		entry, err := decodeFile(path, data)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, errs
}

// Conflict is a host claimed by more than one enabled entry. Only one of
// them is live at a time.
type Conflict struct {
	Host string
	IDs  []string
}

// FindConflicts returns the hosts claimed by several enabled entries,
// sorted by host.
func FindConflicts(entries []*Entry) []Conflict {
	byHost := make(map[string][]string)
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		byHost[e.Host()] = append(byHost[e.Host()], e.ID)
	}

	var out []Conflict
	for host, ids := range byHost {
		if len(ids) > 1 {
			sort.Strings(ids)
			out = append(out, Conflict{Host: host, IDs: ids})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}
