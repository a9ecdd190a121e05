package routes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/multierr"
)

func TestReadDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.json":       `{"id":"b","dnsUrl":"b.example.com","localUrl":"http://127.0.0.1:2","enabled":true}`,
		"named.JSON":   `{"dnsUrl":"n.example.com","localUrl":"http://127.0.0.1:3","enabled":false}`,
		"a.json":       `{"id":"a","dnsUrl":"a.example.com","localUrl":"http://127.0.0.1:1","enabled":true}`,
		"broken.json":  `{"id":`,
		"invalid.json": `{"id":"x","dnsUrl":"x.example.com"}`,
		".a.json.tmp":  `{}`,
		"notes.txt":    `ignored`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ReadDir(dir)

	var ids []string
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if want := []string{"a", "b", "named"}; len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] || ids[2] != want[2] {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("errors = %v, want two parse errors", errs)
	}
	for _, e := range errs {
		var perr *ParseError
		if !errors.As(e, &perr) {
			t.Errorf("error %v is not a *ParseError", e)
		}
	}
}

func TestReadDirMissing(t *testing.T) {
	if _, err := ReadDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ReadDir() on a missing directory should fail")
	}
}

func TestFindConflicts(t *testing.T) {
	entries := []*Entry{
		{ID: "two", DNSURL: "Shop.example.com", Enabled: true},
		{ID: "one", DNSURL: "https://shop.example.com/", Enabled: true},
		{ID: "off", DNSURL: "shop.example.com", Enabled: false},
		{ID: "solo", DNSURL: "blog.example.com", Enabled: true},
	}

	got := FindConflicts(entries)
	if len(got) != 1 {
		t.Fatalf("FindConflicts() = %+v, want one conflict", got)
	}
	if got[0].Host != "shop.example.com" || len(got[0].IDs) != 2 || got[0].IDs[0] != "one" || got[0].IDs[1] != "two" {
		t.Errorf("conflict = %+v, want shop.example.com [one two]", got[0])
	}
}
