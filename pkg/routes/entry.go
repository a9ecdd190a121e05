package routes

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"mercator-hq/gatehouse/pkg/routing"
)

// FileExtension is the extension of route definition files.
const FileExtension = ".json"

// RedactedPassword replaces certificate passwords in redacted entries.
const RedactedPassword = "********"

// Entry is one route definition as stored on disk.
type Entry struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	DNSURL                string `json:"dnsUrl"`
	LocalURL              string `json:"localUrl"`
	CertificatesDirectory string `json:"certificatesDirectory,omitempty"`
	CertificatePassword   string `json:"certificatePassword,omitempty"`
	Enabled               bool   `json:"enabled"`
}

// ParseEntry decodes a route definition.
func ParseEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	e.ID = strings.TrimSpace(e.ID)
	return &e, nil
}

// FileName returns the file name an entry with id is stored under.
func FileName(id string) string {
	return id + FileExtension
}

// idFromFileName derives an id from a route file name.
func idFromFileName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), FileExtension)
}

// Host returns the normalized host the entry answers for.
func (e *Entry) Host() string {
	return routing.ParseHost(e.DNSURL)
}

// Route converts the entry into a live route.
func (e *Entry) Route() (*routing.Route, error) {
	return routing.NewRoute(e.ID, e.Name, e.DNSURL, e.LocalURL, e.Enabled)
}

// Validate checks that the entry can be stored and routed.
func (e *Entry) Validate() error {
	if err := e.validateID(); err != nil {
		return err
	}
	if _, err := e.Route(); err != nil {
		return err
	}
	return nil
}

// validateID rejects ids that cannot be used as a file name in the routes
// directory.
func (e *Entry) validateID() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if strings.ContainsAny(e.ID, `/\`) || strings.HasPrefix(e.ID, ".") {
		return fmt.Errorf("invalid id %q", e.ID)
	}
	return nil
}

// Redacted returns a copy without the certificate password.
func (e *Entry) Redacted() *Entry {
	c := *e
	if c.CertificatePassword != "" {
		c.CertificatePassword = RedactedPassword
	}
	return &c
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}
