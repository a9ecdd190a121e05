package routes

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ParseError reports a route file that could not be decoded or is invalid.
// The file is skipped and the manager keeps running.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse route file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FileErrorKind classifies a failed administrative file operation.
type FileErrorKind int

const (
	// Unknown is any failure not covered by another kind.
	Unknown FileErrorKind = iota
	// NotFound means no route file holds the requested id.
	NotFound
	// FileLocked means the file is in use by another process.
	FileLocked
	// PermissionDenied means the process may not modify the file.
	PermissionDenied
)

// String returns the kind name.
func (k FileErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case FileLocked:
		return "file_locked"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// FileError is returned by Save and Delete when the route file cannot be
// written or removed.
type FileError struct {
	Op   string
	ID   string
	Path string
	Kind FileErrorKind
	Err  error
}

func (e *FileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s route %q: %s: %v", e.Op, e.ID, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s route %q (%s): %s: %v", e.Op, e.ID, e.Path, e.Kind, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// ErrRouteNotFound is wrapped by FileError when no file holds the id.
var ErrRouteNotFound = errors.New("route not found")

func newFileError(op, id, path string, err error) *FileError {
	return &FileError{
		Op:   op,
		ID:   id,
		Path: path,
		Kind: classifyFileError(err),
		Err:  err,
	}
}

func classifyFileError(err error) FileErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, ErrRouteNotFound):
		return NotFound
	case errors.Is(err, fs.ErrPermission):
		return PermissionDenied
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return FileLocked
	default:
		return Unknown
	}
}
