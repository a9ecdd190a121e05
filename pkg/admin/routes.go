package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"mercator-hq/gatehouse/pkg/proxy/middleware"
	"mercator-hq/gatehouse/pkg/routes"
)

type routeList struct {
	Routes []*routes.Entry `json:"routes"`
	Count  int             `json:"count"`
}

func (h *Handler) listRoutes(w http.ResponseWriter, _ *http.Request) {
	entries := h.routes.List()
	out := routeList{Routes: make([]*routes.Entry, 0, len(entries)), Count: len(entries)}
	for _, e := range entries {
		out.Routes = append(out.Routes, e.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, ok := h.routes.Get(id)
	if !ok {
		middleware.WriteError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Route %q does not exist.", id))
		return
	}
	writeJSON(w, http.StatusOK, e.Redacted())
}

func (h *Handler) createRoute(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	if entry.ID != "" {
		if _, exists := h.routes.Get(entry.ID); exists {
			middleware.WriteError(w, http.StatusConflict, "conflict", fmt.Sprintf("Route %q already exists.", entry.ID))
			return
		}
	}

	saved, err := h.routes.Save(entry)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Route created",
		"route_id", saved.ID,
		"host", saved.Host(),
		"actor", actor(r),
	)
	w.Header().Set("Location", "/api/routes/"+url.PathEscape(saved.ID))
	writeJSON(w, http.StatusCreated, saved.Redacted())
}

func (h *Handler) updateRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	if entry.ID != "" && entry.ID != id {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request",
			fmt.Sprintf("Body id %q does not match path id %q.", entry.ID, id))
		return
	}
	entry.ID = id

	// An update that leaves the password out, or echoes the redacted one,
	// keeps the stored password.
	if entry.CertificatePassword == "" || entry.CertificatePassword == routes.RedactedPassword {
		if prev, exists := h.routes.Get(id); exists {
			entry.CertificatePassword = prev.CertificatePassword
		}
	}

	saved, err := h.routes.Save(entry)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Route updated",
		"route_id", saved.ID,
		"host", saved.Host(),
		"actor", actor(r),
	)
	writeJSON(w, http.StatusOK, saved.Redacted())
}

func (h *Handler) deleteRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.routes.Delete(id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "Route deleted", "route_id", id, "actor", actor(r))
	w.WriteHeader(http.StatusNoContent)
}

// decodeEntry reads a route definition from the request body. Field names
// match case-insensitively, as in route files.
func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request) (*routes.Entry, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "request_too_large", "Route definition is too large.")
			return nil, false
		}
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body.")
		return nil, false
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "Request body is empty.")
		return nil, false
	}

	entry, err := routes.ParseEntry(data)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_json", fmt.Sprintf("Invalid route definition: %v", err))
		return nil, false
	}
	return entry, true
}

// writeStoreError maps a Save or Delete failure to a response. File errors
// carry their kind; anything else is a rejected definition.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *routes.FileError
	if !errors.As(err, &fe) {
		middleware.WriteError(w, http.StatusBadRequest, "invalid_route", err.Error())
		return
	}

	status, code := fileErrorStatus(fe.Kind)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Route file operation failed",
			"op", fe.Op,
			"route_id", fe.ID,
			"path", fe.Path,
			"error", fe.Err,
		)
	} else {
		h.logger.WarnContext(r.Context(), "Route file operation refused",
			"op", fe.Op,
			"route_id", fe.ID,
			"kind", fe.Kind.String(),
			"error", fe.Err,
		)
	}
	middleware.WriteError(w, status, code, fe.Error())
}

func fileErrorStatus(kind routes.FileErrorKind) (int, string) {
	switch kind {
	case routes.NotFound:
		return http.StatusNotFound, "not_found"
	case routes.FileLocked:
		return http.StatusConflict, "file_locked"
	case routes.PermissionDenied:
		return http.StatusForbidden, "permission_denied"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}
