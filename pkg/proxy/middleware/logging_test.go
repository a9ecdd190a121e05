package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoggingMiddleware(t *testing.T) {
	t.Run("captures status and start time", func(t *testing.T) {
		var start time.Time
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start = GetStartTime(r.Context())
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("short and stout"))
		})

		req := httptest.NewRequest(http.MethodGet, "/pot", nil)
		w := httptest.NewRecorder()

		LoggingMiddleware(handler).ServeHTTP(w, req)

		if w.Code != http.StatusTeapot {
			t.Errorf("Status code = %v, want %v", w.Code, http.StatusTeapot)
		}
		if start.IsZero() {
			t.Error("start time should be stored in context")
		}
	})

	t.Run("flush reaches underlying writer", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("data: 1\n\n"))
			if err := http.NewResponseController(w).Flush(); err != nil {
				t.Errorf("Flush() error = %v", err)
			}
		})

		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		w := httptest.NewRecorder()

		LoggingMiddleware(handler).ServeHTTP(w, req)

		if !w.Flushed {
			t.Error("recorder was not flushed")
		}
	})
}

func TestResponseWriter(t *testing.T) {
	w := httptest.NewRecorder()
	rw := newResponseWriter(w)

	n, err := rw.Write([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	rw.WriteHeader(http.StatusInternalServerError)

	if rw.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want implicit 200", rw.statusCode)
	}
	if rw.bytes != 5 {
		t.Errorf("bytes = %d, want 5", rw.bytes)
	}
	if rw.Unwrap() != w {
		t.Error("Unwrap() should return the wrapped writer")
	}
}

func TestGetStartTime_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetStartTime(req.Context()); !got.IsZero() {
		t.Errorf("GetStartTime() = %v, want zero", got)
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLoggingMiddleware_AbortedStreamIsLogged(t *testing.T) {
	logs := captureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("data: partial\n\n"))
		panic(http.ErrAbortHandler)
	})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()

	func() {
		defer func() {
			if p := recover(); p != http.ErrAbortHandler {
				t.Errorf("recovered %v, want http.ErrAbortHandler to keep unwinding", p)
			}
		}()
		RecoveryMiddleware(LoggingMiddleware(handler)).ServeHTTP(w, req)
	}()

	var entry map[string]any
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", logs.String(), err)
	}
	if entry["msg"] != "request completed" {
		t.Errorf("msg = %v, want request completed", entry["msg"])
	}
	if entry["aborted"] != true {
		t.Errorf("aborted = %v, want true", entry["aborted"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want the status already sent", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
}

func TestLoggingMiddleware_PanicBeforeHeaderLogs500(t *testing.T) {
	logs := captureLogs(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	RecoveryMiddleware(LoggingMiddleware(handler)).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !bytes.Contains(logs.Bytes(), []byte(`"msg":"request completed"`)) ||
		!bytes.Contains(logs.Bytes(), []byte(`"status":500`)) {
		t.Errorf("access log missing or wrong: %s", logs.String())
	}
}
