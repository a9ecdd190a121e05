package routes

// Reload results reported to a Recorder.
const (
	ReloadApplied    = "applied"
	ReloadRemoved    = "removed"
	ReloadParseError = "parse_error"
	ReloadIOError    = "io_error"
	ReloadSkipped    = "skipped"
)

// Certificate load results reported to a Recorder.
const (
	CertificateLoaded   = "loaded"
	CertificateMissing  = "missing"
	CertificateRejected = "rejected"
)

// Recorder receives hot-reload measurements. The telemetry metrics
// collector implements it.
type Recorder interface {
	RecordRouteReload(result string)
	RecordCertificateLoad(result string)
	SetActiveRoutes(n int)
	SetCertificates(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRouteReload(string)     {}
func (nopRecorder) RecordCertificateLoad(string) {}
func (nopRecorder) SetActiveRoutes(int)          {}
func (nopRecorder) SetCertificates(int)          {}
