package routes

import (
	"net/http"
	"strings"
	"time"

	"docrelay/logger"
	"docrelay/storage"
)

const filesPrefix = "/files/"

// Options configures the sidecar handlers.
type Options struct {
	// PublicURL is the base of returned file URLs, e.g. "http://storage:8000".
	// Empty means "http://" + the Host the upload was sent to.
	PublicURL string
	// MaxUploadBytes caps request bodies on /upload. Zero disables the cap.
	MaxUploadBytes int64
	// UploadSecret enables bearer-token authentication on /upload.
	UploadSecret []byte
	// StoragePath is reported by the info endpoint.
	StoragePath string
}

// Handler serves the storage sidecar API.
//
// It dispatches on the raw request path itself instead of using
// http.ServeMux: the mux cleans "..", and redirects, before a handler could
// reject the name.
type Handler struct {
	store *storage.Store
	opts  Options
}

func NewHandler(store *storage.Store, opts Options) *Handler {
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	if opts.StoragePath == "" {
		opts.StoragePath = store.Root()
	}
	return &Handler{store: store, opts: opts}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	defer func() {
		if p := recover(); p != nil {
			logger.Errorf("Panic while handling %s %s: %v", r.Method, r.URL.Path, p)
			if !rec.wroteHeader {
				writeError(rec, http.StatusInternalServerError, "Internal server error")
			}
		}
		logger.Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	}()

	path := r.URL.Path
	switch {
	case path == "/upload":
		h.UploadHandler(rec, r)
	case strings.HasPrefix(path, filesPrefix):
		h.FileHandler(rec, r)
	case path == "/health":
		HealthHandler(rec, r)
	case path == "/version":
		VersionHandler(rec, r)
	case path == "/":
		h.InfoHandler(rec, r)
	default:
		writeError(rec, http.StatusNotFound, "Not found")
	}
}

// statusRecorder remembers the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.wroteHeader {
		return
	}
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}
