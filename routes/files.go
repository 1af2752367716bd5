package routes

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"docrelay/logger"
	"docrelay/storage"
)

// fileName extracts and decodes the name after /files/. The escaped form is
// used so "%2f" is decoded here and then rejected, never routed.
func fileName(r *http.Request) (string, error) {
	escaped := r.URL.EscapedPath()
	if strings.HasPrefix(escaped, filesPrefix) {
		return url.PathUnescape(strings.TrimPrefix(escaped, filesPrefix))
	}
	return strings.TrimPrefix(r.URL.Path, filesPrefix), nil
}

// FileHandler serves a stored file by name.
func (h *Handler) FileHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}

	name, err := fileName(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file name encoding")
		return
	}
	if name == "" {
		writeError(w, http.StatusBadRequest, "File name required")
		return
	}
	if err := storage.ValidateName(name); err != nil {
		logger.Warnf("Rejected download of %q from %s: %v", name, r.RemoteAddr, err)
		writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	f, info, err := h.store.Open(name)
	switch {
	case errors.Is(err, storage.ErrFileNotFound):
		logger.Debugf("File not found: %s", name)
		writeError(w, http.StatusNotFound, "File not found")
		return
	case errors.Is(err, storage.ErrUnsafeFilename):
		logger.Warnf("Rejected download of %q: %v", name, err)
		writeError(w, http.StatusForbidden, "Access denied")
		return
	case err != nil:
		logger.Errorf("Failed to open %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}

	n, err := io.Copy(w, f)
	if err != nil {
		logger.Errorf("Failed to send %s after %d bytes: %v", name, n, err)
		return
	}
	logger.Debugf("File downloaded: %s (%d bytes)", name, n)
}
