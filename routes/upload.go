package routes

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"docrelay/logger"
	"docrelay/models"
	"docrelay/storage"
	"docrelay/utils"
)

// verifyUploadToken checks the bearer token when upload auth is enabled
func (h *Handler) verifyUploadToken(r *http.Request) (*models.UploadClaims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("authorization header required")
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	return utils.VerifyUploadToken(token, utils.VerifyConfig{SecretKey: h.opts.UploadSecret})
}

// nextFilePart advances to the first part that carries a filename parameter.
// Form fields before it are skipped. Raw parts are used so the body bytes are
// never transfer-decoded.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, string, error) {
	for {
		part, err := mr.NextRawPart()
		if err == io.EOF {
			return nil, "", fmt.Errorf("%w: no file found in upload", storage.ErrMalformedUpload)
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", storage.ErrMalformedUpload, err)
		}

		_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		if err != nil {
			part.Close()
			continue
		}
		raw, ok := params["filename"]
		if !ok {
			part.Close()
			continue
		}

		name, err := storage.SanitizeFilename(raw)
		if err != nil {
			part.Close()
			return nil, "", fmt.Errorf("%w: invalid filename: %w", storage.ErrMalformedUpload, err)
		}
		return part, name, nil
	}
}

// bodyReader tags errors from the client side of the copy, so a truncated
// body is reported as a bad upload rather than a storage failure.
type bodyReader struct {
	r io.Reader
}

func (b bodyReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		err = fmt.Errorf("%w: %w", storage.ErrMalformedUpload, err)
	}
	return n, err
}

func (h *Handler) publicBaseURL(r *http.Request) string {
	if h.opts.PublicURL != "" {
		return h.opts.PublicURL
	}
	return "http://" + r.Host
}

// uploadErrorStatus maps an upload failure to its HTTP status.
func uploadErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, storage.ErrMalformedUpload), errors.Is(err, storage.ErrUnsafeFilename):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// UploadHandler stores the single file part of a multipart/form-data body
// and answers with the URL it can be fetched from.
func (h *Handler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var claims *models.UploadClaims
	if len(h.opts.UploadSecret) > 0 {
		var err error
		claims, err = h.verifyUploadToken(r)
		if err != nil {
			logger.Warnf("Rejected upload from %s: %v", r.RemoteAddr, err)
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
			return
		}
	}

	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be multipart/form-data")
		return
	}
	boundary := params["boundary"]
	if boundary == "" {
		writeError(w, http.StatusBadRequest, "Missing multipart boundary")
		return
	}

	if h.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	}

	part, filename, err := nextFilePart(multipart.NewReader(r.Body, boundary))
	if err != nil {
		logger.Warnf("Malformed upload from %s: %v", r.RemoteAddr, err)
		writeError(w, uploadErrorStatus(err), err.Error())
		return
	}
	defer part.Close()

	if claims != nil && claims.Subject != filename {
		logger.Warnf("Upload token for '%s' used for '%s'", claims.Subject, filename)
		writeError(w, http.StatusUnauthorized, "Invalid token: "+utils.ErrSubjectMismatch.Error())
		return
	}

	stored, err := h.store.Save(filename, bodyReader{r: part})
	if err != nil {
		status := uploadErrorStatus(err)
		if status == http.StatusInternalServerError {
			logger.Errorf("Failed to store upload '%s': %v", filename, err)
			writeError(w, status, "Failed to save file")
		} else {
			logger.Warnf("Rejected upload '%s': %v", filename, err)
			writeError(w, status, err.Error())
		}
		return
	}

	logger.Infof("File uploaded: %s (%d bytes)", stored.Name, stored.Size)

	writeJSON(w, http.StatusOK, models.UploadResponse{
		FileURL:  h.publicBaseURL(r) + filesPrefix + url.PathEscape(stored.Name),
		Filename: stored.Name,
	})
}
