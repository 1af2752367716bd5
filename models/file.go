package models

// StoredFile describes an artifact written into the sidecar's storage root.
type StoredFile struct {
	Name string // sanitized, no separators
	Path string // absolute path inside the storage root
	Size int64
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	FileURL  string `json:"fileUrl"`
	Filename string `json:"filename"`
}

// ErrorResponse is the body of every sidecar error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InfoResponse is returned by GET /.
type InfoResponse struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Status      string `json:"status"`
	StoragePath string `json:"storagePath"`
}
