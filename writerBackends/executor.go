package writerbackends

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"docrelay/storage"
	"docrelay/utils"
)

// Backend types accepted by StageSource.
const (
	BackendSidecar     = "sidecar"
	BackendDirectServe = "directServe"
	BackendS3          = "s3"
	BackendGCS         = "gcs"
	BackendSFTP        = "sftp"
)

const defaultURLExpiry = 15 * time.Minute

// StageSource stores data under name on the chosen backend and returns a URL
// the conversion engine can fetch it from.
func StageSource(ctx context.Context, backendType string, accessInfo map[string]string, name string, data []byte) (string, error) {
	safeName, err := storage.SanitizeFilename(name)
	if err != nil {
		return "", err
	}

	var fileURL string
	switch backendType {
	case BackendSidecar, "":
		fileURL, err = UploadToSidecar(ctx, accessInfo, safeName, data)
		if err != nil {
			return "", fmt.Errorf("failed to upload to storage sidecar: %w", err)
		}
	case BackendDirectServe:
		fileURL, err = UploadToDirectServe(ctx, accessInfo, safeName, data)
		if err != nil {
			return "", fmt.Errorf("failed to upload to direct serve: %w", err)
		}
	case BackendS3:
		fileURL, err = UploadToS3WithCreds(ctx, accessInfo, safeName, data)
		if err != nil {
			return "", fmt.Errorf("failed to upload to S3: %w", err)
		}
	case BackendGCS:
		fileURL, err = UploadToGCSWithJSON(ctx, accessInfo, safeName, data)
		if err != nil {
			return "", fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case BackendSFTP:
		fileURL, err = UploadToSFTPWithCreds(ctx, accessInfo, safeName, data)
		if err != nil {
			return "", fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown backend type: %s", backendType)
	}
	return fileURL, nil
}

// Stager binds a backend and its access info; it satisfies converter.Stager.
type Stager struct {
	Backend    string
	AccessInfo map[string]string
}

func (s Stager) Stage(ctx context.Context, name string, data []byte) (string, error) {
	return StageSource(ctx, s.Backend, s.AccessInfo, name, data)
}

// objectKey places each staged file under a random directory so concurrent
// jobs with the same file name do not overwrite each other in a bucket.
func objectKey(prefix, name string) (string, error) {
	id, err := utils.GenerateRandomHex(8)
	if err != nil {
		return "", err
	}
	return path.Join(strings.Trim(prefix, "/"), id, name), nil
}

func urlExpiry(accessInfo map[string]string) (time.Duration, error) {
	raw := accessInfo["expires"]
	if raw == "" {
		return defaultURLExpiry, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid expires %q", raw)
	}
	return d, nil
}
