package writerbackends

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"docrelay/logger"
	"docrelay/storage"
)

// UploadToDirectServe writes straight into a storage root that a sidecar on
// the same volume serves under /files/.
// accessInfo: baseDir, publicUrl.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, name string, data []byte) (string, error) {
	baseDir := accessInfo["baseDir"]
	publicURL := strings.TrimRight(accessInfo["publicUrl"], "/")
	if baseDir == "" || publicURL == "" {
		return "", fmt.Errorf("missing required accessInfo keys: baseDir, publicUrl")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	store, err := storage.NewStore(baseDir)
	if err != nil {
		return "", err
	}
	stored, err := store.Save(name, bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	logger.Infof("Successfully saved file '%s' to '%s'", stored.Name, stored.Path)
	return publicURL + "/files/" + url.PathEscape(stored.Name), nil
}
