package writerbackends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docrelay/logger"
	"docrelay/models"
	"docrelay/utils"
)

const uploadTokenTTL = 5 * time.Minute

var sidecarClient = &http.Client{}

// UploadToSidecar posts data as a multipart form to the storage sidecar and
// returns the fileUrl it answers with.
// accessInfo: url (sidecar base URL), uploadSecret (optional).
func UploadToSidecar(ctx context.Context, accessInfo map[string]string, name string, data []byte) (string, error) {
	baseURL := strings.TrimRight(accessInfo["url"], "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing required accessInfo key: url")
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart body: %w", err)
	}

	endpoint := baseURL + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	if secret := accessInfo["uploadSecret"]; secret != "" {
		token, err := utils.CreateUploadToken(name, secret, uploadTokenTTL)
		if err != nil {
			return "", fmt.Errorf("create upload token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debugf("Posting '%s' (%d bytes) to %s", name, len(data), endpoint)
	resp, err := sidecarClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("upload returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var uploaded models.UploadResponse
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if uploaded.FileURL == "" {
		return "", fmt.Errorf("upload response has no fileUrl")
	}

	logger.Infof("Successfully uploaded '%s' to %s", name, uploaded.FileURL)
	return uploaded.FileURL, nil
}
