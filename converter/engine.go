package converter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"docrelay/logger"
	"docrelay/models"
)

// maxSnippet bounds how much of an error body ends up in messages.
const maxSnippet = 512

// maxEngineResponse bounds the engine's JSON answer.
const maxEngineResponse = 1 << 20

func snippet(body []byte) string {
	if len(body) > maxSnippet {
		return string(body[:maxSnippet]) + "..."
	}
	return string(body)
}

// submit posts one descriptor to the engine and decodes its answer.
func (c *Converter) submit(ctx context.Context, desc models.JobDescriptor) (*models.ConversionResult, error) {
	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode request: %w", ErrConversionRequestFailed, err)
	}

	endpoint := c.cfg.EngineURL + "/converter"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConversionRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logger.Debugf("Sending conversion request to %s: filetype=%s outputtype=%s url=%s token=%t",
		endpoint, desc.FileType, desc.OutputType, desc.URL, desc.Token != "")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConversionRequestFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEngineResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrConversionRequestFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrConversionRequestFailed, resp.StatusCode, snippet(body))
	}

	logger.Debugf("Conversion response: %s", snippet(body))

	var result models.ConversionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: invalid response %q: %w", ErrConversionRequestFailed, snippet(body), err)
	}
	return &result, nil
}

// download fetches the converted document.
func (c *Converter) download(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResultDownloadFailed, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResultDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxSnippet))
		return nil, fmt.Errorf("%w: status %d: %s", ErrResultDownloadFailed, resp.StatusCode, snippet(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResultDownloadFailed, err)
	}
	return data, nil
}
