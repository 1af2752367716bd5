// Package converter drives one document conversion against the remote
// engine: stage the source, submit a signed job descriptor, fetch the result.
package converter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docrelay/logger"
	"docrelay/models"
	"docrelay/utils"
)

const defaultPollInterval = time.Second

// Stager makes source bytes reachable by the engine and returns their URL.
type Stager interface {
	Stage(ctx context.Context, name string, data []byte) (string, error)
}

// Recorder is told about every finished conversion, successful or not.
type Recorder interface {
	Record(desc models.JobDescriptor, resultURL string, size int, elapsed time.Duration, err error)
}

// Config configures a Converter.
type Config struct {
	EngineURL  string
	JWTSecret  string       // empty disables request signing
	HTTPClient *http.Client // defaults to a client without timeout; ctx bounds calls

	// PollAttempts is how many times an unfinished answer is resubmitted
	// under the same key. Zero means the first answer is final.
	PollAttempts int
	PollInterval time.Duration

	Recorder Recorder
}

// Converter is safe for sequential use; each Convert is independent.
type Converter struct {
	cfg    Config
	stager Stager
	client *http.Client
}

func New(cfg Config, stager Stager) *Converter {
	cfg.EngineURL = strings.TrimRight(cfg.EngineURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Converter{cfg: cfg, stager: stager, client: client}
}

// ConvertFile reads path and converts it. A missing file fails before any
// network call.
func (c *Converter) ConvertFile(ctx context.Context, path, outputFormat string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.Convert(ctx, data, filepath.Base(path), outputFormat)
}

// Convert runs the full chain for one document and returns the converted
// bytes. Every step runs at most once unless polling is enabled.
func (c *Converter) Convert(ctx context.Context, data []byte, fileName, outputFormat string) (result []byte, err error) {
	start := time.Now()
	desc := models.JobDescriptor{
		Async:      false,
		FileType:   SourceFormat(fileName),
		Key:        utils.NewJobKey(),
		OutputType: strings.ToLower(outputFormat),
		Title:      fileName,
	}

	var resultURL string
	if c.cfg.Recorder != nil {
		defer func() {
			c.cfg.Recorder.Record(desc, resultURL, len(result), time.Since(start), err)
		}()
	}

	logger.Infof("Converting '%s' (%d bytes) from %s to %s, job %s",
		fileName, len(data), desc.FileType, desc.OutputType, desc.Key)

	sourceURL, err := c.stager.Stage(ctx, fileName, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	if sourceURL == "" {
		return nil, fmt.Errorf("%w: stager returned no URL", ErrUploadFailed)
	}
	desc.URL = sourceURL
	logger.Infof("Source staged at %s", sourceURL)

	if desc.Token, err = utils.Sign(desc.TokenFields(), c.cfg.JWTSecret); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConversionRequestFailed, err)
	}

	res, err := c.await(ctx, desc)
	if err != nil {
		return nil, err
	}

	resultURL = res.FileURL
	logger.Infof("Downloading converted file from %s", res.FileURL)
	result, err = c.download(ctx, res.FileURL)
	if err != nil {
		return nil, err
	}

	logger.Infof("Conversion of '%s' finished in %s (%d bytes)", fileName, time.Since(start).Round(time.Millisecond), len(result))
	return result, nil
}

// await submits desc and, when polling is enabled, resubmits it while the
// engine reports an unfinished conversion.
func (c *Converter) await(ctx context.Context, desc models.JobDescriptor) (*models.ConversionResult, error) {
	state := stateSubmitted
	for attempt := 0; ; attempt++ {
		res, err := c.submit(ctx, desc)
		if err != nil {
			logger.Debugf("Job %s: %s -> %s", desc.Key, state, stateFailed)
			return nil, err
		}

		switch {
		case res.Failed():
			logger.Debugf("Job %s: %s -> %s", desc.Key, state, stateFailed)
			engineErr := &EngineError{Code: *res.Error}
			logger.Errorf("Engine rejected job %s: %v", desc.Key, engineErr)
			return nil, engineErr
		case res.FileURL != "":
			logger.Debugf("Job %s: %s -> %s", desc.Key, state, stateComplete)
			return res, nil
		case res.EndConvert || attempt >= c.cfg.PollAttempts:
			logger.Debugf("Job %s: %s -> %s", desc.Key, state, stateFailed)
			return nil, fmt.Errorf("%w: endConvert=%t percent=%d", ErrConversionIncomplete, res.EndConvert, res.Percent)
		}

		state = statePolling
		logger.Infof("Job %s at %d%%, polling again in %s", desc.Key, res.Percent, c.cfg.PollInterval)

		timer := time.NewTimer(c.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %w", ErrConversionIncomplete, ctx.Err())
		case <-timer.C:
		}
	}
}
