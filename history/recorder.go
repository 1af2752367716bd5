package history

import (
	"time"

	"docrelay/logger"
	"docrelay/models"
)

// Recorder stores every finished conversion in the history database.
type Recorder struct{}

func (Recorder) Record(desc models.JobDescriptor, resultURL string, size int, elapsed time.Duration, err error) {
	rec := Record{
		Key:          desc.Key,
		Title:        desc.Title,
		SourceFormat: desc.FileType,
		OutputFormat: desc.OutputType,
		SourceURL:    desc.URL,
		ResultURL:    resultURL,
		Status:       StatusSuccess,
		Size:         size,
		Duration:     elapsed,
		Timestamp:    time.Now(),
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
	}

	if storeErr := Store(rec); storeErr != nil {
		logger.Warnf("Failed to record conversion %s: %v", desc.Key, storeErr)
	}
}
