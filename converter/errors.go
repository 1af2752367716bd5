package converter

import (
	"errors"
	"fmt"
)

var (
	ErrSourceNotFound          = errors.New("source file not found")
	ErrUploadFailed            = errors.New("failed to stage source file")
	ErrConversionRequestFailed = errors.New("conversion request failed")
	ErrConversionEngineError   = errors.New("conversion engine reported an error")
	ErrConversionIncomplete    = errors.New("conversion returned no result")
	ErrResultDownloadFailed    = errors.New("failed to download conversion result")
)

// engineErrorDescriptions are the document server's conversion error codes.
var engineErrorDescriptions = map[int]string{
	-1:  "unknown error",
	-2:  "conversion timeout",
	-3:  "conversion error",
	-4:  "error while downloading the source document",
	-5:  "incorrect password",
	-6:  "error while accessing the conversion result database",
	-7:  "input error",
	-8:  "invalid token",
	-9:  "output format could not be determined",
	-10: "size limit exceeded",
}

// EngineError carries the non-zero error code returned by the engine.
type EngineError struct {
	Code int
}

func (e *EngineError) Error() string {
	if desc, ok := engineErrorDescriptions[e.Code]; ok {
		return fmt.Sprintf("%s: code %d (%s)", ErrConversionEngineError, e.Code, desc)
	}
	return fmt.Sprintf("%s: code %d", ErrConversionEngineError, e.Code)
}

func (e *EngineError) Is(target error) bool {
	return target == ErrConversionEngineError
}
