package converter

import (
	"path/filepath"
	"strings"
)

const defaultSourceFormat = "docx"

// SourceFormat is the file's extension, lower-cased and without the dot.
// Names without an extension are treated as docx.
func SourceFormat(fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		return defaultSourceFormat
	}
	return ext
}

// OutputFormatFor picks the default target format for a source extension.
func OutputFormatFor(ext string) string {
	switch strings.TrimPrefix(strings.ToLower(ext), ".") {
	case "docx", "doc", "odt", "rtf", "txt",
		"xlsx", "xls", "ods", "csv",
		"pptx", "ppt", "odp":
		return "pdf"
	case "pdf":
		return "docx"
	default:
		return "pdf"
	}
}

// OutputPath places the converted file next to input with the new extension.
func OutputPath(input, format string) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "." + strings.ToLower(format)
}
