package models

// JobDescriptor is the request body sent to the conversion engine's
// /converter endpoint. Built once per conversion call and never modified.
type JobDescriptor struct {
	Async      bool   `json:"async"`      // always false, conversion is synchronous
	FileType   string `json:"filetype"`   // source extension, lowercase, no dot
	Key        string `json:"key"`        // unique per job
	OutputType string `json:"outputtype"` // target extension
	Title      string `json:"title"`      // display / file name
	URL        string `json:"url"`        // where the engine fetches the source
	Token      string `json:"token,omitempty"`
}

// TokenFields returns the fields covered by the signed token.
func (d JobDescriptor) TokenFields() map[string]string {
	return map[string]string{
		"filetype":   d.FileType,
		"key":        d.Key,
		"outputtype": d.OutputType,
		"title":      d.Title,
		"url":        d.URL,
	}
}

// ConversionResult is the engine's JSON answer to a conversion request.
type ConversionResult struct {
	EndConvert bool   `json:"endConvert"`
	FileURL    string `json:"fileUrl,omitempty"`
	Percent    int    `json:"percent"`
	Error      *int   `json:"error,omitempty"`
}

// Failed reports whether the engine returned a non-zero error code.
func (r ConversionResult) Failed() bool {
	return r.Error != nil && *r.Error != 0
}
