package models

import "time"

// ParseRequest describes one parse invocation. It is owned by a single
// invocation and must not be mutated after creation.
type ParseRequest struct {
	ArchivePath string     `json:"archivePath"`
	Mode        string     `json:"mode"`
	Timezone    string     `json:"timezone"`
	Start       *time.Time `json:"start,omitempty"`
	End         *time.Time `json:"end,omitempty"`
}

// ParseResult is the outcome of one parse invocation. ParsedData holds
// the mode-specific records (slice or single record per mode) and
// RawOutput is a plain-text rendering of the same data for audit.
type ParseResult struct {
	Mode        string       `json:"mode"`
	RawOutput   string       `json:"raw_output"`
	ParsedData  interface{}  `json:"parsed_data"`
	Errors      []ParseError `json:"errors,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
	Cancelled   bool         `json:"cancelled"`
	LineCount   int          `json:"lineCount"`
	RecordCount int          `json:"recordCount"`
}

// ParseError represents a per-line decode problem. One bad line never
// aborts a parse; these accumulate alongside the successful records.
type ParseError struct {
	Line    int    `json:"line"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}
