// Package capture defines the core types and the orchestration pipeline for a
// browser network capture run: navigate, wait, fetch, filter, persist.
package capture

import (
	"time"
)

// WaitMode selects the strategy applied between navigation and fetching the
// network record set.
type WaitMode string

// Wait modes accepted in configuration.
const (
	WaitModeNetworkIdle WaitMode = "networkidle"
	WaitModeSleep       WaitMode = "sleep"
)

// Default status bounds. A run configured with exactly these bounds is treated
// as having no status filter.
const (
	DefaultStatusMin = 0
	DefaultStatusMax = 999
)

// Request is the immutable configuration for one capture run, assembled once
// from layered config sources before the orchestrator starts.
type Request struct {
	URL         string
	WaitMode    WaitMode
	WaitTimeout time.Duration

	// OutputPath is a path template; a {ts} token is replaced with the run
	// timestamp and a leading ~ expands to the user's home directory.
	OutputPath string

	URLPattern string
	Method     string
	StatusMin  int
	StatusMax  int
}

// RequestInfo describes the request half of an observed network exchange.
type RequestInfo struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers,omitempty"`
	PostData string            `json:"postData,omitempty"`
}

// ResponseInfo describes the response half of an observed network exchange.
// A nil ResponseInfo means the response was never observed (in-flight or
// failed request).
type ResponseInfo struct {
	Status  int                `json:"status"`
	Headers map[string]string  `json:"headers,omitempty"`
	Timing  map[string]float64 `json:"timing,omitempty"`
}

// NetworkRecord is one request/response pair reported by the browser
// provider. Records are immutable once received.
type NetworkRecord struct {
	Request  RequestInfo
	Response *ResponseInfo
	Observed time.Time
}

// Result is the final artifact of a successful run.
type Result struct {
	RunID      string
	Records    []NetworkRecord
	OutputPath string
	CapturedAt time.Time
}
