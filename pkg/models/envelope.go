package models

import "time"

// EnvelopeStatus summarizes the outcome of a tool call.
type EnvelopeStatus string

const (
	EnvelopeStatusOK      EnvelopeStatus = "ok"
	EnvelopeStatusWarning EnvelopeStatus = "warning"
	EnvelopeStatusError   EnvelopeStatus = "error"
)

// EnvelopeError is one structured failure inside an envelope. Code is stable
// (INVALID_PARAMETER, VALIDATION_ERROR, NOT_FOUND,
// NOT_FOUND_IN_EXPECTED_STATUS, IO_ERROR) so automated callers can branch
// on it; Field and Path narrow the failure when known.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Audit carries call metadata for every envelope.
type Audit struct {
	Timestamp  time.Time `json:"timestamp"`
	DurationMS int64     `json:"duration_ms"`
	Source     string    `json:"source"`
}

// Envelope is the uniform result wrapper returned by every tool call.
// Status is derived mechanically: error if any errors present, else warning
// if any warnings present, else ok.
type Envelope struct {
	Status   EnvelopeStatus  `json:"status"`
	Summary  string          `json:"summary,omitempty"`
	Data     any             `json:"data,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Errors   []EnvelopeError `json:"errors,omitempty"`
	Audit    Audit           `json:"audit"`
}

// Finalize derives the envelope status from its errors and warnings.
func (e *Envelope) Finalize() {
	switch {
	case len(e.Errors) > 0:
		e.Status = EnvelopeStatusError
	case len(e.Warnings) > 0:
		e.Status = EnvelopeStatusWarning
	default:
		e.Status = EnvelopeStatusOK
	}
}
