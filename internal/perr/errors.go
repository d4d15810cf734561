// Package perr defines the typed error taxonomy every pipeline component
// surfaces instead of opaque strings, so callers can branch with errors.As
// rather than substring matching.
package perr

import "fmt"

// SourceMissing means the input file is not present on disk.
type SourceMissing struct{ Path string }

func (e *SourceMissing) Error() string { return fmt.Sprintf("source missing: %s", e.Path) }

// APIKeyMissing means remote transcription was requested without a key.
type APIKeyMissing struct{}

func (e *APIKeyMissing) Error() string { return "api key missing" }

// Busy means a job was requested while another is already active.
type Busy struct{}

func (e *Busy) Error() string { return "busy" }

// InvalidResponse means a remote payload could not be interpreted.
type InvalidResponse struct{ Message string }

func (e *InvalidResponse) Error() string { return fmt.Sprintf("invalid response: %s", e.Message) }

// RemoteRequestFailed covers network/HTTP/timeout failures talking to the
// remote transcription API.
type RemoteRequestFailed struct{ Message string }

func (e *RemoteRequestFailed) Error() string { return e.Message }

// FallbackUnavailable means the local engine could not run at all.
type FallbackUnavailable struct{ Message string }

func (e *FallbackUnavailable) Error() string {
	return fmt.Sprintf("fallback unavailable: %s", e.Message)
}

// LowSpeakerConfidence means the fallback quality gate failed.
type LowSpeakerConfidence struct{ Message string }

func (e *LowSpeakerConfidence) Error() string {
	return fmt.Sprintf("low speaker confidence: %s", e.Message)
}

// ParsingFailed covers editor-text parse failures and media-probe failures.
type ParsingFailed struct{ Message string }

func (e *ParsingFailed) Error() string { return fmt.Sprintf("parsing failed: %s", e.Message) }
