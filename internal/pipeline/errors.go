package pipeline

import (
	"context"
	"errors"

	"github.com/obiente/spendvoice/internal/capture"
	"github.com/obiente/spendvoice/internal/extract"
	"github.com/obiente/spendvoice/internal/transcribe"
)

// Error codes sent to clients.
const (
	CodeDeviceUnavailable     = "device_unavailable"
	CodeEmptyCapture          = "empty_capture"
	CodeInvalidDuration       = "invalid_duration"
	CodeModelUnavailable      = "model_unavailable"
	CodeNoTranscriptionOutput = "no_transcription_output"
	CodeExtractionUnavailable = "extraction_unavailable"
	CodeExtractionFailed      = "extraction_failed"
	CodeEmptyInput            = "empty_input"
	CodeCancelled             = "cancelled"
	CodeInternal              = "internal"
)

// Describe maps err to a client-facing code and message.
func Describe(err error) (code, message string) {
	switch {
	case err == nil:
		return "", ""
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return CodeDeviceUnavailable, "No audio input device is available."
	case errors.Is(err, capture.ErrEmptyCapture):
		return CodeEmptyCapture, "Nothing was recorded. Try again."
	case errors.Is(err, capture.ErrInvalidDuration):
		return CodeInvalidDuration, err.Error()
	case errors.Is(err, transcribe.ErrModelUnavailable):
		return CodeModelUnavailable, "The speech model is not available: " + err.Error()
	case errors.Is(err, transcribe.ErrNoOutput):
		return CodeNoTranscriptionOutput, "No transcription output. Try recording again."
	case errors.Is(err, extract.ErrUnavailable):
		return CodeExtractionUnavailable, "Extraction is not available: " + err.Error()
	case errors.Is(err, extract.ErrFailed):
		return CodeExtractionFailed, "Extraction failed: " + err.Error()
	case errors.Is(err, extract.ErrEmptyInput):
		return CodeEmptyInput, "There is no text to extract from."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled, "The request was cancelled."
	default:
		return CodeInternal, err.Error()
	}
}
