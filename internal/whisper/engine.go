// Package whisper wraps a local whisper.cpp model. The real engine needs cgo
// and the whisper_cpp build tag; without it NewEngine reports ErrNotCompiled.
package whisper

import "errors"

// SampleRate is the only input rate whisper accepts.
const SampleRate = 16000

// ErrNotCompiled is returned by NewEngine in builds without whisper_cpp.
var ErrNotCompiled = errors.New("whisper: built without whisper_cpp support")

// Engine transcribes one utterance at a time.
type Engine interface {
	// Process runs a full transcription over mono 16 kHz PCM32F samples and
	// returns the joined segment text and the detected language.
	Process(samples []float32) (text, lang string, err error)
	Close() error
}

// Options for NewEngine.
type Options struct {
	ModelPath string
	// Threads defaults to the number of CPUs.
	Threads  int
	Language string
}
