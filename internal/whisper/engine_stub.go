//go:build !whisper_cpp

package whisper

// NewEngine always fails so callers can report the model as unavailable
// instead of producing empty transcripts.
func NewEngine(opts Options) (Engine, error) { return nil, ErrNotCompiled }
