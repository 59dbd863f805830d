// Package capture acquires bounded audio clips from a microphone source:
// either a stream of chunks pushed by a browser, or a local input device.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/audio"
)

var (
	// ErrDeviceUnavailable is returned when no input device can be opened.
	ErrDeviceUnavailable = errors.New("capture: no input device available")
	// ErrEmptyCapture is returned when capture ends without a single frame.
	ErrEmptyCapture = errors.New("capture: no audio frames captured")
	// ErrInvalidDuration is returned for a requested duration outside the bounds.
	ErrInvalidDuration = errors.New("capture: duration out of range")
	// ErrLimitReached is returned by Recorder.Write once the maximum duration
	// has been buffered. The clip is still valid and can be finished.
	ErrLimitReached = errors.New("capture: maximum duration reached")
	// ErrStopped is returned when writing to a finished recorder.
	ErrStopped = errors.New("capture: recorder stopped")
)

const (
	// MinDuration and MaxDuration bound user-configured capture lengths.
	MinDuration = time.Second
	MaxDuration = 30 * time.Second
)

// Format is the PCM layout of a capture.
type Format struct {
	SampleRate int
	Channels   int
}

// ValidateDuration checks a requested capture length. Zero means open-ended
// (until stop, capped by max) and is always valid.
func ValidateDuration(d, max time.Duration) error {
	if max <= 0 || max > MaxDuration {
		max = MaxDuration
	}
	if d == 0 {
		return nil
	}
	if d < MinDuration || d > max {
		return fmt.Errorf("%w: %s not within [%s, %s]", ErrInvalidDuration, d, MinDuration, max)
	}
	return nil
}

// Request describes one device capture.
type Request struct {
	// Duration is the fixed capture length. Zero records until the stop
	// channel fires or Max elapses.
	Duration time.Duration
	Max      time.Duration
	Format   Format
}

// DeviceInfo describes an input device.
type DeviceInfo struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	Default           bool
}

// Device is a local microphone source.
type Device interface {
	// Devices lists the available input devices.
	Devices() ([]DeviceInfo, error)
	// Record captures one clip. It returns when the requested duration has
	// been captured, stop is closed, Max elapses, or ctx is done.
	Record(ctx context.Context, req Request, stop <-chan struct{}) (audio.Clip, error)
}

// Recorder accumulates streamed chunks into a single clip in a fixed format.
// It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	format    Format
	maxFrames int
	samples   []int16
	stopped   bool
}

// NewRecorder creates a Recorder that converts every chunk to f and stops
// accepting audio once max has been buffered.
func NewRecorder(f Format, max time.Duration) *Recorder {
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	if max <= 0 || max > MaxDuration {
		max = MaxDuration
	}
	return &Recorder{
		format:    f,
		maxFrames: int(int64(f.SampleRate) * int64(max) / int64(time.Second)),
	}
}

// Format returns the recorder's output format.
func (r *Recorder) Format() Format { return r.format }

// Write appends a chunk. Chunks in another format are converted first. When
// the chunk crosses the limit it is truncated and ErrLimitReached returned.
func (r *Recorder) Write(c audio.Clip) error {
	if c.Empty() {
		return nil
	}
	// A trailing partial frame would shift every later sample onto the
	// wrong channel.
	c.Samples = c.Samples[:c.Frames()*c.Channels]
	c = audio.Convert(c, r.format.SampleRate, r.format.Channels)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	have := len(r.samples) / r.format.Channels
	room := r.maxFrames - have
	if room <= 0 {
		return ErrLimitReached
	}
	if c.Frames() > room {
		r.samples = append(r.samples, c.Samples[:room*r.format.Channels]...)
		return ErrLimitReached
	}
	r.samples = append(r.samples, c.Samples...)
	if c.Frames() == room {
		return ErrLimitReached
	}
	return nil
}

// Duration returns how much audio has been buffered so far.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clip().Duration()
}

// Finish stops the recorder and returns the captured clip.
func (r *Recorder) Finish() (audio.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	c := r.clip()
	if c.Empty() {
		return audio.Clip{}, ErrEmptyCapture
	}
	return c, nil
}

func (r *Recorder) clip() audio.Clip {
	return audio.Clip{
		Samples:    r.samples,
		SampleRate: r.format.SampleRate,
		Channels:   r.format.Channels,
		BitDepth:   16,
	}
}

// frameSource is a blocking input stream that fills a caller-owned buffer on
// each Read.
type frameSource interface {
	Read() error
}

// pump copies buffers from src into rec until stop is closed, ctx ends or rec
// reaches its limit. A read error for which transient reports true is logged
// and the buffer kept; any other read error ends capture with
// ErrDeviceUnavailable.
func pump(ctx context.Context, src frameSource, buf []int16, f Format, rec *Recorder, stop <-chan struct{}, transient func(error) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if err := src.Read(); err != nil {
			if transient == nil || !transient(err) {
				return fmt.Errorf("%w: read: %v", ErrDeviceUnavailable, err)
			}
			log.Debug().Err(err).Msg("capture: input overflowed")
		}
		chunk := audio.Clip{
			Samples:    append([]int16(nil), buf...),
			SampleRate: f.SampleRate,
			Channels:   f.Channels,
		}
		if err := rec.Write(chunk); errors.Is(err, ErrLimitReached) {
			return nil
		}
	}
}
