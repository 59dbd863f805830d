package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/obiente/spendvoice/internal/audio"
)

func chunk(frames, rate, channels int) audio.Clip {
	return audio.Clip{Samples: make([]int16, frames*channels), SampleRate: rate, Channels: channels, BitDepth: 16}
}

func TestValidateDuration(t *testing.T) {
	tests := []struct {
		name    string
		d       time.Duration
		max     time.Duration
		wantErr bool
	}{
		{"open-ended", 0, 0, false},
		{"lower bound", time.Second, 0, false},
		{"upper bound", 30 * time.Second, 0, false},
		{"below minimum", 500 * time.Millisecond, 0, true},
		{"above maximum", 31 * time.Second, 0, true},
		{"above configured max", 11 * time.Second, 10 * time.Second, true},
		{"within configured max", 10 * time.Second, 10 * time.Second, false},
		{"configured max above hard cap", 30 * time.Second, time.Minute, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDuration(tc.d, tc.max)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateDuration(%v, %v) = %v, wantErr %v", tc.d, tc.max, err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDuration) {
				t.Errorf("error %v does not wrap ErrInvalidDuration", err)
			}
		})
	}
}

func TestRecorderFinishEmpty(t *testing.T) {
	r := NewRecorder(Format{SampleRate: 16000, Channels: 1}, 5*time.Second)
	if _, err := r.Finish(); !errors.Is(err, ErrEmptyCapture) {
		t.Fatalf("Finish on empty recorder = %v, want ErrEmptyCapture", err)
	}
}

func TestRecorderAccumulatesChunks(t *testing.T) {
	r := NewRecorder(Format{SampleRate: 16000, Channels: 1}, 5*time.Second)
	for i := 0; i < 4; i++ {
		if err := r.Write(chunk(4000, 16000, 1)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}
	if r.Duration() != time.Second {
		t.Errorf("Duration = %v, want 1s", r.Duration())
	}
	clip, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if clip.Frames() != 16000 {
		t.Errorf("frames = %d, want 16000", clip.Frames())
	}
	if err := r.Write(chunk(10, 16000, 1)); !errors.Is(err, ErrStopped) {
		t.Errorf("Write after Finish = %v, want ErrStopped", err)
	}
}

func TestRecorderTruncatesAtLimit(t *testing.T) {
	r := NewRecorder(Format{SampleRate: 16000, Channels: 1}, time.Second)
	if err := r.Write(chunk(12000, 16000, 1)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := r.Write(chunk(12000, 16000, 1)); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("second write = %v, want ErrLimitReached", err)
	}
	if err := r.Write(chunk(10, 16000, 1)); !errors.Is(err, ErrLimitReached) {
		t.Fatalf("write past limit = %v, want ErrLimitReached", err)
	}
	clip, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if clip.Frames() != 16000 {
		t.Errorf("frames = %d, want exactly the 1s limit", clip.Frames())
	}
}

func TestRecorderConvertsForeignFormat(t *testing.T) {
	r := NewRecorder(Format{SampleRate: 16000, Channels: 1}, 5*time.Second)
	if err := r.Write(chunk(48000, 48000, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	clip, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if clip.SampleRate != 16000 || clip.Channels != 1 {
		t.Errorf("format = %d/%d, want 16000/1", clip.SampleRate, clip.Channels)
	}
	if clip.Frames() != 16000 {
		t.Errorf("frames = %d, want 16000", clip.Frames())
	}
}

func TestRecorderConcurrentWrites(t *testing.T) {
	r := NewRecorder(Format{SampleRate: 16000, Channels: 1}, 30*time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Write(chunk(1600, 16000, 1))
		}()
	}
	wg.Wait()
	clip, err := r.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if clip.Frames() != 8*1600 {
		t.Errorf("frames = %d, want %d", clip.Frames(), 8*1600)
	}
}

func TestNewRecorderDefaults(t *testing.T) {
	r := NewRecorder(Format{}, 0)
	if f := r.Format(); f.SampleRate != 16000 || f.Channels != 1 {
		t.Errorf("default format = %+v", f)
	}
}

func TestRecorderDropsPartialFrame(t *testing.T) {
	r := NewRecorder(Format{SampleRate: 16000, Channels: 2}, 0)
	// Three samples of a stereo stream: one frame plus half of the next.
	if err := r.Write(audio.Clip{Samples: []int16{1, 2, 3}, SampleRate: 16000, Channels: 2}); err != nil {
		t.Fatal(err)
	}
	if err := r.Write(audio.Clip{Samples: []int16{5, 6}, SampleRate: 16000, Channels: 2}); err != nil {
		t.Fatal(err)
	}
	clip, err := r.Finish()
	if err != nil {
		t.Fatal(err)
	}
	want := []int16{1, 2, 5, 6}
	if len(clip.Samples) != len(want) {
		t.Fatalf("samples = %v, want %v", clip.Samples, want)
	}
	for i := range want {
		if clip.Samples[i] != want[i] {
			t.Fatalf("samples = %v, want %v", clip.Samples, want)
		}
	}
}

type scriptedSource struct {
	errs  []error
	reads int
}

func (s *scriptedSource) Read() error {
	s.reads++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

var errOverflow = errors.New("input overflowed")

func TestPumpStopsOnPersistentReadError(t *testing.T) {
	src := &scriptedSource{errs: []error{errOverflow, errors.New("device unplugged")}}
	rec := NewRecorder(Format{SampleRate: 16000, Channels: 1}, 0)
	buf := make([]int16, 160)
	transient := func(err error) bool { return errors.Is(err, errOverflow) }

	err := pump(context.Background(), src, buf, rec.Format(), rec, make(chan struct{}), transient)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("pump = %v, want ErrDeviceUnavailable", err)
	}
	if src.reads != 2 {
		t.Errorf("reads = %d, want 2", src.reads)
	}
	if got := rec.Duration(); got != 10*time.Millisecond {
		t.Errorf("buffered %v, want the overflowed buffer kept", got)
	}
}

func TestPumpRunsToLimit(t *testing.T) {
	src := &scriptedSource{}
	rec := NewRecorder(Format{SampleRate: 16000, Channels: 1}, time.Second)
	buf := make([]int16, 1600)
	if err := pump(context.Background(), src, buf, rec.Format(), rec, make(chan struct{}), nil); err != nil {
		t.Fatalf("pump = %v", err)
	}
	if src.reads != 10 || rec.Duration() != time.Second {
		t.Errorf("reads = %d, buffered %v", src.reads, rec.Duration())
	}
}

func TestPumpStopAndCancel(t *testing.T) {
	rec := NewRecorder(Format{SampleRate: 16000, Channels: 1}, 0)
	stop := make(chan struct{})
	close(stop)
	if err := pump(context.Background(), &scriptedSource{}, nil, rec.Format(), rec, stop, nil); err != nil {
		t.Errorf("pump after stop = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pump(ctx, &scriptedSource{}, nil, rec.Format(), rec, make(chan struct{}), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("pump after cancel = %v", err)
	}
}
