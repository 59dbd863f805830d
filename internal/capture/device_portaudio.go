//go:build portaudio

package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/audio"
)

const framesPerBuffer = 1024

type portaudioDevice struct{}

// NewDevice returns the PortAudio-backed default input device.
func NewDevice() Device { return portaudioDevice{} }

func (portaudioDevice) Devices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	all, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	def, _ := portaudio.DefaultInputDevice()
	var out []DeviceInfo
	for _, d := range all {
		if d.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			Default:           def != nil && def.Name == d.Name,
		})
	}
	if len(out) == 0 {
		return nil, ErrDeviceUnavailable
	}
	return out, nil
}

func (portaudioDevice) Record(ctx context.Context, req Request, stop <-chan struct{}) (audio.Clip, error) {
	if err := ValidateDuration(req.Duration, req.Max); err != nil {
		return audio.Clip{}, err
	}
	if err := portaudio.Initialize(); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	defer portaudio.Terminate()

	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	limit := req.Max
	if req.Duration > 0 {
		limit = req.Duration
	}
	rec := NewRecorder(req.Format, limit)
	f := rec.Format()

	in := make([]int16, framesPerBuffer*f.Channels)
	stream, err := portaudio.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), framesPerBuffer, in)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("%w: open stream: %v", ErrDeviceUnavailable, err)
	}
	defer func() {
		_ = stream.Stop()
		_ = stream.Close()
	}()
	if err := stream.Start(); err != nil {
		return audio.Clip{}, fmt.Errorf("%w: start stream: %v", ErrDeviceUnavailable, err)
	}

	started := time.Now()
	log.Debug().Int("sample_rate", f.SampleRate).Int("channels", f.Channels).Dur("limit", limit).Msg("capture: recording from default input device")

	overflow := func(err error) bool { return errors.Is(err, portaudio.InputOverflowed) }
	if err := pump(ctx, stream, in, f, rec, stop, overflow); err != nil {
		return audio.Clip{}, err
	}

	clip, err := rec.Finish()
	if err != nil {
		return audio.Clip{}, err
	}
	log.Debug().Dur("elapsed", time.Since(started)).Dur("captured", clip.Duration()).Msg("capture: recording finished")
	return clip, nil
}
