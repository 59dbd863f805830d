//go:build !portaudio

package capture

import (
	"context"

	"github.com/obiente/spendvoice/internal/audio"
)

// Default stub (no cgo) so the project builds without the portaudio tag.
type stubDevice struct{}

// NewDevice returns a device that always reports ErrDeviceUnavailable.
func NewDevice() Device { return stubDevice{} }

func (stubDevice) Devices() ([]DeviceInfo, error) { return nil, ErrDeviceUnavailable }

func (stubDevice) Record(ctx context.Context, req Request, stop <-chan struct{}) (audio.Clip, error) {
	if err := ValidateDuration(req.Duration, req.Max); err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{}, ErrDeviceUnavailable
}
