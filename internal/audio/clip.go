package audio

import "time"

// Clip is a captured audio segment with its format metadata. Samples are
// interleaved 16-bit PCM, Channels values per frame.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
	BitDepth   int
}

// Frames returns the number of sample frames (one sample per channel).
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip holds no complete frame.
func (c Clip) Empty() bool { return c.Frames() == 0 }

// MonoFloat32 down-mixes the clip to mono float32 samples in [-1, 1] by
// averaging the channels of each frame.
func (c Clip) MonoFloat32() []float32 {
	ch := c.Channels
	if ch <= 0 {
		ch = 1
	}
	n := len(c.Samples) / ch
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for j := 0; j < ch; j++ {
			sum += float32(c.Samples[i*ch+j]) / 32768.0
		}
		out[i] = sum / float32(ch)
	}
	return out
}

// Convert returns c resampled to sampleRate and remapped to channels. Mono to
// multi-channel duplicates the signal; multi-channel to anything else goes
// through a mono down-mix.
func Convert(c Clip, sampleRate, channels int) Clip {
	if sampleRate <= 0 {
		sampleRate = c.SampleRate
	}
	if channels <= 0 {
		channels = c.Channels
	}
	if c.SampleRate == sampleRate && c.Channels == channels {
		return c
	}
	mono := ResampleLinear(c.MonoFloat32(), c.SampleRate, sampleRate)
	out := make([]int16, len(mono)*channels)
	for i, v := range mono {
		s := floatToPCM16(v)
		for j := 0; j < channels; j++ {
			out[i*channels+j] = s
		}
	}
	return Clip{Samples: out, SampleRate: sampleRate, Channels: channels, BitDepth: 16}
}

func floatToPCM16(v float32) int16 {
	switch {
	case v >= 1:
		return 32767
	case v <= -1:
		return -32768
	}
	return int16(v * 32768)
}
