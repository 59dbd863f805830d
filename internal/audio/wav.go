package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes c as a 16-bit PCM WAV container.
func EncodeWAV(w io.WriteSeeker, c Clip) error {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return fmt.Errorf("invalid clip format: %d Hz, %d channels", c.SampleRate, c.Channels)
	}
	enc := wav.NewEncoder(w, c.SampleRate, 16, c.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: c.Channels,
			SampleRate:  c.SampleRate,
		},
		Data:           make([]int, len(c.Samples)),
		SourceBitDepth: 16,
	}
	for i, s := range c.Samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// DecodeWAV reads a PCM WAV container into a 16-bit Clip. 8, 24 and 32-bit
// sources are rescaled to 16 bits.
func DecodeWAV(r io.ReadSeeker) (Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Clip{}, errors.New("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		if err == io.EOF {
			err = nil
		} else {
			return Clip{}, err
		}
	}
	if buf == nil {
		return Clip{}, errors.New("empty wav buffer")
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	out := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case bitDepth == 8:
			// 8-bit WAV is unsigned
			out[i] = int16((v - 128) << 8)
		case bitDepth > 16:
			out[i] = int16(v >> (bitDepth - 16))
		default:
			out[i] = int16(v)
		}
	}
	sr := int(dec.SampleRate)
	if sr == 0 && buf.Format != nil {
		sr = buf.Format.SampleRate
	}
	if sr == 0 {
		sr = 16000
	}
	ch := int(dec.NumChans)
	if ch == 0 && buf.Format != nil {
		ch = buf.Format.NumChannels
	}
	if ch == 0 {
		ch = 1
	}
	return Clip{Samples: out, SampleRate: sr, Channels: ch, BitDepth: 16}, nil
}

// DecodeWAVBytes decodes a WAV blob held in memory.
func DecodeWAVBytes(b []byte) (Clip, error) {
	return DecodeWAV(bytes.NewReader(b))
}

// DecodePCM16LE wraps little-endian PCM16 bytes in a Clip with the given format.
func DecodePCM16LE(b []byte, sampleRate, channels int) (Clip, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	if len(b)%2 != 0 {
		return Clip{}, errors.New("pcm16 length must be even")
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return Clip{Samples: out, SampleRate: sampleRate, Channels: channels, BitDepth: 16}, nil
}

// WriteTempWAV encodes c into a new temporary file under dir (os.TempDir when
// empty). The returned release func removes the file and is safe to call more
// than once; callers should defer it right after a nil error.
func WriteTempWAV(dir string, c Clip) (path string, release func(), err error) {
	f, err := os.CreateTemp(dir, "spendvoice-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("create temp wav: %w", err)
	}
	path = f.Name()
	release = func() { _ = os.Remove(path) }
	if err := EncodeWAV(f, c); err != nil {
		f.Close()
		release()
		return "", nil, fmt.Errorf("encode temp wav: %w", err)
	}
	if err := f.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("close temp wav: %w", err)
	}
	return path, release, nil
}

// ResampleLinear resamples PCM32F from inRate to outRate using linear interpolation.
func ResampleLinear(samples []float32, inRate, outRate int) []float32 {
	if inRate <= 0 || outRate <= 0 || inRate == outRate || len(samples) == 0 {
		if inRate == outRate {
			return append([]float32(nil), samples...)
		}
		return samples
	}
	ratio := float64(outRate) / float64(inRate)
	outLen := len(samples) * outRate / inRate
	if outLen <= 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		i0 := int(srcPos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := float32(srcPos - float64(i0))
		s0 := samples[i0]
		s1 := samples[i0+1]
		out[i] = s0 + (s1-s0)*frac
	}
	return out
}
