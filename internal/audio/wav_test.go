package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sineClip(rate, channels int, d time.Duration) Clip {
	frames := int(int64(rate) * int64(d) / int64(time.Second))
	samples := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = int16((i*37 + c*1000) % 20000)
		}
	}
	return Clip{Samples: samples, SampleRate: rate, Channels: channels, BitDepth: 16}
}

func TestWAVRoundTripPreservesFramesAndDuration(t *testing.T) {
	tests := []struct {
		rate     int
		channels int
	}{
		{16000, 1},
		{16000, 2},
		{44100, 1},
		{44100, 2},
		{48000, 1},
		{48000, 2},
	}
	for _, tc := range tests {
		in := sineClip(tc.rate, tc.channels, 1250*time.Millisecond)
		path, release, err := WriteTempWAV(t.TempDir(), in)
		if err != nil {
			t.Fatalf("%d/%d: WriteTempWAV: %v", tc.rate, tc.channels, err)
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		out, err := DecodeWAV(f)
		f.Close()
		release()
		if err != nil {
			t.Fatalf("%d/%d: DecodeWAV: %v", tc.rate, tc.channels, err)
		}

		if out.SampleRate != tc.rate || out.Channels != tc.channels {
			t.Errorf("format = %d Hz/%d ch, want %d Hz/%d ch", out.SampleRate, out.Channels, tc.rate, tc.channels)
		}
		if out.Frames() != in.Frames() {
			t.Errorf("%d/%d: frames = %d, want %d", tc.rate, tc.channels, out.Frames(), in.Frames())
		}
		period := time.Second / time.Duration(tc.rate)
		diff := out.Duration() - in.Duration()
		if diff < 0 {
			diff = -diff
		}
		if diff > period {
			t.Errorf("%d/%d: duration drift %v exceeds one sample period %v", tc.rate, tc.channels, diff, period)
		}
		for i := range in.Samples {
			if in.Samples[i] != out.Samples[i] {
				t.Fatalf("sample %d = %d, want %d", i, out.Samples[i], in.Samples[i])
			}
		}
	}
}

func TestWriteTempWAVReleaseRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path, release, err := WriteTempWAV(dir, sineClip(16000, 1, 100*time.Millisecond))
	if err != nil {
		t.Fatalf("WriteTempWAV: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Errorf("temp file %q not under %q", path, dir)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("temp file missing before release: %v", err)
	}
	release()
	release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temp file still present after release: %v", err)
	}
}

func TestWriteTempWAVInvalidFormatLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := WriteTempWAV(dir, Clip{Samples: []int16{1, 2}}); err == nil {
		t.Fatal("expected error for clip without format")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected no leftover files, found %d", len(entries))
	}
}

func TestDecodePCM16LE(t *testing.T) {
	clip, err := DecodePCM16LE([]byte{0x01, 0x00, 0xff, 0xff, 0x00, 0x80, 0xff, 0x7f}, 8000, 2)
	if err != nil {
		t.Fatalf("DecodePCM16LE: %v", err)
	}
	want := []int16{1, -1, -32768, 32767}
	for i, w := range want {
		if clip.Samples[i] != w {
			t.Errorf("sample %d = %d, want %d", i, clip.Samples[i], w)
		}
	}
	if clip.Frames() != 2 {
		t.Errorf("frames = %d, want 2", clip.Frames())
	}
	if _, err := DecodePCM16LE([]byte{1, 2, 3}, 8000, 1); err == nil {
		t.Error("expected error for odd-length input")
	}
}

func TestDecodeWAVBytesRejectsGarbage(t *testing.T) {
	if _, err := DecodeWAVBytes([]byte("definitely not a wav file")); err == nil {
		t.Fatal("expected error")
	}
}

func TestMonoFloat32AveragesChannels(t *testing.T) {
	clip := Clip{Samples: []int16{16384, -16384, 16384, 16384}, SampleRate: 16000, Channels: 2}
	got := clip.MonoFloat32()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != 0 {
		t.Errorf("frame 0 = %v, want 0", got[0])
	}
	if got[1] != 0.5 {
		t.Errorf("frame 1 = %v, want 0.5", got[1])
	}
}

func TestResampleLinear(t *testing.T) {
	in := make([]float32, 48000)
	out := ResampleLinear(in, 48000, 16000)
	if len(out) != 16000 {
		t.Errorf("len = %d, want 16000", len(out))
	}
	same := ResampleLinear([]float32{1, 2}, 16000, 16000)
	if len(same) != 2 || same[1] != 2 {
		t.Errorf("same-rate resample altered samples: %v", same)
	}
}

func TestClipDuration(t *testing.T) {
	c := Clip{Samples: make([]int16, 32000), SampleRate: 16000, Channels: 2}
	if c.Duration() != time.Second {
		t.Errorf("duration = %v, want 1s", c.Duration())
	}
	if (Clip{}).Duration() != 0 || !(Clip{}).Empty() {
		t.Error("zero clip should be empty with zero duration")
	}
}

func TestConvertStereo48kToMono16k(t *testing.T) {
	in := sineClip(48000, 2, time.Second)
	out := Convert(in, 16000, 1)
	if out.SampleRate != 16000 || out.Channels != 1 {
		t.Fatalf("format = %d/%d, want 16000/1", out.SampleRate, out.Channels)
	}
	if out.Frames() != 16000 {
		t.Errorf("frames = %d, want 16000", out.Frames())
	}
	if same := Convert(out, 16000, 1); len(same.Samples) != len(out.Samples) {
		t.Error("identity conversion changed the clip")
	}
}
