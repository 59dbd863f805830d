package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/obiente/spendvoice/internal/audio"
)

func testClip() audio.Clip {
	s := make([]int16, 8000)
	for i := range s {
		s[i] = int16(i % 300)
	}
	return audio.Clip{Samples: s, SampleRate: 16000, Channels: 1, BitDepth: 16}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir has %d leftover files", len(entries))
	}
}

func TestServerTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		clip, err := audio.DecodeWAVBytes(data)
		if err != nil || clip.Frames() != 8000 {
			http.Error(w, "bad wav", http.StatusBadRequest)
			return
		}
		if r.FormValue("language") != "en" {
			http.Error(w, "missing language", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " I spent 500 at Domino's"})
	}))
	defer srv.Close()

	dir := t.TempDir()
	s, err := NewServer(srv.URL+"/", "en", dir, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	res, err := s.Transcribe(context.Background(), testClip())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != " I spent 500 at Domino's" {
		t.Errorf("text = %q", res.Text)
	}
	assertDirEmpty(t, dir)
}

func TestServerTranscribeFailureRemovesTempFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	s, err := NewServer(srv.URL, "", dir, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transcribe(context.Background(), testClip()); err == nil {
		t.Fatal("expected error from 503 response")
	}
	assertDirEmpty(t, dir)
}

func TestNewServerRequiresURL(t *testing.T) {
	if _, err := NewServer("  ", "", "", 0); err == nil {
		t.Fatal("expected error for empty url")
	}
}
