package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/obiente/spendvoice/internal/audio"
)

// Server posts the clip to a whisper.cpp HTTP server's /inference endpoint.
type Server struct {
	base     string
	language string
	tempDir  string
	http     *http.Client
}

// NewServer returns a client for the server at base. A non-positive timeout
// defaults to 30 seconds.
func NewServer(base, language, tempDir string, timeout time.Duration) (*Server, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, fmt.Errorf("whisper-server: server url must not be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		base:     base,
		language: language,
		tempDir:  tempDir,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (s *Server) Transcribe(ctx context.Context, clip audio.Clip) (Result, error) {
	path, release, err := audio.WriteTempWAV(s.tempDir, clip)
	if err != nil {
		return Result{}, err
	}
	defer release()

	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return Result{}, fmt.Errorf("copy audio: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return Result{}, err
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return Result{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/inference", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("whisper-server http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var ir struct {
		Text     string `json:"text"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	return Result{Text: ir.Text, Language: ir.Language}, nil
}

func (s *Server) Close() error { return nil }
