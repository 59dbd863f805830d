package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/obiente/spendvoice/internal/audio"
)

// OpenAI calls an OpenAI-compatible /audio/transcriptions endpoint. Groq
// serves the same API with whisper-large-v3 when BaseURL points at it.
type OpenAI struct {
	client   oai.Client
	model    string
	language string
	tempDir  string
}

// OpenAIOptions configures NewOpenAI.
type OpenAIOptions struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	TempDir  string
	Timeout  time.Duration
}

func NewOpenAI(o OpenAIOptions) (*OpenAI, error) {
	if o.APIKey == "" {
		return nil, fmt.Errorf("openai: api key must not be empty")
	}
	if o.Model == "" {
		o.Model = string(oai.AudioModelWhisper1)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(o.APIKey)}
	if o.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.BaseURL))
	}
	if o.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: o.Timeout}))
	}
	// The SDK retries by default; every call here is at-most-once.
	reqOpts = append(reqOpts, option.WithMaxRetries(0))
	return &OpenAI{
		client:   oai.NewClient(reqOpts...),
		model:    o.Model,
		language: o.Language,
		tempDir:  o.TempDir,
	}, nil
}

func (p *OpenAI) Transcribe(ctx context.Context, clip audio.Clip) (Result, error) {
	path, release, err := audio.WriteTempWAV(p.tempDir, clip)
	if err != nil {
		return Result{}, err
	}
	defer release()

	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	params := oai.AudioTranscriptionNewParams{
		File:           f,
		Model:          oai.AudioModel(p.model),
		ResponseFormat: oai.AudioResponseFormatJSON,
	}
	var lang string
	if p.language != "" && p.language != "auto" {
		lang = p.language
		params.Language = oai.String(lang)
	}
	tr, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("openai: audio transcription: %w", err)
	}
	return Result{Text: tr.Text, Language: lang}, nil
}

func (p *OpenAI) Close() error { return nil }
