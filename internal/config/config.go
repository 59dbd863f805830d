package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the whole service configuration. Values come from defaults, then
// the optional YAML file named by SPENDVOICE_CONFIG, then the environment.
type Config struct {
	Addr      string `yaml:"addr"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
	// TempDir holds the transient WAV files; empty means os.TempDir.
	TempDir string `yaml:"temp_dir"`

	Capture       Capture       `yaml:"capture"`
	Transcription Transcription `yaml:"transcription"`
	Extraction    Extraction    `yaml:"extraction"`
	EditGate      EditGate      `yaml:"edit_gate"`
	Metrics       Metrics       `yaml:"metrics"`
}

type Capture struct {
	MaxSeconds     int `yaml:"max_seconds"`
	DefaultSeconds int `yaml:"default_seconds"`
	SampleRate     int `yaml:"sample_rate"`
	Channels       int `yaml:"channels"`
}

type Transcription struct {
	Backend   string        `yaml:"backend"`
	ModelPath string        `yaml:"model_path"`
	ServerURL string        `yaml:"server_url"`
	Model     string        `yaml:"model"`
	Language  string        `yaml:"language"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Threads   int           `yaml:"threads"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Extraction struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	ValidateJSON bool          `yaml:"validate_json"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ModelName is Model, or the provider's default when Model is empty. Gemini
// picks its own default downstream; other providers have none.
func (e Extraction) ModelName() string {
	if e.Model != "" {
		return e.Model
	}
	return DefaultModels[e.Provider]
}

type EditGate struct {
	// AutoSubmit is the countdown before the transcript is submitted on its
	// own. Zero waits for an explicit go.
	AutoSubmit time.Duration `yaml:"auto_submit"`
	Tick       time.Duration `yaml:"tick"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

var (
	// STTBackends are the accepted transcription.backend values.
	STTBackends = []string{"whisper", "whisper-server", "openai"}
	// LLMProviders are the accepted extraction.provider values.
	LLMProviders = []string{"groq", "openai", "gemini", "anthropic", "ollama", "deepseek", "mistral", "llamacpp", "llamafile"}
	// DefaultModels apply when extraction.model is unset.
	DefaultModels = map[string]string{"groq": "llama3-70b-8192"}
	// SampleRates are the capture rates browsers and devices commonly deliver.
	SampleRates = []int{16000, 44100, 48000}
)

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:     ":8080",
		LogLevel: "info",
		Capture: Capture{
			MaxSeconds: 30,
			SampleRate: 16000,
			Channels:   1,
		},
		Transcription: Transcription{
			Backend:   "whisper",
			ModelPath: "./models/ggml-base.en.bin",
			Language:  "auto",
			Timeout:   60 * time.Second,
		},
		Extraction: Extraction{
			Provider:    "groq",
			Temperature: 0.5,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		EditGate: EditGate{
			AutoSubmit: 7 * time.Second,
			Tick:       time.Second,
		},
		Metrics: Metrics{Enabled: true},
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch v {
		case "0", "false", "no", "off", "False", "FALSE":
			return false
		default:
			return true
		}
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// getenvDuration accepts Go durations ("7s", "1m") or whole seconds ("7").
func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// llmKeyEnv is the provider's conventional key variable, consulted when no
// key is configured explicitly.
var llmKeyEnv = map[string]string{
	"groq":      "GROQ_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"mistral":   "MISTRAL_API_KEY",
}

// Load builds the configuration and validates it.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("SPENDVOICE_CONFIG"); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()
	if err := decode(f, cfg); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	return nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("SPENDVOICE_ADDR", cfg.Addr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = getenvBool("LOG_PRETTY", cfg.LogPretty)
	cfg.TempDir = getenv("SPENDVOICE_TEMP_DIR", cfg.TempDir)

	cfg.Capture.MaxSeconds = getenvInt("CAPTURE_MAX_SECONDS", cfg.Capture.MaxSeconds)
	cfg.Capture.DefaultSeconds = getenvInt("CAPTURE_DEFAULT_SECONDS", cfg.Capture.DefaultSeconds)
	cfg.Capture.SampleRate = getenvInt("CAPTURE_SAMPLE_RATE", cfg.Capture.SampleRate)
	cfg.Capture.Channels = getenvInt("CAPTURE_CHANNELS", cfg.Capture.Channels)

	t := &cfg.Transcription
	t.Backend = getenv("STT_BACKEND", t.Backend)
	t.ModelPath = getenv("WHISPER_MODEL_PATH", t.ModelPath)
	t.ServerURL = getenv("WHISPER_SERVER_URL", t.ServerURL)
	t.Threads = getenvInt("WHISPER_THREADS", t.Threads)
	t.Model = getenv("STT_MODEL", t.Model)
	t.Language = getenv("STT_LANGUAGE", t.Language)
	t.APIKey = getenv("STT_API_KEY", t.APIKey)
	t.BaseURL = getenv("STT_BASE_URL", t.BaseURL)
	t.Timeout = getenvDuration("STT_TIMEOUT", t.Timeout)
	if t.Backend == "openai" && t.APIKey == "" {
		t.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	e := &cfg.Extraction
	e.Provider = strings.ToLower(getenv("LLM_PROVIDER", e.Provider))
	e.Model = getenv("LLM_MODEL", e.Model)
	e.Temperature = getenvFloat("LLM_TEMPERATURE", e.Temperature)
	e.MaxTokens = getenvInt("LLM_MAX_TOKENS", e.MaxTokens)
	e.APIKey = getenv("LLM_API_KEY", e.APIKey)
	e.BaseURL = getenv("LLM_BASE_URL", e.BaseURL)
	e.ValidateJSON = getenvBool("LLM_VALIDATE_JSON", e.ValidateJSON)
	e.Timeout = getenvDuration("LLM_TIMEOUT", e.Timeout)
	if e.APIKey == "" {
		if name, ok := llmKeyEnv[e.Provider]; ok {
			e.APIKey = os.Getenv(name)
		}
	}

	cfg.EditGate.AutoSubmit = getenvDuration("AUTO_SUBMIT", cfg.EditGate.AutoSubmit)
	cfg.EditGate.Tick = getenvDuration("AUTO_SUBMIT_TICK", cfg.EditGate.Tick)
	cfg.Metrics.Enabled = getenvBool("METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate returns every problem found, joined.
func Validate(cfg Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Addr) == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: trace, debug, info, warn, error", cfg.LogLevel))
	}

	c := cfg.Capture
	if c.MaxSeconds < 1 || c.MaxSeconds > 30 {
		errs = append(errs, fmt.Errorf("capture.max_seconds %d is out of range [1, 30]", c.MaxSeconds))
	}
	if c.DefaultSeconds != 0 && (c.DefaultSeconds < 1 || c.DefaultSeconds > c.MaxSeconds) {
		errs = append(errs, fmt.Errorf("capture.default_seconds %d is out of range [1, %d]", c.DefaultSeconds, c.MaxSeconds))
	}
	if !slices.Contains(SampleRates, c.SampleRate) {
		errs = append(errs, fmt.Errorf("capture.sample_rate %d is unsupported; valid values: %v", c.SampleRate, SampleRates))
	}
	if c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is invalid; valid values: 1, 2", c.Channels))
	}

	t := cfg.Transcription
	if !slices.Contains(STTBackends, strings.ToLower(t.Backend)) {
		errs = append(errs, fmt.Errorf("transcription.backend %q is invalid; valid values: %s", t.Backend, strings.Join(STTBackends, ", ")))
	}
	if strings.EqualFold(t.Backend, "whisper-server") && t.ServerURL == "" {
		errs = append(errs, errors.New("transcription.server_url is required for the whisper-server backend"))
	}
	if t.Threads < 0 {
		errs = append(errs, fmt.Errorf("transcription.threads %d must not be negative", t.Threads))
	}

	e := cfg.Extraction
	if !slices.Contains(LLMProviders, e.Provider) {
		errs = append(errs, fmt.Errorf("extraction.provider %q is invalid; valid values: %s", e.Provider, strings.Join(LLMProviders, ", ")))
	}
	if e.ModelName() == "" && e.Provider != "gemini" {
		errs = append(errs, fmt.Errorf("extraction.model is required for provider %q", e.Provider))
	}
	if e.Temperature < 0 || e.Temperature > 2 {
		errs = append(errs, fmt.Errorf("extraction.temperature %.2f is out of range [0, 2]", e.Temperature))
	}
	if e.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("extraction.max_tokens %d must be positive", e.MaxTokens))
	}

	g := cfg.EditGate
	if g.AutoSubmit < 0 || g.AutoSubmit > 5*time.Minute {
		errs = append(errs, fmt.Errorf("edit_gate.auto_submit %v is out of range [0, 5m]", g.AutoSubmit))
	}
	if g.Tick <= 0 {
		errs = append(errs, fmt.Errorf("edit_gate.tick %v must be positive", g.Tick))
	}

	return errors.Join(errs...)
}
