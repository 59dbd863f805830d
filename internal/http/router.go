package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/capture"
	"github.com/obiente/spendvoice/internal/logger"
	"github.com/obiente/spendvoice/internal/observe"
	"github.com/obiente/spendvoice/internal/pipeline"
	"github.com/obiente/spendvoice/internal/ws"
)

// maxAudioBody fits 30s of 48kHz stereo PCM16 with room for WAV headers.
const maxAudioBody = 8 << 20

// Deps are the handlers' collaborators.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Sessions *ws.Server
	Device   capture.Device
	Metrics  *observe.Metrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		st := d.Pipeline.Status()
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":            st.Ready(),
			"transcription": st.Transcription,
			"extraction":    st.Extraction,
		})
	})
	mux.HandleFunc("POST /v1/extract", extractHandler(d.Pipeline))
	mux.HandleFunc("POST /v1/transcribe", transcribeHandler(d.Pipeline))
	if d.Device != nil {
		mux.HandleFunc("GET /v1/devices", devicesHandler(d.Device))
	}
	// Session WebSocket
	if d.Sessions != nil {
		mux.HandleFunc("GET /ws/session", d.Sessions.Handle)
	}
	if d.MetricsHandler != nil {
		mux.Handle("GET /metrics", d.MetricsHandler)
	}

	m := d.Metrics
	if m == nil {
		m = observe.Discard()
	}
	return observe.Middleware(m)(mux)
}

type extractRequest struct {
	Text string `json:"text"`
}

func extractHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
			return
		}
		ctx := logger.WithContext(r.Context(), log.Logger)
		res, err := p.Extract(ctx, req.Text)
		if err != nil {
			code, msg := pipeline.Describe(err)
			writeError(w, statusFor(code), code, msg)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// transcribeHandler accepts a WAV body, or raw PCM16 when Content-Type is
// audio/pcm with sample_rate and channels query parameters.
func transcribeHandler(p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeError(w, http.StatusRequestEntityTooLarge, "bad_request", "audio body too large")
				return
			}
			writeError(w, http.StatusBadRequest, "bad_request", "read body failed")
			return
		}
		clip, err := decodeBody(body, r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "decode audio failed: "+err.Error())
			return
		}
		if clip.Empty() {
			code, msg := pipeline.Describe(capture.ErrEmptyCapture)
			writeError(w, statusFor(code), code, msg)
			return
		}
		l := logger.WithFields(log.Logger, map[string]any{
			"bytes":       len(body),
			"sample_rate": clip.SampleRate,
			"channels":    clip.Channels,
		})
		res, err := p.Transcribe(logger.WithContext(r.Context(), l), clip)
		if err != nil {
			code, msg := pipeline.Describe(err)
			writeError(w, statusFor(code), code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"text":        res.Text,
			"language":    res.Language,
			"duration_ms": clip.Duration().Milliseconds(),
		})
	}
}

func devicesHandler(dev capture.Device) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := dev.Devices()
		if err != nil {
			code, msg := pipeline.Describe(err)
			writeError(w, statusFor(code), code, msg)
			return
		}
		out := make([]map[string]any, 0, len(list))
		for _, di := range list {
			out = append(out, map[string]any{
				"name":                di.Name,
				"max_input_channels":  di.MaxInputChannels,
				"default_sample_rate": di.DefaultSampleRate,
				"default":             di.Default,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"devices": out})
	}
}

func decodeBody(body []byte, r *http.Request) (audio.Clip, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "audio/pcm") || strings.HasPrefix(ct, "audio/L16") {
		q := r.URL.Query()
		sr, _ := strconv.Atoi(q.Get("sample_rate"))
		if sr <= 0 {
			sr = 16000
		}
		ch, _ := strconv.Atoi(q.Get("channels"))
		if ch <= 0 {
			ch = 1
		}
		return audio.DecodePCM16LE(body, sr, ch)
	}
	return audio.DecodeWAV(bytes.NewReader(body))
}

func statusFor(code string) int {
	switch code {
	case pipeline.CodeEmptyInput, pipeline.CodeEmptyCapture, pipeline.CodeNoTranscriptionOutput:
		return http.StatusUnprocessableEntity
	case pipeline.CodeInvalidDuration:
		return http.StatusBadRequest
	case pipeline.CodeModelUnavailable, pipeline.CodeExtractionUnavailable, pipeline.CodeDeviceUnavailable:
		return http.StatusServiceUnavailable
	case pipeline.CodeExtractionFailed:
		return http.StatusBadGateway
	case pipeline.CodeCancelled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("http: encode response failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]any{"code": code, "detail": detail})
}
