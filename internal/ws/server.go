// Package ws serves the session WebSocket: browser audio in, transcript,
// countdown and extraction result out.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/obiente/spendvoice/internal/audio"
	"github.com/obiente/spendvoice/internal/capture"
	"github.com/obiente/spendvoice/internal/config"
	"github.com/obiente/spendvoice/internal/editgate"
	"github.com/obiente/spendvoice/internal/extract"
	"github.com/obiente/spendvoice/internal/logger"
	"github.com/obiente/spendvoice/internal/observe"
	"github.com/obiente/spendvoice/internal/pipeline"
	"github.com/obiente/spendvoice/internal/session"
	"github.com/obiente/spendvoice/internal/transcribe"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Protocol error codes, next to the pipeline's.
const (
	CodeBadRequest   = "bad_request"
	CodeNotRecording = "not_recording"
	CodeNotEditable  = "not_editable"
)

// Options configures a Server.
type Options struct {
	Capture config.Capture
	// Device serves record_device. Nil disables it.
	Device  capture.Device
	Metrics *observe.Metrics
}

type Server struct {
	pipeline *pipeline.Pipeline
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(p *pipeline.Pipeline, opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.Discard()
	}
	return &Server{
		pipeline: p,
		opts:     opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
	}
}

// client is one connection. It implements pipeline.Presenter; writes are
// serialized since the pipeline reports from its own goroutines.
type client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	log  zerolog.Logger
}

func (c *client) send(payload map[string]any) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(payload); err != nil {
		c.log.Debug().Err(err).Str("type", payload["type"].(string)).Msg("ws: write failed")
	}
}

func (c *client) Transcript(res transcribe.Result) {
	c.send(map[string]any{"type": "transcript", "text": res.Text, "language": res.Language})
}

func (c *client) Countdown(remaining time.Duration) {
	c.send(map[string]any{"type": "countdown", "remaining": int(math.Ceil(remaining.Seconds()))})
}

func (c *client) Resolved(out editgate.Outcome) {
	c.send(map[string]any{"type": "resolved", "reason": string(out.Reason), "text": out.Text})
}

func (c *client) Processing() {
	c.send(map[string]any{"type": "processing"})
}

func (c *client) Result(res extract.Result) {
	payload := map[string]any{"type": "result", "raw": res.Text, "provider": res.Provider}
	if res.Records != nil {
		payload["records"] = res.Records
	}
	c.send(payload)
}

func (c *client) Failure(code, message string) {
	c.send(map[string]any{"type": "error", "code": code, "detail": message})
}

// Handle upgrades the request and runs one session until the client leaves.
func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	sess := session.New()
	l := logger.ForSession(log.Logger, sess.ID)
	c := &client{conn: conn, log: l}

	ctx, cancel := context.WithCancel(context.Background())
	var runs sync.WaitGroup
	defer func() {
		cancel()
		sess.Close()
		runs.Wait()
	}()

	s.opts.Metrics.Sessions.Add(ctx, 1)
	s.opts.Metrics.ActiveSessions.Add(ctx, 1)
	defer s.opts.Metrics.ActiveSessions.Add(context.Background(), -1)
	l.Info().Str("remote", r.RemoteAddr).Msg("ws: session opened")
	defer l.Info().Msg("ws: session closed")

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readTimeout)); return nil })

	var (
		rec        *capture.Recorder
		deviceStop chan struct{}
		// limited is set when capture ended at the limit; chunks and the stop
		// still in flight from the client are dropped.
		limited bool
	)

	run := func(fn func()) {
		runs.Add(1)
		go func() {
			defer runs.Done()
			fn()
		}()
	}

	// finish ends browser capture and hands the clip to the pipeline.
	finish := func() {
		clip, err := rec.Finish()
		rec = nil
		if err != nil {
			s.pipeline.Fail(ctx, sess, c, err)
			return
		}
		c.send(captured(clip))
		run(func() { _ = s.pipeline.Run(ctx, sess, clip, c) })
	}

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l.Warn().Err(err).Msg("ws read error")
			}
			if deviceStop != nil {
				close(deviceStop)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if mt != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.Failure(CodeBadRequest, "invalid json")
			continue
		}

		switch msg["type"] {
		case "ping":
			c.send(map[string]any{"type": "pong", "ts": msg["ts"]})

		case "start":
			limit := s.maxDuration()
			if v := asFloat(msg["max_seconds"]); v > 0 {
				d := time.Duration(v * float64(time.Second))
				if err := capture.ValidateDuration(d, limit); err != nil {
					s.pipeline.Fail(ctx, sess, c, err)
					continue
				}
				limit = d
			}
			f := capture.Format{
				SampleRate: int(asFloat(msg["sample_rate"])),
				Channels:   int(asFloat(msg["channels"])),
			}
			if f.SampleRate <= 0 {
				f.SampleRate = s.opts.Capture.SampleRate
			}
			if f.Channels <= 0 {
				f.Channels = s.opts.Capture.Channels
			}
			// A new recording supersedes whatever the session was doing.
			if deviceStop != nil {
				close(deviceStop)
				deviceStop = nil
			}
			sess.Reset()
			sess.SetPhase(session.PhaseRecording)
			rec = capture.NewRecorder(f, limit)
			limited = false
			lang, _ := msg["language"].(string)
			l.Info().
				Int("sample_rate", f.SampleRate).
				Int("channels", f.Channels).
				Dur("max", limit).
				Str("language_hint", lang).
				Msg("ws: recording started")
			c.send(map[string]any{"type": "started", "session_id": sess.ID})

		case "chunk":
			if rec == nil {
				if !limited {
					c.Failure(CodeNotRecording, "send start before audio chunks")
				}
				continue
			}
			b64, _ := msg["data"].(string)
			if b64 == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				c.Failure(CodeBadRequest, "invalid base64 audio")
				continue
			}
			chunk, err := decodeChunk(raw, msg, rec.Format())
			if err != nil {
				l.Warn().Err(err).Msg("audio decode failed")
				c.Failure(CodeBadRequest, "decode audio failed")
				continue
			}
			switch err := rec.Write(chunk); {
			case errors.Is(err, capture.ErrLimitReached):
				l.Info().Dur("captured", rec.Duration()).Msg("ws: capture limit reached")
				limited = true
				finish()
			case err != nil:
				c.Failure(CodeBadRequest, err.Error())
			}

		case "stop":
			switch {
			case rec != nil:
				finish()
			case deviceStop != nil:
				close(deviceStop)
				deviceStop = nil
			case limited:
				limited = false
			default:
				c.Failure(CodeNotRecording, "nothing is being recorded")
			}

		case "record_device":
			if deviceStop != nil {
				close(deviceStop)
				deviceStop = nil
			}
			rec, limited = nil, false
			req, err := s.deviceRequest(asFloat(msg["seconds"]))
			if err != nil {
				s.pipeline.Fail(ctx, sess, c, err)
				continue
			}
			sess.Reset()
			sess.SetPhase(session.PhaseRecording)
			c.send(map[string]any{"type": "started", "session_id": sess.ID})
			stop := make(chan struct{})
			deviceStop = stop
			run(func() { s.recordDevice(ctx, sess, c, req, stop) })

		case "edit":
			text, _ := msg["text"].(string)
			g := sess.Gate()
			if g == nil {
				c.Failure(CodeNotEditable, "there is no transcript to edit")
				continue
			}
			if err := g.Edit(text); err != nil {
				c.Failure(CodeNotEditable, err.Error())
			}

		case "go":
			if g := sess.Gate(); g == nil || !g.Advance() {
				c.Failure(CodeNotEditable, "there is no pending transcript")
			}

		case "submit":
			text, _ := msg["text"].(string)
			// A pending gate takes the text and resolves; otherwise this is a
			// re-submission of an already presented transcript.
			if g := sess.Gate(); g != nil && g.State() != editgate.Resolved {
				if g.Edit(text) == nil && g.Advance() {
					continue
				}
			}
			run(func() { _ = s.pipeline.Submit(ctx, sess, text, c) })

		default:
			c.Failure(CodeBadRequest, "unknown message type")
		}
	}
}

func (s *Server) recordDevice(ctx context.Context, sess *session.Session, c *client, req capture.Request, stop <-chan struct{}) {
	clip, err := s.opts.Device.Record(ctx, req, stop)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.pipeline.Fail(ctx, sess, c, err)
		return
	}
	c.send(captured(clip))
	_ = s.pipeline.Run(ctx, sess, clip, c)
}

func (s *Server) maxDuration() time.Duration {
	if s.opts.Capture.MaxSeconds > 0 {
		return time.Duration(s.opts.Capture.MaxSeconds) * time.Second
	}
	return capture.MaxDuration
}

func (s *Server) deviceRequest(seconds float64) (capture.Request, error) {
	if s.opts.Device == nil {
		return capture.Request{}, capture.ErrDeviceUnavailable
	}
	limit := s.maxDuration()
	d := time.Duration(seconds * float64(time.Second))
	if d == 0 {
		d = time.Duration(s.opts.Capture.DefaultSeconds) * time.Second
	}
	if err := capture.ValidateDuration(d, limit); err != nil {
		return capture.Request{}, err
	}
	return capture.Request{
		Duration: d,
		Max:      limit,
		Format:   capture.Format{SampleRate: s.opts.Capture.SampleRate, Channels: s.opts.Capture.Channels},
	}, nil
}

func captured(clip audio.Clip) map[string]any {
	return map[string]any{
		"type":        "captured",
		"frames":      clip.Frames(),
		"duration_ms": clip.Duration().Milliseconds(),
	}
}

// decodeChunk inflates a WAV chunk, or raw PCM16 when mime_type says so. Raw
// PCM without a rate or channel count is taken to be in the recorder's format.
func decodeChunk(raw []byte, msg map[string]any, f capture.Format) (audio.Clip, error) {
	if mt, _ := msg["mime_type"].(string); mt == "audio/pcm" || mt == "audio/L16" || mt == "audio/pcm16" {
		sr := int(asFloat(msg["sample_rate"]))
		if sr <= 0 {
			sr = f.SampleRate
		}
		ch := int(asFloat(msg["channels"]))
		if ch <= 0 {
			ch = f.Channels
		}
		return audio.DecodePCM16LE(raw, sr, ch)
	}
	return audio.DecodeWAVBytes(raw)
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	default:
		return 0
	}
}
