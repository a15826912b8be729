package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
)

// defaultStreamRate is assumed for base64 chunks that carry no format of
// their own. The binary protocol declares its format in the handshake.
const defaultStreamRate = 16000

// Transcriber is the slice of the ASR component the streaming endpoints
// and the input bridge use.
type Transcriber interface {
	// PrepareInput converts a frame to the recognizer's format through
	// the shared conversion cache, stamping conversion metadata.
	PrepareInput(ctx context.Context, frame audio.AudioData) (audio.AudioData, error)
	Transcribe(ctx context.Context, frame audio.AudioData) (asr.Result, error)
	// Reset clears recognition state; called on every disconnect.
	Reset(ctx context.Context)
	// ProviderName names the primary recognizer for result attribution.
	ProviderName() string
}

// Route is one endpoint a component contributes to the router.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc

	// WS annotates WebSocket endpoints for the AsyncAPI document; nil
	// for plain HTTP routes.
	WS *WSAnnotation
}

// WSAnnotation describes a WebSocket endpoint: what it receives, what it
// sends, and how the generated documentation presents it.
type WSAnnotation struct {
	Description string
	Tags        []string
	Receives    []Message
	Sends       []Message
}

// Message names one wire message with its JSON schema.
type Message struct {
	Name   string
	Schema map[string]any
}

// RouterProvider contributes routes mounted under a path prefix.
type RouterProvider interface {
	Prefix() string
	Routes() []Route
}

// --- wire messages ---

type audioChunkMessage struct {
	Type     string `json:"type"`
	Data     string `json:"data"`
	Language string `json:"language,omitempty"`
	Provider string `json:"provider,omitempty"`
}

type streamConfig struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Format     string `json:"format"`
	Language   string `json:"language,omitempty"`
	Provider   string `json:"provider,omitempty"`
}

// binaryHandshake is the first message of the binary protocol: either a
// flat session_config or the binary_websocket_protocol wrapper.
type binaryHandshake struct {
	Type string `json:"type"`
	streamConfig
	SessionConfig *streamConfig `json:"session_config,omitempty"`
}

type sessionReady struct {
	Type           string       `json:"type"`
	ProtocolFormat string       `json:"protocol_format"`
	Config         streamConfig `json:"config"`
	Timestamp      time.Time    `json:"timestamp"`
}

type transcriptionResult struct {
	Type      string         `json:"type"`
	Text      string         `json:"text"`
	Provider  string         `json:"provider"`
	Language  string         `json:"language,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type streamError struct {
	Type      string    `json:"type"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func newStreamError(msg string) streamError {
	return streamError{Type: "error", Error: msg, Timestamp: time.Now()}
}

// ASRStream serves the recognizer's two streaming endpoints: a JSON
// protocol carrying base64 chunks and a binary protocol with a config
// handshake followed by raw PCM frames.
type ASRStream struct {
	asr Transcriber
}

func NewASRStream(t Transcriber) *ASRStream {
	return &ASRStream{asr: t}
}

func (s *ASRStream) Prefix() string { return "/asr" }

func (s *ASRStream) Routes() []Route {
	return []Route{
		{
			Method:  "GET",
			Path:    "/stream",
			Handler: s.handleJSONStream,
			WS: &WSAnnotation{
				Description: "Speech recognition over JSON messages with base64-encoded audio chunks.",
				Tags:        []string{"asr", "streaming"},
				Receives:    []Message{{Name: "audio_chunk", Schema: audioChunkSchema()}},
				Sends: []Message{
					{Name: "transcription_result", Schema: transcriptionResultSchema()},
					{Name: "error", Schema: streamErrorSchema()},
				},
			},
		},
		{
			Method:  "GET",
			Path:    "/stream/binary",
			Handler: s.handleBinaryStream,
			WS: &WSAnnotation{
				Description: "Speech recognition over raw PCM frames after a session_config handshake.",
				Tags:        []string{"asr", "streaming", "binary"},
				Receives:    []Message{{Name: "session_config", Schema: sessionConfigSchema()}},
				Sends: []Message{
					{Name: "session_ready", Schema: sessionReadySchema()},
					{Name: "transcription_result", Schema: transcriptionResultSchema()},
					{Name: "error", Schema: streamErrorSchema()},
				},
			},
		},
	}
}

func (s *ASRStream) handleJSONStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")
	// Recognition state never outlives a connection.
	defer s.asr.Reset(context.Background())

	ctx := r.Context()
	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			writeWS(ctx, conn, newStreamError("expected a JSON text message"))
			continue
		}

		var msg audioChunkMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			writeWS(ctx, conn, newStreamError("invalid JSON message"))
			continue
		}
		if msg.Type != "audio_chunk" {
			writeWS(ctx, conn, newStreamError("unsupported message type "+msg.Type))
			continue
		}
		pcm, err := base64.StdEncoding.DecodeString(msg.Data)
		if err != nil || len(pcm) == 0 {
			writeWS(ctx, conn, newStreamError("invalid base64 audio data"))
			continue
		}

		frame := audio.NewAudioData(pcm, defaultStreamRate, 1)
		s.transcribeAndReply(ctx, conn, frame, msg.Language)
	}
}

func (s *ASRStream) handleBinaryStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "path", r.URL.Path, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")
	defer s.asr.Reset(context.Background())

	ctx := r.Context()
	cfg, ok := s.handshake(ctx, conn)
	if !ok {
		return
	}
	writeWS(ctx, conn, sessionReady{
		Type:           "session_ready",
		ProtocolFormat: "binary",
		Config:         cfg,
		Timestamp:      time.Now(),
	})

	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return
		}
		switch typ {
		case websocket.MessageBinary:
			if len(payload) == 0 {
				continue
			}
			frame := audio.NewAudioData(payload, cfg.SampleRate, cfg.Channels)
			s.transcribeAndReply(ctx, conn, frame, cfg.Language)
		default:
			writeWS(ctx, conn, newStreamError("binary frames expected after session_config"))
		}
	}
}

// handshake reads and validates the binary protocol's opening message.
func (s *ASRStream) handshake(ctx context.Context, conn *websocket.Conn) (streamConfig, bool) {
	typ, payload, err := conn.Read(ctx)
	if err != nil {
		return streamConfig{}, false
	}
	if typ != websocket.MessageText {
		writeWS(ctx, conn, newStreamError("session_config must be the first message"))
		conn.Close(websocket.StatusUnsupportedData, "missing session_config")
		return streamConfig{}, false
	}

	var hs binaryHandshake
	if err := json.Unmarshal(payload, &hs); err != nil {
		writeWS(ctx, conn, newStreamError("invalid session_config"))
		conn.Close(websocket.StatusUnsupportedData, "invalid session_config")
		return streamConfig{}, false
	}

	var cfg streamConfig
	switch {
	case hs.Type == "session_config":
		cfg = hs.streamConfig
	case hs.Type == "binary_websocket_protocol" && hs.SessionConfig != nil:
		cfg = *hs.SessionConfig
	default:
		writeWS(ctx, conn, newStreamError("unsupported handshake type "+hs.Type))
		conn.Close(websocket.StatusUnsupportedData, "unsupported handshake")
		return streamConfig{}, false
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultStreamRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.Format == "" {
		cfg.Format = "pcm_s16le"
	}
	if cfg.Format != "pcm_s16le" {
		writeWS(ctx, conn, newStreamError("unsupported format "+cfg.Format))
		conn.Close(websocket.StatusUnsupportedData, "unsupported format")
		return streamConfig{}, false
	}
	return cfg, true
}

// transcribeAndReply runs one chunk through conversion and recognition,
// reporting cache and resampling status with the result.
func (s *ASRStream) transcribeAndReply(ctx context.Context, conn *websocket.Conn, frame audio.AudioData, language string) {
	prepared, err := s.asr.PrepareInput(ctx, frame)
	if err != nil {
		writeWS(ctx, conn, newStreamError("audio conversion failed: "+err.Error()))
		return
	}
	res, err := s.asr.Transcribe(ctx, prepared)
	if err != nil {
		writeWS(ctx, conn, newStreamError("transcription failed"))
		return
	}

	md := map[string]any{"cache_hit": false}
	if hit, ok := prepared.Metadata[audio.MetaCacheHit].(bool); ok {
		md["cache_hit"] = hit
	}
	if applied, ok := prepared.Metadata[audio.MetaResamplingApplied].(bool); ok {
		md["resampling_applied"] = applied
	}

	lang := res.Language
	if lang == "" {
		lang = language
	}
	writeWS(ctx, conn, transcriptionResult{
		Type:      "transcription_result",
		Text:      res.Text,
		Provider:  s.asr.ProviderName(),
		Language:  lang,
		Timestamp: time.Now(),
		Metadata:  md,
	})
}

func writeWS(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("websocket message marshal failed", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}

// --- message schemas for the AsyncAPI document ---

func objectSchema(desc string, props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if desc != "" {
		s["description"] = desc
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func audioChunkSchema() map[string]any {
	return objectSchema("One base64-encoded audio chunk.", map[string]any{
		"type":     map[string]any{"const": "audio_chunk"},
		"data":     map[string]any{"type": "string", "contentEncoding": "base64"},
		"language": map[string]any{"type": "string"},
		"provider": map[string]any{"type": "string"},
	}, "type", "data")
}

func sessionConfigSchema() map[string]any {
	cfg := map[string]any{
		"sample_rate": map[string]any{"type": "integer", "default": defaultStreamRate},
		"channels":    map[string]any{"type": "integer", "default": 1},
		"format":      map[string]any{"type": "string", "enum": []string{"pcm_s16le"}},
		"language":    map[string]any{"type": "string"},
		"provider":    map[string]any{"type": "string"},
	}
	return map[string]any{
		"description": "Stream format declaration, flat or wrapped in binary_websocket_protocol.",
		"oneOf": []any{
			objectSchema("", mergeProps(cfg, map[string]any{
				"type": map[string]any{"const": "session_config"},
			}), "type"),
			objectSchema("", map[string]any{
				"type":           map[string]any{"const": "binary_websocket_protocol"},
				"session_config": objectSchema("", cfg),
			}, "type", "session_config"),
		},
	}
}

func sessionReadySchema() map[string]any {
	return objectSchema("Server acknowledgement; binary frames may follow.", map[string]any{
		"type":            map[string]any{"const": "session_ready"},
		"protocol_format": map[string]any{"type": "string"},
		"config":          map[string]any{"type": "object"},
		"timestamp":       map[string]any{"type": "string", "format": "date-time"},
	}, "type")
}

func transcriptionResultSchema() map[string]any {
	return objectSchema("Recognition outcome for one chunk.", map[string]any{
		"type":      map[string]any{"const": "transcription_result"},
		"text":      map[string]any{"type": "string"},
		"provider":  map[string]any{"type": "string"},
		"language":  map[string]any{"type": "string"},
		"timestamp": map[string]any{"type": "string", "format": "date-time"},
		"metadata":  map[string]any{"type": "object"},
	}, "type", "text", "provider")
}

func streamErrorSchema() map[string]any {
	return objectSchema("Recognition or protocol failure; the stream stays open.", map[string]any{
		"type":      map[string]any{"const": "error"},
		"error":     map[string]any{"type": "string"},
		"timestamp": map[string]any{"type": "string", "format": "date-time"},
	}, "type", "error")
}

func mergeProps(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
