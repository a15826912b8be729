package web

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/attalus-io/vestibule/internal/component"
	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/internal/input"
	"github.com/attalus-io/vestibule/internal/observe"
	"github.com/attalus-io/vestibule/internal/session"
	"github.com/attalus-io/vestibule/internal/workflow"
	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/types"
)

// maxAudioUpload caps uploaded audio payloads.
const maxAudioUpload = 10 << 20

const tooLargeMsg = "Audio file too large"

// CommandRequest is the body of /execute/command and /trace/command.
type CommandRequest struct {
	Command  string         `json:"command"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CommandResponse is the outcome of one executed command.
type CommandResponse struct {
	Success  bool           `json:"success"`
	Response string         `json:"response"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// FinalResult is the pipeline outcome inside a trace response.
type FinalResult struct {
	Text        string         `json:"text"`
	Success     bool           `json:"success"`
	ShouldSpeak bool           `json:"should_speak"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TraceCommandResponse is the outcome of /trace/command and /trace/audio:
// the result plus the full stage-by-stage execution record.
type TraceCommandResponse struct {
	Success        bool            `json:"success"`
	FinalResult    FinalResult     `json:"final_result"`
	ExecutionTrace workflow.Report `json:"execution_trace"`
	Timestamp      time.Time       `json:"timestamp"`
	Error          string          `json:"error,omitempty"`
}

func commandResponse(res types.IntentResult) CommandResponse {
	return CommandResponse{
		Success:  res.Success,
		Response: res.Text,
		Error:    string(res.Error),
		Metadata: res.Metadata,
	}
}

func finalResult(res types.IntentResult) FinalResult {
	return FinalResult{
		Text:        res.Text,
		Success:     res.Success,
		ShouldSpeak: res.ShouldSpeak,
		Confidence:  res.Confidence,
		Metadata:    res.Metadata,
	}
}

// sessionID resolves the session for a request: an explicit id wins, then
// room and client hints, then a fresh web session.
func sessionID(md map[string]any) string {
	if sid, ok := md["session_id"].(string); ok && sid != "" {
		return sid
	}
	room, _ := md["room_id"].(string)
	client, _ := md["client_id"].(string)
	return session.GenerateSessionID("web", room, client)
}

func wantsAudio(md map[string]any) bool {
	v, _ := md["wants_audio"].(bool)
	return v
}

// requestID prefers the trace id the middleware established; without one
// (tests, bare handlers) a random id keeps traces distinguishable.
func requestID(r *http.Request) string {
	if rid := observe.RequestID(r.Context()); rid != "" {
		return rid
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req_unknown"
	}
	return "req_" + hex.EncodeToString(b[:])
}

func decodeCommand(w http.ResponseWriter, r *http.Request) (CommandRequest, bool) {
	var req CommandRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	if strings.TrimSpace(req.Command) == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	p := s.getPipeline()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	res := p.ProcessTextInput(r.Context(), req.Command, workflow.Request{
		SessionID:  sessionID(req.Metadata),
		WantsAudio: wantsAudio(req.Metadata),
	})
	writeJSON(w, http.StatusOK, commandResponse(res))
}

func (s *Server) handleTraceCommand(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeCommand(w, r)
	if !ok {
		return
	}
	p := s.getPipeline()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	tr := workflow.NewTrace(requestID(r))
	res := p.ProcessTextInput(r.Context(), req.Command, workflow.Request{
		SessionID:  sessionID(req.Metadata),
		WantsAudio: wantsAudio(req.Metadata),
		Trace:      tr,
	})
	writeJSON(w, http.StatusOK, TraceCommandResponse{
		Success:        res.Success,
		FinalResult:    finalResult(res),
		ExecutionTrace: tr.Report(),
		Timestamp:      time.Now(),
		Error:          string(res.Error),
	})
}

func (s *Server) handleExecuteAudio(w http.ResponseWriter, r *http.Request) {
	frame, sid, ok := s.readAudioUpload(w, r)
	if !ok {
		return
	}
	p := s.getPipeline()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	res := p.ProcessAudioInput(r.Context(), frame, workflow.Request{
		SessionID: sid,
		// An uploaded file is always addressed to the assistant.
		ClientContext: map[string]any{"skip_wake_word": true},
	})
	writeJSON(w, http.StatusOK, commandResponse(res))
}

func (s *Server) handleTraceAudio(w http.ResponseWriter, r *http.Request) {
	frame, sid, ok := s.readAudioUpload(w, r)
	if !ok {
		return
	}
	p := s.getPipeline()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not ready")
		return
	}

	tr := workflow.NewTrace(requestID(r))
	res := p.ProcessAudioInput(r.Context(), frame, workflow.Request{
		SessionID:     sid,
		ClientContext: map[string]any{"skip_wake_word": true},
		Trace:         tr,
	})
	writeJSON(w, http.StatusOK, TraceCommandResponse{
		Success:        res.Success,
		FinalResult:    finalResult(res),
		ExecutionTrace: tr.Report(),
		Timestamp:      time.Now(),
		Error:          string(res.Error),
	})
}

// readAudioUpload parses the multipart upload shared by the audio
// endpoints. On failure it has already written the error response.
func (s *Server) readAudioUpload(w http.ResponseWriter, r *http.Request) (audio.AudioData, string, bool) {
	// The multipart envelope gets some slack beyond the payload cap; the
	// file itself is measured exactly below.
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload+1<<20)
	if err := r.ParseMultipartForm(4 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return audio.AudioData{}, "", false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return audio.AudioData{}, "", false
	}

	f, _, err := r.FormFile("audio_file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "audio_file field is required")
		return audio.AudioData{}, "", false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxAudioUpload+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "reading upload failed")
		return audio.AudioData{}, "", false
	}
	if len(data) > maxAudioUpload {
		writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return audio.AudioData{}, "", false
	}

	frame, err := decodeAudioPayload(data, r.FormValue("sample_rate"), r.FormValue("channels"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return audio.AudioData{}, "", false
	}

	sid := r.FormValue("session_id")
	if sid == "" {
		sid = session.GenerateSessionID("web", "", "")
	}
	return frame, sid, true
}

// decodeAudioPayload turns an uploaded payload into a frame. WAV headers
// are honored; anything else is raw little-endian PCM at the declared
// (or default) format.
func decodeAudioPayload(data []byte, rateField, channelsField string) (audio.AudioData, error) {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		pcm, rate, channels, err := audio.DecodeWAV(data)
		if err != nil {
			return audio.AudioData{}, errors.New("invalid WAV payload")
		}
		return audio.NewAudioData(pcm, rate, channels), nil
	}

	rate := 16000
	if rateField != "" {
		v, err := strconv.Atoi(rateField)
		if err != nil || v <= 0 {
			return audio.AudioData{}, errors.New("invalid sample_rate")
		}
		rate = v
	}
	channels := 1
	if channelsField != "" {
		v, err := strconv.Atoi(channelsField)
		if err != nil || v <= 0 {
			return audio.AudioData{}, errors.New("invalid channels")
		}
		channels = v
	}
	return audio.NewAudioData(data, rate, channels), nil
}

// --- input push bridge ---

type inputTextRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleInputText(w http.ResponseWriter, r *http.Request) {
	sink := s.getInputSink()
	if sink == nil {
		writeError(w, http.StatusServiceUnavailable, "web input source not running")
		return
	}

	var req inputTextRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	err := sink.Push(r.Context(), input.Data{
		Kind:      input.KindText,
		Text:      req.Text,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleInputAudio(w http.ResponseWriter, r *http.Request) {
	sink := s.getInputSink()
	if sink == nil {
		writeError(w, http.StatusServiceUnavailable, "web input source not running")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioUpload+1))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
			return
		}
		writeError(w, http.StatusBadRequest, "reading body failed")
		return
	}
	if len(body) > maxAudioUpload {
		writeError(w, http.StatusRequestEntityTooLarge, tooLargeMsg)
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty audio payload")
		return
	}

	q := r.URL.Query()
	frame, err := decodeAudioPayload(body, q.Get("sample_rate"), q.Get("channels"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item := input.Data{Kind: input.KindAudio, Audio: frame, SessionID: q.Get("session_id")}

	// With transcribe=true and a live recognizer the chunk is pushed as
	// text, saving the pipeline an ASR pass.
	if q.Get("transcribe") == "true" {
		if tc, ok := s.transcriber(); ok {
			res, err := tc.Transcribe(r.Context(), frame)
			if err != nil {
				writeError(w, http.StatusBadGateway, "transcription failed")
				return
			}
			item = input.Data{Kind: input.KindText, Text: res.Text, SessionID: item.SessionID}
		}
	}

	if err := sink.Push(r.Context(), item); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// transcriber fetches the live ASR component, if any.
func (s *Server) transcriber() (Transcriber, bool) {
	if s.components == nil {
		return nil, false
	}
	c, ok := s.components.Get(config.ComponentASR)
	if !ok {
		return nil, false
	}
	tc, ok := c.(Transcriber)
	return tc, ok
}

// --- status surfaces ---

type statusResponse struct {
	Status     string                     `json:"status"`
	Name       string                     `json:"name,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Profile    string                     `json:"profile"`
	UptimeS    float64                    `json:"uptime_s"`
	Components map[string]component.State `json:"components"`
	Sessions   session.ManagerStats       `json:"sessions"`
	Timestamp  time.Time                  `json:"timestamp"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:     "running",
		Name:       s.cfg.System.Name,
		Version:    s.version,
		Profile:    s.cfg.DeploymentProfile(),
		UptimeS:    time.Since(s.started).Seconds(),
		Components: map[string]component.State{},
		Timestamp:  time.Now(),
	}
	if s.components != nil {
		for _, st := range s.components.States() {
			resp.Components[st.Name] = st.State
		}
	}
	if s.sessions != nil {
		resp.Sessions = s.sessions.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	var states []component.Status
	if s.components != nil {
		states = s.components.States()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"components": states,
		"timestamp":  time.Now(),
	})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"uptime_s":  time.Since(s.started).Seconds(),
		"timestamp": time.Now(),
	}
	if s.collector != nil {
		resp["stats"] = s.collector.Snapshot()
	}
	if s.sessions != nil {
		resp["sessions"] = s.sessions.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{}
	for _, name := range config.KnownComponents {
		components[name] = s.cfg.ComponentEnabled(name)
	}
	stages := map[string]bool{}
	if wf := s.cfg.Workflows.UnifiedVoiceAssistant; wf != nil {
		for _, stage := range config.PipelineStages {
			stages[stage] = wf.StageEnabled(stage)
		}
	}
	inputs := map[string]bool{
		config.InputCLI:        s.cfg.Inputs.CLI.IsEnabled(),
		config.InputMicrophone: s.cfg.Inputs.Microphone.Enabled,
		config.InputWeb:        s.cfg.Inputs.Web.Enabled,
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":        s.cfg.DeploymentProfile(),
		"language":       s.cfg.System.Language,
		"web_api":        s.cfg.System.IsWebAPIEnabled(),
		"audio_playback": s.cfg.System.IsPlaybackEnabled(),
		"components":     components,
		"stages":         stages,
		"inputs":         inputs,
		"default_input":  s.cfg.Inputs.Default,
	})
}

// readJSON decodes a JSON body, rejecting trailing garbage.
func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON body")
	}
	return nil
}
