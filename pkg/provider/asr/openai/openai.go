// Package openai provides an ASR provider backed by the OpenAI audio API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
)

// nativeRate is the rate the OpenAI speech models process internally.
// Sending audio at this rate avoids a server-side conversion.
const nativeRate = 16000

// Provider implements asr.Provider using the OpenAI transcription endpoint.
type Provider struct {
	client   oai.Client
	model    string
	language string
	prompt   string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	timeout  time.Duration
	language string
	prompt   string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point at
// an OpenAI-compatible local server (e.g., a whisper.cpp HTTP frontend).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithLanguage pins recognition to a BCP-47 language tag instead of
// auto-detection.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithPrompt supplies a vocabulary hint that biases recognition toward
// domain terms (device names, wake phrases).
func WithPrompt(prompt string) Option {
	return func(c *config) {
		c.prompt = prompt
	}
}

// New constructs a new OpenAI ASR Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
		prompt:   cfg.prompt,
	}, nil
}

// Transcribe implements asr.Provider. The frame is wrapped in a WAV container
// and uploaded as a single request.
func (p *Provider) Transcribe(ctx context.Context, frame audio.AudioData) (asr.Result, error) {
	if len(frame.Data) == 0 {
		return asr.Result{}, asr.ErrEmptyAudio
	}

	wav := audio.EncodeWAV(frame.Data, frame.SampleRate, frame.Channels)

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: oai.AudioModel(p.model),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}
	if p.prompt != "" {
		params.Prompt = param.NewOpt(p.prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return asr.Result{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	return asr.Result{
		Text:          strings.TrimSpace(resp.Text),
		Language:      p.language,
		AudioDuration: frame.Duration(),
	}, nil
}

// PreferredSampleRates implements asr.Provider. The API resamples uploads
// server-side, but 16kHz mono skips that step.
func (p *Provider) PreferredSampleRates() []int {
	return []int{nativeRate, 24000, 44100, 48000}
}

// SupportsSampleRate implements asr.Provider. The upload endpoint accepts any
// standard container rate.
func (p *Provider) SupportsSampleRate(rate int) bool {
	return rate >= 8000 && rate <= 48000
}

// Reset implements asr.Provider. The transcription endpoint is stateless.
func (p *Provider) Reset(context.Context) error {
	return nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string {
	return "openai"
}

// Ensure Provider implements asr.Provider at compile time.
var _ asr.Provider = (*Provider)(nil)
