// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/attalus-io/vestibule/pkg/audio"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
)

// outputRate is the fixed rate of the API's raw PCM response format.
const outputRate = 24000

// defaultVoice is used when neither the request nor the provider configures
// a voice.
const defaultVoice = "alloy"

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client oai.Client
	model  string
	voice  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	voice   string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
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

// WithVoice sets the default voice for requests that do not specify one.
func WithVoice(voice string) Option {
	return func(c *config) {
		c.voice = voice
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.SpeechModelTTS1)
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

	voice := cfg.voice
	if voice == "" {
		voice = defaultVoice
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		voice:  voice,
	}, nil
}

// Synthesize implements tts.Provider. The response is requested as raw PCM so
// no decode step is needed before playback.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.Options) (audio.AudioData, error) {
	if text == "" {
		return audio.AudioData{}, fmt.Errorf("openai: text must not be empty")
	}

	voice := opts.Voice
	if voice == "" {
		voice = p.voice
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if opts.Speed > 0 {
		params.Speed = param.NewOpt(opts.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return audio.AudioData{}, fmt.Errorf("openai: synthesize: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.AudioData{}, fmt.Errorf("openai: read speech response: %w", err)
	}
	if len(pcm)%2 != 0 {
		// The PCM stream is 16-bit aligned; a trailing odd byte means the
		// response was truncated mid-sample.
		pcm = pcm[:len(pcm)-1]
	}

	return audio.NewAudioData(pcm, outputRate, 1), nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	return outputRate
}

// Name implements tts.Provider.
func (p *Provider) Name() string {
	return "openai"
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
