package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attalus-io/vestibule/internal/config"
	"github.com/attalus-io/vestibule/pkg/provider/asr"
	asrmock "github.com/attalus-io/vestibule/pkg/provider/asr/mock"
	"github.com/attalus-io/vestibule/pkg/provider/llm"
	llmmock "github.com/attalus-io/vestibule/pkg/provider/llm/mock"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	nlumock "github.com/attalus-io/vestibule/pkg/provider/nlu/mock"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
	ttsmock "github.com/attalus-io/vestibule/pkg/provider/tts/mock"
	"github.com/attalus-io/vestibule/pkg/provider/voicetrigger"
	vtmock "github.com/attalus-io/vestibule/pkg/provider/voicetrigger/mock"
)

const sampleYAML = `
system:
  name: home
  language: ru
  log_level: debug
  log_format: json
  web_host: 127.0.0.1
  web_port: 9000
  metrics_port: 9100
  startup_greeting: "Я на связи"

inputs:
  default: microphone
  microphone:
    enabled: true
    sample_rate: 44100
    channels: 1
    frame_ms: 20
  web:
    enabled: true

components:
  voice_trigger: true
  asr: true
  text_processor: true
  nlu: true
  intent_system: true
  llm: true
  tts: true
  audio: true
  web: true

workflows:
  unified_voice_assistant:
    voice_trigger_enabled: true
    vad_enabled: true
    asr_enabled: true
    text_processing_enabled: true
    nlu_enabled: true
    intent_execution_enabled: true
    llm_enabled: true
    tts_enabled: true
    audio_output_enabled: true

voice_trigger:
  phrases: ["джарвис", "jarvis"]
  threshold: 0.75
  sample_rate: 16000

vad:
  threshold: 0.015
  voice_frames_required: 2
  silence_frames_required: 8
  max_segment_duration_s: 12

asr:
  default_provider: openai
  sample_rate: 16000
  providers:
    - name: openai
      api_key: sk-asr-test
      model: whisper-1

tts:
  default_provider: openai
  fallback_providers: [console]
  voice: alloy
  speed: 1.1
  providers:
    - name: openai
      api_key: sk-tts-test

nlu:
  confidence_threshold: 0.6
  provider_aliases:
    openai: ["опенэйай", "openai"]

llm:
  provider:
    name: ollama
    base_url: http://localhost:11434
    model: llama3.2
  temperature: 0.7
  max_tokens: 256

audio:
  resample_cache_entries: 50

intent_system:
  domain_priorities:
    audio: 90
    timer: 70
  max_history_turns: 20
  analytics:
    backend: memory
`

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "home", cfg.System.Name)
	assert.Equal(t, config.LogDebug, cfg.System.LogLevel)
	assert.Equal(t, config.LogFormatJSON, cfg.System.LogFormat)
	assert.Equal(t, 9000, cfg.System.WebPort)
	assert.Equal(t, config.InputMicrophone, cfg.Inputs.Default)
	assert.Equal(t, 44100, cfg.Inputs.Microphone.SampleRate)
	assert.True(t, cfg.ComponentEnabled(config.ComponentVoiceTrigger), "voice_trigger component should be enabled")
	assert.Equal(t, 0.75, cfg.VoiceTrigger.Threshold)
	assert.Equal(t, "textmatch", cfg.VoiceTrigger.DefaultProvider, "voice_trigger.default_provider should default to textmatch")
	assert.Equal(t, 2, cfg.VAD.VoiceFramesRequired)
	assert.Equal(t, 0.35, cfg.VAD.MaxVoiceZCR, "vad.max_voice_zcr should default to 0.35")
	require.Len(t, cfg.ASR.Providers, 1)
	assert.Equal(t, "sk-asr-test", cfg.ASR.Providers[0].APIKey)
	assert.Equal(t, []string{"console"}, cfg.TTS.FallbackProviders)
	assert.Equal(t, "llama3.2", cfg.LLM.Provider.Model)
	assert.True(t, cfg.Workflows.UnifiedVoiceAssistant.LLMEnabled, "workflow llm stage should be enabled")
	assert.Len(t, cfg.NLU.ProviderAliases["openai"], 2)
	assert.Equal(t, 20, cfg.IntentSystem.MaxHistoryTurns)
	assert.Equal(t, 1800, cfg.IntentSystem.SessionTimeoutS, "intent_system.session_timeout_s should default to 1800")
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	for _, src := range []string{"", "{}"} {
		cfg, err := config.LoadFromReader(strings.NewReader(src))
		require.NoError(t, err, "source %q", src)

		assert.Equal(t, "ru", cfg.System.Language, "system.language should default to ru")
		assert.Equal(t, config.LogInfo, cfg.System.LogLevel, "system.log_level should default to info")
		assert.Equal(t, 8765, cfg.System.WebPort, "system.web_port should default to 8765")
		assert.Equal(t, config.InputCLI, cfg.Inputs.Default, "inputs.default should default to cli")
		assert.True(t, cfg.ComponentEnabled(config.ComponentTTS), "tts component should default to enabled")
		assert.False(t, cfg.ComponentEnabled(config.ComponentASR), "asr component should default to disabled")

		w := cfg.Workflows.UnifiedVoiceAssistant
		require.NotNil(t, w, "workflow section should be derived from component toggles")
		assert.True(t, w.VADEnabled && w.TTSEnabled && w.IntentExecutionEnabled,
			"derived workflow should mirror enabled components: %+v", w)
		assert.False(t, w.ASREnabled || w.VoiceTriggerEnabled,
			"derived workflow should mirror disabled components: %+v", w)

		assert.Equal(t, 0.01, cfg.VAD.Threshold, "vad.threshold should default to 0.01")
		assert.Equal(t, []string{"fuzzy"}, cfg.NLU.FallbackProviders, "nlu.fallback_providers should default to [fuzzy]")
		assert.Equal(t, 100, cfg.Audio.ResampleCacheEntries, "audio.resample_cache_entries should default to 100")
	}
}

func TestDeploymentProfile(t *testing.T) {
	headless := config.DefaultConfig()
	assert.Equal(t, "headless", headless.DeploymentProfile())

	voice := config.DefaultConfig()
	voice.Inputs.Microphone.Enabled = true
	voice.Components[config.ComponentASR] = true
	assert.Equal(t, "voice", voice.DeploymentProfile())

	api := config.DefaultConfig()
	api.Components[config.ComponentWeb] = true
	api.Components[config.ComponentTTS] = false
	assert.Equal(t, "api", api.DeploymentProfile())

	custom := config.DefaultConfig()
	custom.Inputs.Microphone.Enabled = true
	assert.Equal(t, "custom(5)", custom.DeploymentProfile())
}

func TestProviderEntry_IsEnabled(t *testing.T) {
	e := config.ProviderEntry{Name: "openai"}
	assert.True(t, e.IsEnabled(), "entry without enabled flag should be enabled")
	off := false
	e.Enabled = &off
	assert.False(t, e.IsEnabled(), "entry with enabled: false should be disabled")
}

func TestAssetsPaths(t *testing.T) {
	a := config.AssetsConfig{}
	assert.Empty(t, a.ModelsPath(), "no root: models path should be empty")

	a = config.AssetsConfig{Root: "/srv/assistant"}
	assert.Equal(t, "/srv/assistant/models", a.ModelsPath())
	assert.Equal(t, "/srv/assistant/cache", a.CachePath())

	a.CacheDir = "/var/cache/assistant"
	assert.Equal(t, "/var/cache/assistant", a.CachePath(), "absolute override")
}

func TestVADConfig_DetectorConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	dc := cfg.VAD.DetectorConfig()
	assert.Equal(t, 0.01, dc.Threshold)
	assert.Equal(t, float64(10), dc.MaxSegmentDuration.Seconds())
}

func TestRegistry_Unknown(t *testing.T) {
	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	_, err := reg.CreateASR(entry)
	assert.ErrorIs(t, err, config.ErrProviderNotRegistered, "asr")
	_, err = reg.CreateTTS(entry)
	assert.ErrorIs(t, err, config.ErrProviderNotRegistered, "tts")
	_, err = reg.CreateNLU(entry)
	assert.ErrorIs(t, err, config.ErrProviderNotRegistered, "nlu")
	_, err = reg.CreateLLM(entry)
	assert.ErrorIs(t, err, config.ErrProviderNotRegistered, "llm")
	_, err = reg.CreateVoiceTrigger(entry)
	assert.ErrorIs(t, err, config.ErrProviderNotRegistered, "voice_trigger")
}

func TestRegistry_Registered(t *testing.T) {
	reg := config.NewRegistry()

	wantASR := &asrmock.Provider{}
	reg.RegisterASR("stub", func(config.ProviderEntry) (asr.Provider, error) { return wantASR, nil })
	gotASR, err := reg.CreateASR(config.ProviderEntry{Name: "stub"})
	require.NoError(t, err)
	assert.Same(t, wantASR, gotASR)
	assert.True(t, reg.HasASR("stub"))
	assert.False(t, reg.HasASR("other"))

	wantTTS := &ttsmock.Provider{}
	reg.RegisterTTS("stub", func(config.ProviderEntry) (tts.Provider, error) { return wantTTS, nil })
	gotTTS, err := reg.CreateTTS(config.ProviderEntry{Name: "stub"})
	require.NoError(t, err)
	assert.Same(t, wantTTS, gotTTS)

	wantNLU := &nlumock.Provider{}
	reg.RegisterNLU("stub", func(config.ProviderEntry) (nlu.Provider, error) { return wantNLU, nil })
	gotNLU, err := reg.CreateNLU(config.ProviderEntry{Name: "stub"})
	require.NoError(t, err)
	assert.Same(t, wantNLU, gotNLU)

	wantLLM := &llmmock.Provider{}
	reg.RegisterLLM("stub", func(config.ProviderEntry) (llm.Provider, error) { return wantLLM, nil })
	gotLLM, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	require.NoError(t, err)
	assert.Same(t, wantLLM, gotLLM)

	wantVT := &vtmock.Provider{}
	reg.RegisterVoiceTrigger("stub", func(config.ProviderEntry) (voicetrigger.Provider, error) { return wantVT, nil })
	gotVT, err := reg.CreateVoiceTrigger(config.ProviderEntry{Name: "stub"})
	require.NoError(t, err)
	assert.Same(t, wantVT, gotVT)
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	assert.ErrorIs(t, err, wantErr)
}
