// Package config provides the configuration schema, loader, validator, and
// provider registry for the assistant runtime.
//
// Configuration is a YAML tree with strict field checking. ${VAR} references
// anywhere in the file are expanded from the environment at load time;
// unresolved references are fatal. Validation is categorized into errors
// (fatal before component initialization), warnings, and infos.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"log/slog"

	"github.com/attalus-io/vestibule/pkg/audio"
)

// LogLevel controls logging verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a known log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog.Level. Unknown levels map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogFormat selects the slog handler encoding.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a known log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Component names as used in the components toggle map.
const (
	ComponentVoiceTrigger  = "voice_trigger"
	ComponentASR           = "asr"
	ComponentTextProcessor = "text_processor"
	ComponentNLU           = "nlu"
	ComponentIntentSystem  = "intent_system"
	ComponentLLM           = "llm"
	ComponentTTS           = "tts"
	ComponentAudio         = "audio"
	ComponentWeb           = "web"
)

// KnownComponents lists every component name the runtime ships. Unknown
// names in the toggle map produce a validation warning, not an error, since
// plugins may contribute components of their own.
var KnownComponents = []string{
	ComponentASR,
	ComponentAudio,
	ComponentIntentSystem,
	ComponentLLM,
	ComponentNLU,
	ComponentTTS,
	ComponentTextProcessor,
	ComponentVoiceTrigger,
	ComponentWeb,
}

// Pipeline stage names as used in workflow enable flags and traces.
const (
	StageVoiceTrigger    = "voice_trigger"
	StageVAD             = "vad"
	StageASR             = "asr"
	StageTextProcessing  = "text_processing"
	StageNLU             = "nlu"
	StageIntentExecution = "intent_execution"
	StageLLM             = "llm"
	StageTTS             = "tts"
	StageAudioOutput     = "audio_output"
)

// PipelineStages lists the stages in execution order.
var PipelineStages = []string{
	StageVoiceTrigger,
	StageVAD,
	StageASR,
	StageTextProcessing,
	StageNLU,
	StageIntentExecution,
	StageLLM,
	StageTTS,
	StageAudioOutput,
}

// StageComponent maps each pipeline stage to the component that implements
// it. VAD and playback both live in the audio component.
var StageComponent = map[string]string{
	StageVoiceTrigger:    ComponentVoiceTrigger,
	StageVAD:             ComponentAudio,
	StageASR:             ComponentASR,
	StageTextProcessing:  ComponentTextProcessor,
	StageNLU:             ComponentNLU,
	StageIntentExecution: ComponentIntentSystem,
	StageLLM:             ComponentLLM,
	StageTTS:             ComponentTTS,
	StageAudioOutput:     ComponentAudio,
}

// Input source names.
const (
	InputCLI        = "cli"
	InputMicrophone = "microphone"
	InputWeb        = "web"
)

// ProviderEntry configures a single provider instance within a component's
// provider list.
type ProviderEntry struct {
	// Name identifies the provider implementation ("openai", "console").
	Name string `yaml:"name"`

	// Enabled gates instantiation. Unset means enabled.
	Enabled *bool `yaml:"enabled"`

	// APIKey authenticates against the provider's API, when it has one.
	// Usually supplied via environment expansion: api_key: ${OPENAI_API_KEY}.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects the provider model, where applicable.
	Model string `yaml:"model"`

	// Options carries provider-specific settings.
	Options map[string]any `yaml:"options"`
}

// IsEnabled reports whether the entry should be instantiated.
func (e ProviderEntry) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// SystemConfig carries process-wide settings.
type SystemConfig struct {
	// Name identifies this assistant instance in logs and the dashboard.
	Name string `yaml:"name"`

	// Language is the default session language tag. Defaults to "ru".
	Language string `yaml:"language"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`

	// AudioPlaybackEnabled gates the playback path. Unset means enabled.
	// Must not be disabled while the tts component is on.
	AudioPlaybackEnabled *bool `yaml:"audio_playback_enabled"`

	// WebAPIEnabled gates the HTTP and WebSocket surface. Unset means
	// enabled.
	WebAPIEnabled *bool `yaml:"web_api_enabled"`

	// WebHost and WebPort locate the HTTP listener.
	WebHost string `yaml:"web_host"`
	WebPort int    `yaml:"web_port"`

	// MetricsPort, when nonzero, serves Prometheus metrics on a dedicated
	// listener instead of mounting /metrics on the web router.
	MetricsPort int `yaml:"metrics_port"`

	// ConfigWatchEnabled turns on hot reloading of the configuration file.
	ConfigWatchEnabled bool `yaml:"config_watch_enabled"`

	// ConfigWatchIntervalS is the watch polling interval in seconds.
	// Defaults to 5.
	ConfigWatchIntervalS int `yaml:"config_watch_interval_s"`

	// StartupGreeting, when set, is spoken through TTS once a voice
	// deployment finishes initializing.
	StartupGreeting string `yaml:"startup_greeting"`
}

// IsPlaybackEnabled reports whether synthesized audio may be played.
func (s SystemConfig) IsPlaybackEnabled() bool {
	return s.AudioPlaybackEnabled == nil || *s.AudioPlaybackEnabled
}

// IsWebAPIEnabled reports whether the HTTP surface may be served.
func (s SystemConfig) IsWebAPIEnabled() bool {
	return s.WebAPIEnabled == nil || *s.WebAPIEnabled
}

// ConfigWatchInterval returns the watch polling interval as a duration.
func (s SystemConfig) ConfigWatchInterval() time.Duration {
	return time.Duration(s.ConfigWatchIntervalS) * time.Second
}

// CLIInputConfig configures the stdin line source.
type CLIInputConfig struct {
	// Enabled gates the source. Unset means enabled; the CLI source is
	// always available.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the CLI source should be started.
func (c CLIInputConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MicrophoneInputConfig configures the audio capture source.
type MicrophoneInputConfig struct {
	Enabled bool `yaml:"enabled"`

	// Device names the capture device; empty selects the system default.
	Device string `yaml:"device"`

	// SampleRate is the capture rate in Hz. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count. Defaults to 1.
	Channels int `yaml:"channels"`

	// FrameMs is the capture frame length in milliseconds. Defaults to 30.
	FrameMs int `yaml:"frame_ms"`
}

// FrameDuration returns the capture frame length as a duration.
func (m MicrophoneInputConfig) FrameDuration() time.Duration {
	return time.Duration(m.FrameMs) * time.Millisecond
}

// WebInputConfig configures the WebSocket input source.
type WebInputConfig struct {
	Enabled bool `yaml:"enabled"`
}

// InputsConfig groups the input sources.
type InputsConfig struct {
	// Default names the input used when a request does not specify one.
	Default string `yaml:"default"`

	CLI        CLIInputConfig        `yaml:"cli"`
	Microphone MicrophoneInputConfig `yaml:"microphone"`
	Web        WebInputConfig        `yaml:"web"`
}

// InputEnabled reports whether the named input source is enabled.
func (i InputsConfig) InputEnabled(name string) bool {
	switch name {
	case InputCLI:
		return i.CLI.IsEnabled()
	case InputMicrophone:
		return i.Microphone.Enabled
	case InputWeb:
		return i.Web.Enabled
	}
	return false
}

// WorkflowConfig holds the per-stage enable flags of the unified voice
// assistant pipeline. Every enabled stage must have its implementing
// component enabled too; the validator enforces the pairing.
type WorkflowConfig struct {
	VoiceTriggerEnabled    bool `yaml:"voice_trigger_enabled"`
	VADEnabled             bool `yaml:"vad_enabled"`
	ASREnabled             bool `yaml:"asr_enabled"`
	TextProcessingEnabled  bool `yaml:"text_processing_enabled"`
	NLUEnabled             bool `yaml:"nlu_enabled"`
	IntentExecutionEnabled bool `yaml:"intent_execution_enabled"`
	LLMEnabled             bool `yaml:"llm_enabled"`
	TTSEnabled             bool `yaml:"tts_enabled"`
	AudioOutputEnabled     bool `yaml:"audio_output_enabled"`
}

// StageEnabled reports whether the named pipeline stage is on.
func (w *WorkflowConfig) StageEnabled(stage string) bool {
	switch stage {
	case StageVoiceTrigger:
		return w.VoiceTriggerEnabled
	case StageVAD:
		return w.VADEnabled
	case StageASR:
		return w.ASREnabled
	case StageTextProcessing:
		return w.TextProcessingEnabled
	case StageNLU:
		return w.NLUEnabled
	case StageIntentExecution:
		return w.IntentExecutionEnabled
	case StageLLM:
		return w.LLMEnabled
	case StageTTS:
		return w.TTSEnabled
	case StageAudioOutput:
		return w.AudioOutputEnabled
	}
	return false
}

func (w *WorkflowConfig) setStage(stage string, on bool) {
	switch stage {
	case StageVoiceTrigger:
		w.VoiceTriggerEnabled = on
	case StageVAD:
		w.VADEnabled = on
	case StageASR:
		w.ASREnabled = on
	case StageTextProcessing:
		w.TextProcessingEnabled = on
	case StageNLU:
		w.NLUEnabled = on
	case StageIntentExecution:
		w.IntentExecutionEnabled = on
	case StageLLM:
		w.LLMEnabled = on
	case StageTTS:
		w.TTSEnabled = on
	case StageAudioOutput:
		w.AudioOutputEnabled = on
	}
}

// WorkflowsConfig groups the named workflows. Only one exists today.
type WorkflowsConfig struct {
	// UnifiedVoiceAssistant configures the staged pipeline. When the
	// section is omitted, stage flags are derived from the component
	// toggles.
	UnifiedVoiceAssistant *WorkflowConfig `yaml:"unified_voice_assistant"`
}

// VoiceTriggerConfig configures wake-phrase detection.
type VoiceTriggerConfig struct {
	// Phrases are the wake phrases, matched phonetically so
	// mis-transcriptions like "gervis" still hit "jarvis".
	Phrases []string `yaml:"phrases"`

	// Threshold is the minimum detection confidence in (0, 1].
	// Defaults to 0.7.
	Threshold float64 `yaml:"threshold"`

	// SampleRate is the rate detection runs at. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count detection expects. Defaults to 1.
	Channels int `yaml:"channels"`

	DefaultProvider   string          `yaml:"default_provider"`
	FallbackProviders []string        `yaml:"fallback_providers"`
	Providers         []ProviderEntry `yaml:"providers"`
}

// VADConfig tunes voice-activity detection.
type VADConfig struct {
	// Threshold is the normalized RMS energy above which a frame counts as
	// voice. Defaults to 0.01 unless AutoThreshold is set.
	Threshold float64 `yaml:"threshold"`

	// AutoThreshold derives the threshold from ambient noise sampled at
	// startup instead of the fixed value.
	AutoThreshold bool `yaml:"auto_threshold"`

	// VoiceFramesRequired is how many consecutive voiced frames open a
	// segment. Defaults to 3.
	VoiceFramesRequired int `yaml:"voice_frames_required"`

	// SilenceFramesRequired is how many consecutive silent frames close a
	// segment. Defaults to 10.
	SilenceFramesRequired int `yaml:"silence_frames_required"`

	// MaxSegmentDurationS closes any segment that grows past this many
	// seconds. Defaults to 10.
	MaxSegmentDurationS float64 `yaml:"max_segment_duration_s"`

	// EnableZCR additionally gates voiced frames on zero-crossing rate.
	EnableZCR bool `yaml:"enable_zcr"`

	// MaxVoiceZCR is the upper ZCR bound for voiced frames when EnableZCR
	// is set. Defaults to 0.35.
	MaxVoiceZCR float64 `yaml:"max_voice_zcr"`
}

// DetectorConfig converts the section into detector settings.
func (v VADConfig) DetectorConfig() audio.VADConfig {
	return audio.VADConfig{
		Threshold:             v.Threshold,
		VoiceFramesRequired:   v.VoiceFramesRequired,
		SilenceFramesRequired: v.SilenceFramesRequired,
		MaxSegmentDuration:    time.Duration(v.MaxSegmentDurationS * float64(time.Second)),
		EnableZCR:             v.EnableZCR,
		MaxVoiceZCR:           v.MaxVoiceZCR,
	}
}

// ASRConfig configures speech recognition.
type ASRConfig struct {
	DefaultProvider   string          `yaml:"default_provider"`
	FallbackProviders []string        `yaml:"fallback_providers"`
	Providers         []ProviderEntry `yaml:"providers"`

	// SampleRate, when nonzero, is authoritative: audio is resampled to it
	// regardless of provider preferences. Zero consults the provider.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the channel count delivered to providers. Defaults to 1.
	Channels int `yaml:"channels"`

	// AllowResampling permits rate conversion on mismatch. Unset means
	// allowed. Disabling it makes any rate mismatch fatal.
	AllowResampling *bool `yaml:"allow_resampling"`
}

// ResamplingAllowed reports whether the component may convert rates.
func (c ASRConfig) ResamplingAllowed() bool {
	return c.AllowResampling == nil || *c.AllowResampling
}

// TTSConfig configures speech synthesis.
type TTSConfig struct {
	DefaultProvider   string          `yaml:"default_provider"`
	FallbackProviders []string        `yaml:"fallback_providers"`
	Providers         []ProviderEntry `yaml:"providers"`

	// Voice selects the synthesis voice, where the provider supports one.
	Voice string `yaml:"voice"`

	// Speed scales synthesis speed. Valid range is [0.5, 2.0]; zero means
	// provider default.
	Speed float64 `yaml:"speed"`
}

// NLUConfig configures intent recognition.
type NLUConfig struct {
	DefaultProvider   string          `yaml:"default_provider"`
	FallbackProviders []string        `yaml:"fallback_providers"`
	Providers         []ProviderEntry `yaml:"providers"`

	// ConfidenceThreshold is the global floor below which recognition
	// falls back to conversation.general. Defaults to 0.5.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// ProviderAliases maps a provider identifier to the spoken names users
	// may call it by, for switching providers by voice. Both Latin and
	// Cyrillic spellings are matched phonetically.
	ProviderAliases map[string][]string `yaml:"provider_aliases"`
}

// LLMConfig configures the optional reply-enrichment backend.
type LLMConfig struct {
	// Provider configures the completion backend.
	Provider ProviderEntry `yaml:"provider"`

	// Temperature is passed through to completions when nonzero.
	// Valid range is [0, 2].
	Temperature float64 `yaml:"temperature"`

	// MaxTokens bounds completion length when nonzero.
	MaxTokens int `yaml:"max_tokens"`

	// SystemPrompt frames enrichment completions. Empty uses a built-in
	// prompt in the session language.
	SystemPrompt string `yaml:"system_prompt"`
}

// TextProcessorConfig configures transcript normalization.
type TextProcessorConfig struct {
	// ExpandNumbers spells digits out as words. Unset means enabled.
	ExpandNumbers *bool `yaml:"expand_numbers"`

	// Lowercase folds the transcript before matching. Unset means enabled.
	Lowercase *bool `yaml:"lowercase"`
}

// ExpandNumbersEnabled reports whether digits should be spelled out.
func (c TextProcessorConfig) ExpandNumbersEnabled() bool {
	return c.ExpandNumbers == nil || *c.ExpandNumbers
}

// LowercaseEnabled reports whether transcripts are case-folded.
func (c TextProcessorConfig) LowercaseEnabled() bool {
	return c.Lowercase == nil || *c.Lowercase
}

// AudioConfig tunes the audio processor and playback.
type AudioConfig struct {
	// ResampleCacheEntries bounds the conversion cache. Defaults to 100.
	ResampleCacheEntries int `yaml:"resample_cache_entries"`

	// OutputDevice names the playback device; empty selects the default.
	OutputDevice string `yaml:"output_device"`

	// OutputSampleRate, when nonzero, resamples synthesized audio to this
	// rate before playback.
	OutputSampleRate int `yaml:"output_sample_rate"`
}

// AnalyticsConfig selects where session analytics are recorded.
type AnalyticsConfig struct {
	// Backend is "memory" (default) or "postgres".
	Backend string `yaml:"backend"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// IntentSystemConfig tunes intent routing and session bookkeeping.
type IntentSystemConfig struct {
	// DomainPriorities weights domains during contextual-command
	// resolution. Values above 100 are capped at 100.
	DomainPriorities map[string]int `yaml:"domain_priorities"`

	// DestructiveCommands never auto-resolve an ambiguous target; they
	// always come back asking for confirmation.
	DestructiveCommands []string `yaml:"destructive_commands"`

	// ContextualCommands are the actions resolvable against active
	// fire-and-forget actions.
	ContextualCommands []string `yaml:"contextual_commands"`

	// MaxHistoryTurns bounds per-session conversation history.
	// Defaults to 10.
	MaxHistoryTurns int `yaml:"max_history_turns"`

	// SessionTimeoutS garbage-collects sessions idle longer than this many
	// seconds. Defaults to 1800.
	SessionTimeoutS int `yaml:"session_timeout_s"`

	// CleanupIntervalS bounds how often session expiry runs.
	// Defaults to 300.
	CleanupIntervalS int `yaml:"cleanup_interval_s"`

	Analytics AnalyticsConfig `yaml:"analytics"`
}

// SessionTimeout returns the idle timeout as a duration.
func (c IntentSystemConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutS) * time.Second
}

// CleanupInterval returns the expiry sweep interval as a duration.
func (c IntentSystemConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalS) * time.Second
}

// AssetsConfig locates model files, caches, and credentials on disk.
type AssetsConfig struct {
	// Root is the assets directory. Empty disables asset management.
	Root string `yaml:"root"`

	// ModelsDir, CacheDir, and CredentialsDir override the default
	// subdirectories under Root. Absolute paths are used as-is.
	ModelsDir      string `yaml:"models_dir"`
	CacheDir       string `yaml:"cache_dir"`
	CredentialsDir string `yaml:"credentials_dir"`
}

// ModelsPath returns the models directory, or "" when assets are disabled.
func (a AssetsConfig) ModelsPath() string { return a.subdir(a.ModelsDir, "models") }

// CachePath returns the cache directory, or "" when assets are disabled.
func (a AssetsConfig) CachePath() string { return a.subdir(a.CacheDir, "cache") }

// CredentialsPath returns the credentials directory, or "" when assets are
// disabled.
func (a AssetsConfig) CredentialsPath() string { return a.subdir(a.CredentialsDir, "credentials") }

func (a AssetsConfig) subdir(override, def string) string {
	if override != "" {
		if filepath.IsAbs(override) {
			return override
		}
		return filepath.Join(a.Root, override)
	}
	if a.Root == "" {
		return ""
	}
	return filepath.Join(a.Root, def)
}

// PluginsConfig configures provider plugin discovery.
type PluginsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Paths lists directories scanned for provider plugins.
	Paths []string `yaml:"paths"`
}

// Config is the root of the configuration tree.
type Config struct {
	System SystemConfig `yaml:"system"`
	Inputs InputsConfig `yaml:"inputs"`

	// Components is the flat per-component toggle map.
	Components map[string]bool `yaml:"components"`

	Workflows WorkflowsConfig `yaml:"workflows"`

	VoiceTrigger  VoiceTriggerConfig  `yaml:"voice_trigger"`
	VAD           VADConfig           `yaml:"vad"`
	ASR           ASRConfig           `yaml:"asr"`
	TTS           TTSConfig           `yaml:"tts"`
	NLU           NLUConfig           `yaml:"nlu"`
	LLM           LLMConfig           `yaml:"llm"`
	TextProcessor TextProcessorConfig `yaml:"text_processor"`
	Audio         AudioConfig         `yaml:"audio"`

	IntentSystem IntentSystemConfig `yaml:"intent_system"`

	Assets  AssetsConfig  `yaml:"assets"`
	Plugins PluginsConfig `yaml:"plugins"`
}

// ComponentEnabled reports whether the named component is toggled on.
func (c *Config) ComponentEnabled(name string) bool {
	return c.Components[name]
}

// EnabledComponents returns the names of all enabled components, sorted.
func (c *Config) EnabledComponents() []string {
	names := make([]string, 0, len(c.Components))
	for name, on := range c.Components {
		if on {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// DeploymentProfile classifies the enabled set: "voice" when microphone
// capture, ASR, TTS, and audio are all on; "api" when the web surface runs
// without a microphone or TTS; "headless" when only the CLI input is used;
// anything else is "custom(N)" with N the number of enabled components.
func (c *Config) DeploymentProfile() string {
	mic := c.Inputs.Microphone.Enabled
	web := c.Inputs.Web.Enabled || c.ComponentEnabled(ComponentWeb)
	switch {
	case mic && c.ComponentEnabled(ComponentASR) &&
		c.ComponentEnabled(ComponentTTS) && c.ComponentEnabled(ComponentAudio):
		return "voice"
	case web && !mic && !c.ComponentEnabled(ComponentTTS):
		return "api"
	case c.Inputs.CLI.IsEnabled() && !mic && !web:
		return "headless"
	default:
		return fmt.Sprintf("custom(%d)", len(c.EnabledComponents()))
	}
}

// DefaultConfig returns the configuration an empty file yields: a headless
// console assistant that answers through console TTS.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills in every unset field that has a documented default.
// Called by the loader after decoding and before validation.
func applyDefaults(cfg *Config) {
	if cfg.System.Name == "" {
		cfg.System.Name = "vestibule"
	}
	if cfg.System.Language == "" {
		cfg.System.Language = "ru"
	}
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = LogInfo
	}
	if cfg.System.LogFormat == "" {
		cfg.System.LogFormat = LogFormatText
	}
	if cfg.System.WebHost == "" {
		cfg.System.WebHost = "0.0.0.0"
	}
	if cfg.System.WebPort == 0 {
		cfg.System.WebPort = 8765
	}
	if cfg.System.ConfigWatchIntervalS == 0 {
		cfg.System.ConfigWatchIntervalS = 5
	}

	if cfg.Inputs.Default == "" {
		cfg.Inputs.Default = InputCLI
	}
	if cfg.Inputs.Microphone.SampleRate == 0 {
		cfg.Inputs.Microphone.SampleRate = 16000
	}
	if cfg.Inputs.Microphone.Channels == 0 {
		cfg.Inputs.Microphone.Channels = 1
	}
	if cfg.Inputs.Microphone.FrameMs == 0 {
		cfg.Inputs.Microphone.FrameMs = 30
	}

	if cfg.Components == nil {
		cfg.Components = map[string]bool{
			ComponentAudio:         true,
			ComponentIntentSystem:  true,
			ComponentNLU:           true,
			ComponentTTS:           true,
			ComponentTextProcessor: true,
		}
	}

	if cfg.Workflows.UnifiedVoiceAssistant == nil {
		w := &WorkflowConfig{}
		for _, stage := range PipelineStages {
			w.setStage(stage, cfg.Components[StageComponent[stage]])
		}
		cfg.Workflows.UnifiedVoiceAssistant = w
	}

	if len(cfg.VoiceTrigger.Phrases) == 0 {
		cfg.VoiceTrigger.Phrases = []string{"джарвис", "jarvis"}
	}
	if cfg.VoiceTrigger.Threshold == 0 {
		cfg.VoiceTrigger.Threshold = 0.7
	}
	if cfg.VoiceTrigger.SampleRate == 0 {
		cfg.VoiceTrigger.SampleRate = 16000
	}
	if cfg.VoiceTrigger.Channels == 0 {
		cfg.VoiceTrigger.Channels = 1
	}
	if cfg.VoiceTrigger.DefaultProvider == "" {
		cfg.VoiceTrigger.DefaultProvider = "textmatch"
	}

	if cfg.VAD.Threshold == 0 && !cfg.VAD.AutoThreshold {
		cfg.VAD.Threshold = 0.01
	}
	if cfg.VAD.VoiceFramesRequired == 0 {
		cfg.VAD.VoiceFramesRequired = 3
	}
	if cfg.VAD.SilenceFramesRequired == 0 {
		cfg.VAD.SilenceFramesRequired = 10
	}
	if cfg.VAD.MaxSegmentDurationS == 0 {
		cfg.VAD.MaxSegmentDurationS = 10
	}
	if cfg.VAD.MaxVoiceZCR == 0 {
		cfg.VAD.MaxVoiceZCR = 0.35
	}

	if cfg.ASR.DefaultProvider == "" {
		cfg.ASR.DefaultProvider = "openai"
	}
	if cfg.ASR.Channels == 0 {
		cfg.ASR.Channels = 1
	}

	if cfg.TTS.DefaultProvider == "" {
		cfg.TTS.DefaultProvider = "console"
	}

	if cfg.NLU.DefaultProvider == "" {
		cfg.NLU.DefaultProvider = "donation"
	}
	if len(cfg.NLU.FallbackProviders) == 0 {
		cfg.NLU.FallbackProviders = []string{"fuzzy"}
	}
	if cfg.NLU.ConfidenceThreshold == 0 {
		cfg.NLU.ConfidenceThreshold = 0.5
	}

	if cfg.Audio.ResampleCacheEntries == 0 {
		cfg.Audio.ResampleCacheEntries = 100
	}

	if cfg.IntentSystem.DomainPriorities == nil {
		cfg.IntentSystem.DomainPriorities = map[string]int{
			"audio":        90,
			"timer":        70,
			"conversation": 50,
		}
	}
	if len(cfg.IntentSystem.DestructiveCommands) == 0 {
		cfg.IntentSystem.DestructiveCommands = []string{"stop", "cancel"}
	}
	if len(cfg.IntentSystem.ContextualCommands) == 0 {
		cfg.IntentSystem.ContextualCommands = []string{
			"stop", "pause", "resume", "cancel", "volume", "next", "previous",
		}
	}
	if cfg.IntentSystem.MaxHistoryTurns == 0 {
		cfg.IntentSystem.MaxHistoryTurns = 10
	}
	if cfg.IntentSystem.SessionTimeoutS == 0 {
		cfg.IntentSystem.SessionTimeoutS = 1800
	}
	if cfg.IntentSystem.CleanupIntervalS == 0 {
		cfg.IntentSystem.CleanupIntervalS = 300
	}
	if cfg.IntentSystem.Analytics.Backend == "" {
		cfg.IntentSystem.Analytics.Backend = "memory"
	}
}
