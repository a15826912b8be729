package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"log/slog"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Issue is a single validation finding, located by a dotted config path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationResult is the categorized outcome of validating a config tree.
// Errors are fatal before component initialization; warnings flag wasted or
// suspicious settings; infos are recommendations.
type ValidationResult struct {
	Errors   []Issue
	Warnings []Issue
	Infos    []Issue
}

// Valid reports whether the configuration can be used.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err joins all error issues into one error, or returns nil when valid.
func (r *ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, is := range r.Errors {
		errs = append(errs, fmt.Errorf("config: %s", is))
	}
	return errors.Join(errs...)
}

// LogWarnings emits all warnings and infos through slog.
func (r *ValidationResult) LogWarnings() {
	for _, is := range r.Warnings {
		slog.Warn("config: "+is.Message, "path", is.Path)
	}
	for _, is := range r.Infos {
		slog.Info("config: "+is.Message, "path", is.Path)
	}
}

func (r *ValidationResult) errorf(path, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Severity: SeverityError, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(path, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Severity: SeverityWarning, Path: path, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) infof(path, format string, args ...any) {
	r.Infos = append(r.Infos, Issue{Severity: SeverityInfo, Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the configuration tree against the runtime's invariants.
// It is a pure function of the tree except for the assets check, which
// creates missing asset directories to prove they are creatable. Validating
// the same valid tree twice yields identical results.
func Validate(cfg *Config) *ValidationResult {
	res := &ValidationResult{}

	validateSystem(cfg, res)
	validateInputs(cfg, res)
	validateComponents(cfg, res)
	validateWorkflow(cfg, res)
	validateVoiceTrigger(cfg, res)
	validateVAD(cfg, res)
	validateASR(cfg, res)
	validateTTS(cfg, res)
	validateNLU(cfg, res)
	validateLLM(cfg, res)
	validateIntentSystem(cfg, res)
	validateAudioCompatibility(cfg, res)
	validateAssets(cfg, res)

	return res
}

func validateSystem(cfg *Config, res *ValidationResult) {
	if !cfg.System.LogLevel.IsValid() {
		res.errorf("system.log_level", "unknown log level %q (valid: debug, info, warn, error)", cfg.System.LogLevel)
	}
	if !cfg.System.LogFormat.IsValid() {
		res.errorf("system.log_format", "unknown log format %q (valid: text, json)", cfg.System.LogFormat)
	}
	if cfg.System.WebPort < 1 || cfg.System.WebPort > 65535 {
		res.errorf("system.web_port", "port %d out of range [1, 65535]", cfg.System.WebPort)
	}
	if cfg.System.MetricsPort != 0 {
		if cfg.System.MetricsPort < 1 || cfg.System.MetricsPort > 65535 {
			res.errorf("system.metrics_port", "port %d out of range [1, 65535]", cfg.System.MetricsPort)
		} else if cfg.System.MetricsPort == cfg.System.WebPort {
			res.errorf("system.metrics_port", "metrics port %d conflicts with web port", cfg.System.MetricsPort)
		}
	}
	if cfg.System.ConfigWatchIntervalS < 1 {
		res.errorf("system.config_watch_interval_s", "interval must be at least 1 second")
	}
}

func validateInputs(cfg *Config, res *ValidationResult) {
	switch cfg.Inputs.Default {
	case InputCLI, InputMicrophone, InputWeb:
		if !cfg.Inputs.InputEnabled(cfg.Inputs.Default) {
			res.errorf("inputs.default", "default input %q is not enabled", cfg.Inputs.Default)
		}
	default:
		res.errorf("inputs.default", "unknown input %q (valid: cli, microphone, web)", cfg.Inputs.Default)
	}

	if !cfg.Inputs.CLI.IsEnabled() && !cfg.Inputs.Microphone.Enabled && !cfg.Inputs.Web.Enabled {
		res.errorf("inputs", "no input sources enabled")
	}

	if mic := cfg.Inputs.Microphone; mic.Enabled {
		if mic.SampleRate < 8000 || mic.SampleRate > 192000 {
			res.errorf("inputs.microphone.sample_rate", "sample rate %d out of range [8000, 192000]", mic.SampleRate)
		}
		if mic.Channels < 1 || mic.Channels > 2 {
			res.errorf("inputs.microphone.channels", "channel count %d not supported (valid: 1, 2)", mic.Channels)
		}
		if mic.FrameMs < 10 || mic.FrameMs > 100 {
			res.warnf("inputs.microphone.frame_ms", "unusual frame length %d ms (typical: 10-100)", mic.FrameMs)
		}
	}

	if cfg.Inputs.Web.Enabled {
		if !cfg.System.IsWebAPIEnabled() {
			res.errorf("inputs.web", "web input requires system.web_api_enabled")
		}
		if !cfg.ComponentEnabled(ComponentWeb) {
			res.errorf("inputs.web", "web input requires the web component")
		}
	}
}

func validateComponents(cfg *Config, res *ValidationResult) {
	for name := range cfg.Components {
		if !slices.Contains(KnownComponents, name) {
			res.warnf("components", "unknown component %q (known: %s)", name, strings.Join(KnownComponents, ", "))
		}
	}

	if cfg.ComponentEnabled(ComponentTTS) && !cfg.System.IsPlaybackEnabled() {
		res.errorf("components.tts", "tts component requires system.audio_playback_enabled")
	}
	if cfg.ComponentEnabled(ComponentWeb) && !cfg.System.IsWebAPIEnabled() {
		res.errorf("components.web", "web component requires system.web_api_enabled")
	}
	if cfg.ComponentEnabled(ComponentASR) &&
		!cfg.Inputs.Microphone.Enabled && !cfg.Inputs.Web.Enabled && !cfg.ComponentEnabled(ComponentWeb) {
		res.warnf("components.asr", "asr component enabled but no audio input can reach it")
	}
}

func validateWorkflow(cfg *Config, res *ValidationResult) {
	w := cfg.Workflows.UnifiedVoiceAssistant
	if w == nil {
		// The loader derives the section from component toggles; a nil here
		// means Validate was called on a hand-built tree.
		res.errorf("workflows.unified_voice_assistant", "missing workflow section")
		return
	}

	for _, stage := range PipelineStages {
		comp := StageComponent[stage]
		if w.StageEnabled(stage) && !cfg.ComponentEnabled(comp) {
			res.errorf(fmt.Sprintf("workflows.unified_voice_assistant.%s_enabled", stage),
				"stage requires the %s component", comp)
		}
	}

	// The reverse direction is only wasteful, not broken.
	componentStages := make(map[string][]string)
	for _, stage := range PipelineStages {
		comp := StageComponent[stage]
		componentStages[comp] = append(componentStages[comp], stage)
	}
	for _, comp := range KnownComponents {
		stages, ok := componentStages[comp]
		if !ok || !cfg.ComponentEnabled(comp) {
			continue
		}
		used := false
		for _, stage := range stages {
			if w.StageEnabled(stage) {
				used = true
				break
			}
		}
		if !used {
			res.warnf("components."+comp, "component is enabled but no pipeline stage uses it")
		}
	}
}

func validateVoiceTrigger(cfg *Config, res *ValidationResult) {
	vt := cfg.VoiceTrigger
	validateProviderChain("voice_trigger", cfg.ComponentEnabled(ComponentVoiceTrigger),
		vt.DefaultProvider, vt.FallbackProviders, vt.Providers, res)

	if !cfg.ComponentEnabled(ComponentVoiceTrigger) {
		return
	}

	for i, p := range vt.Phrases {
		if strings.TrimSpace(p) == "" {
			res.errorf(fmt.Sprintf("voice_trigger.phrases[%d]", i), "blank wake phrase")
		}
	}
	if vt.Threshold <= 0 || vt.Threshold > 1 {
		res.errorf("voice_trigger.threshold", "threshold %.2f out of range (0, 1]", vt.Threshold)
	}
	if vt.SampleRate < 8000 || vt.SampleRate > 48000 {
		res.errorf("voice_trigger.sample_rate", "sample rate %d out of range [8000, 48000]", vt.SampleRate)
	}
	if vt.Channels != 1 {
		res.warnf("voice_trigger.channels", "wake-phrase detection runs on mono audio; channel count %d will be downmixed", vt.Channels)
	}
}

func validateVAD(cfg *Config, res *ValidationResult) {
	v := cfg.VAD
	if v.Threshold < 0 || v.Threshold >= 1 {
		res.errorf("vad.threshold", "threshold %.3f out of range [0, 1)", v.Threshold)
	} else if v.Threshold > 0.2 {
		res.warnf("vad.threshold", "threshold %.3f is very high; normal speech rarely exceeds 0.2", v.Threshold)
	}
	if v.VoiceFramesRequired < 1 {
		res.errorf("vad.voice_frames_required", "must be at least 1")
	}
	if v.SilenceFramesRequired < 1 {
		res.errorf("vad.silence_frames_required", "must be at least 1")
	}
	if v.MaxSegmentDurationS <= 0 {
		res.errorf("vad.max_segment_duration_s", "must be positive")
	}
	if v.MaxVoiceZCR <= 0 || v.MaxVoiceZCR > 1 {
		res.errorf("vad.max_voice_zcr", "value %.2f out of range (0, 1]", v.MaxVoiceZCR)
	}
}

func validateASR(cfg *Config, res *ValidationResult) {
	a := cfg.ASR
	validateProviderChain("asr", cfg.ComponentEnabled(ComponentASR),
		a.DefaultProvider, a.FallbackProviders, a.Providers, res)

	if a.SampleRate != 0 && (a.SampleRate < 8000 || a.SampleRate > 192000) {
		res.errorf("asr.sample_rate", "sample rate %d out of range [8000, 192000]", a.SampleRate)
	}
	if a.SampleRate == 0 && cfg.ComponentEnabled(ComponentASR) {
		res.infof("asr.sample_rate", "no target rate configured; provider preferences will be consulted")
	}
	if a.Channels < 1 || a.Channels > 2 {
		res.errorf("asr.channels", "channel count %d not supported (valid: 1, 2)", a.Channels)
	}
}

func validateTTS(cfg *Config, res *ValidationResult) {
	t := cfg.TTS
	validateProviderChain("tts", cfg.ComponentEnabled(ComponentTTS),
		t.DefaultProvider, t.FallbackProviders, t.Providers, res)

	if t.Speed != 0 && (t.Speed < 0.5 || t.Speed > 2.0) {
		res.errorf("tts.speed", "speed %.2f out of range [0.5, 2.0]", t.Speed)
	}
}

func validateNLU(cfg *Config, res *ValidationResult) {
	n := cfg.NLU
	validateProviderChain("nlu", cfg.ComponentEnabled(ComponentNLU),
		n.DefaultProvider, n.FallbackProviders, n.Providers, res)

	if n.ConfidenceThreshold < 0 || n.ConfidenceThreshold > 1 {
		res.errorf("nlu.confidence_threshold", "threshold %.2f out of range [0, 1]", n.ConfidenceThreshold)
	}
	for id, aliases := range n.ProviderAliases {
		if len(aliases) == 0 {
			res.warnf("nlu.provider_aliases."+id, "no spoken aliases listed")
		}
	}
}

func validateLLM(cfg *Config, res *ValidationResult) {
	if !cfg.ComponentEnabled(ComponentLLM) {
		return
	}
	l := cfg.LLM
	if l.Provider.Name == "" {
		res.errorf("llm.provider.name", "llm component enabled but no provider configured")
	} else if !slices.Contains(ValidProviderNames["llm"], l.Provider.Name) {
		res.warnf("llm.provider.name", "unknown llm provider %q (known: %s)",
			l.Provider.Name, strings.Join(ValidProviderNames["llm"], ", "))
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		res.errorf("llm.temperature", "temperature %.2f out of range [0, 2]", l.Temperature)
	}
	if l.MaxTokens < 0 {
		res.errorf("llm.max_tokens", "must not be negative")
	}
}

func validateIntentSystem(cfg *Config, res *ValidationResult) {
	is := cfg.IntentSystem
	for domain, prio := range is.DomainPriorities {
		if prio < 0 {
			res.errorf("intent_system.domain_priorities."+domain, "priority must not be negative")
		} else if prio > 100 {
			res.warnf("intent_system.domain_priorities."+domain, "priority %d exceeds 100 and will be capped", prio)
		}
	}
	for _, cmd := range is.DestructiveCommands {
		if !slices.Contains(is.ContextualCommands, cmd) {
			res.warnf("intent_system.destructive_commands", "destructive command %q is not in contextual_commands", cmd)
		}
	}
	if is.MaxHistoryTurns < 1 {
		res.errorf("intent_system.max_history_turns", "must be at least 1")
	}
	if is.SessionTimeoutS < 1 {
		res.errorf("intent_system.session_timeout_s", "must be at least 1 second")
	}
	if is.CleanupIntervalS < 1 {
		res.errorf("intent_system.cleanup_interval_s", "must be at least 1 second")
	} else if is.CleanupIntervalS > is.SessionTimeoutS {
		res.warnf("intent_system.cleanup_interval_s", "cleanup interval exceeds the session timeout; idle sessions may linger")
	}

	switch is.Analytics.Backend {
	case "memory":
	case "postgres":
		if is.Analytics.PostgresDSN == "" {
			res.errorf("intent_system.analytics.postgres_dsn", "postgres backend requires a DSN")
		}
	default:
		res.errorf("intent_system.analytics.backend", "unknown backend %q (valid: memory, postgres)", is.Analytics.Backend)
	}
}

// validateAudioCompatibility verifies that the microphone, ASR, and
// voice-trigger sections agree on rates and channels. Mismatches are fatal
// only when resampling is disabled; otherwise they cost a conversion per
// utterance and earn a recommendation.
func validateAudioCompatibility(cfg *Config, res *ValidationResult) {
	mic := cfg.Inputs.Microphone
	if !mic.Enabled {
		return
	}

	if cfg.ComponentEnabled(ComponentASR) {
		target := cfg.ASR.SampleRate
		if target != 0 && target != mic.SampleRate {
			if !cfg.ASR.ResamplingAllowed() {
				res.errorf("asr.allow_resampling",
					"microphone captures at %d Hz but asr requires %d Hz and resampling is disabled", mic.SampleRate, target)
			} else {
				res.warnf("asr.sample_rate",
					"microphone captures at %d Hz; audio will be resampled to %d Hz per utterance (consider matching rates)",
					mic.SampleRate, target)
			}
		}
		if mic.Channels > cfg.ASR.Channels {
			res.infof("asr.channels", "stereo capture will be downmixed to mono for recognition")
		}
	}

	if cfg.ComponentEnabled(ComponentVoiceTrigger) {
		vt := cfg.VoiceTrigger
		if vt.SampleRate != mic.SampleRate {
			res.warnf("voice_trigger.sample_rate",
				"wake-phrase detection runs at %d Hz but the microphone captures at %d Hz; every frame will be resampled",
				vt.SampleRate, mic.SampleRate)
		}
		if cfg.ComponentEnabled(ComponentASR) && cfg.ASR.SampleRate != 0 && cfg.ASR.SampleRate != vt.SampleRate {
			res.infof("voice_trigger.sample_rate",
				"wake-phrase detection (%d Hz) and asr (%d Hz) use different rates; segments are converted twice",
				vt.SampleRate, cfg.ASR.SampleRate)
		}
	}
}

// validateAssets proves the asset directories exist or are creatable by
// creating any that are missing. Skipped entirely when no root is set.
func validateAssets(cfg *Config, res *ValidationResult) {
	if cfg.Assets.Root == "" {
		return
	}
	dirs := []string{
		cfg.Assets.Root,
		cfg.Assets.ModelsPath(),
		cfg.Assets.CachePath(),
		cfg.Assets.CredentialsPath(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			res.errorf("assets", "cannot create directory %q: %v", dir, err)
		}
	}
}

// validateProviderChain applies the checks shared by every provider-backed
// component section: entry sanity, default availability (fatal when the
// component is enabled), and fallback availability (warning only).
func validateProviderChain(kind string, enabled bool, def string, fallbacks []string, entries []ProviderEntry, res *ValidationResult) {
	known := ValidProviderNames[kind]

	available := make(map[string]bool, len(entries)+len(known))
	for _, name := range known {
		available[name] = true
	}

	seen := make(map[string]int, len(entries))
	disabled := make(map[string]bool)
	for i, e := range entries {
		path := fmt.Sprintf("%s.providers[%d]", kind, i)
		if e.Name == "" {
			res.errorf(path, "provider entry has no name")
			continue
		}
		if prev, dup := seen[e.Name]; dup {
			res.errorf(path, "duplicate provider entry %q (first at index %d)", e.Name, prev)
		} else {
			seen[e.Name] = i
		}
		if !slices.Contains(known, e.Name) {
			res.warnf(path, "unknown %s provider %q (known: %s)", kind, e.Name, strings.Join(known, ", "))
		}
		if e.IsEnabled() {
			available[e.Name] = true
		} else {
			disabled[e.Name] = true
		}
	}

	if !enabled {
		return
	}

	if def == "" {
		res.errorf(kind+".default_provider", "component enabled but no default provider configured")
	} else if disabled[def] {
		res.errorf(kind+".default_provider", "default provider %q is disabled", def)
	} else if !available[def] {
		res.errorf(kind+".default_provider", "default provider %q is not available", def)
	}
	for _, name := range fallbacks {
		if !available[name] {
			res.warnf(kind+".fallback_providers", "fallback provider %q is not available", name)
		}
	}
}
