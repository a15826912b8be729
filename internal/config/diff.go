package config

import (
	"maps"
	"reflect"
	"slices"
)

// Changes describes what differs between two configurations, split into
// changes the runtime applies in place and changes that need a restart.
// Hot-applicable today: log level, VAD tuning, wake phrases and threshold,
// NLU confidence and aliases, LLM generation parameters, TTS voice and
// speed. Provider chains, inputs, components, and ports are restart-only.
type Changes struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged covers detector tuning applied live through the audio
	// component.
	VADChanged bool

	// VoiceTriggerChanged covers wake phrases and detection threshold.
	VoiceTriggerChanged bool

	// NLUChanged covers the confidence threshold and provider aliases.
	NLUChanged bool

	// LLMChanged covers generation parameters, not the provider itself.
	LLMChanged bool

	// TTSChanged covers voice and speed.
	TTSChanged bool

	// RestartRequired lists the sections whose changes cannot take effect
	// without a restart.
	RestartRequired []string
}

// Empty reports whether the two configurations are equivalent.
func (c Changes) Empty() bool {
	return !c.HotApplicable() && len(c.RestartRequired) == 0
}

// HotApplicable reports whether the diff carries any change the runtime can
// apply without restarting.
func (c Changes) HotApplicable() bool {
	return c.LogLevelChanged || c.VADChanged || c.VoiceTriggerChanged ||
		c.NLUChanged || c.LLMChanged || c.TTSChanged
}

// Diff compares old and new configurations and classifies every difference.
func Diff(old, new *Config) Changes {
	var c Changes

	if old.System.LogLevel != new.System.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.System.LogLevel
	}
	if old.VAD != new.VAD {
		c.VADChanged = true
	}
	if !slices.Equal(old.VoiceTrigger.Phrases, new.VoiceTrigger.Phrases) ||
		old.VoiceTrigger.Threshold != new.VoiceTrigger.Threshold {
		c.VoiceTriggerChanged = true
	}
	if old.NLU.ConfidenceThreshold != new.NLU.ConfidenceThreshold ||
		!aliasesEqual(old.NLU.ProviderAliases, new.NLU.ProviderAliases) {
		c.NLUChanged = true
	}
	if old.LLM.Temperature != new.LLM.Temperature ||
		old.LLM.MaxTokens != new.LLM.MaxTokens ||
		old.LLM.SystemPrompt != new.LLM.SystemPrompt {
		c.LLMChanged = true
	}
	if old.TTS.Voice != new.TTS.Voice || old.TTS.Speed != new.TTS.Speed {
		c.TTSChanged = true
	}

	// Everything below only takes effect after a restart.
	if !systemEqualIgnoringLogLevel(old.System, new.System) {
		c.RestartRequired = append(c.RestartRequired, "system")
	}
	if !inputsEqual(old.Inputs, new.Inputs) {
		c.RestartRequired = append(c.RestartRequired, "inputs")
	}
	if !maps.Equal(old.Components, new.Components) {
		c.RestartRequired = append(c.RestartRequired, "components")
	}
	if !workflowEqual(old.Workflows.UnifiedVoiceAssistant, new.Workflows.UnifiedVoiceAssistant) {
		c.RestartRequired = append(c.RestartRequired, "workflows")
	}
	if old.VoiceTrigger.SampleRate != new.VoiceTrigger.SampleRate ||
		old.VoiceTrigger.Channels != new.VoiceTrigger.Channels ||
		!chainEqual(old.VoiceTrigger.DefaultProvider, new.VoiceTrigger.DefaultProvider,
			old.VoiceTrigger.FallbackProviders, new.VoiceTrigger.FallbackProviders,
			old.VoiceTrigger.Providers, new.VoiceTrigger.Providers) {
		c.RestartRequired = append(c.RestartRequired, "voice_trigger")
	}
	if old.ASR.SampleRate != new.ASR.SampleRate ||
		old.ASR.Channels != new.ASR.Channels ||
		old.ASR.ResamplingAllowed() != new.ASR.ResamplingAllowed() ||
		!chainEqual(old.ASR.DefaultProvider, new.ASR.DefaultProvider,
			old.ASR.FallbackProviders, new.ASR.FallbackProviders,
			old.ASR.Providers, new.ASR.Providers) {
		c.RestartRequired = append(c.RestartRequired, "asr")
	}
	if !chainEqual(old.TTS.DefaultProvider, new.TTS.DefaultProvider,
		old.TTS.FallbackProviders, new.TTS.FallbackProviders,
		old.TTS.Providers, new.TTS.Providers) {
		c.RestartRequired = append(c.RestartRequired, "tts")
	}
	if !chainEqual(old.NLU.DefaultProvider, new.NLU.DefaultProvider,
		old.NLU.FallbackProviders, new.NLU.FallbackProviders,
		old.NLU.Providers, new.NLU.Providers) {
		c.RestartRequired = append(c.RestartRequired, "nlu")
	}
	if !reflect.DeepEqual(old.LLM.Provider, new.LLM.Provider) {
		c.RestartRequired = append(c.RestartRequired, "llm")
	}
	if old.TextProcessor.ExpandNumbersEnabled() != new.TextProcessor.ExpandNumbersEnabled() ||
		old.TextProcessor.LowercaseEnabled() != new.TextProcessor.LowercaseEnabled() {
		c.RestartRequired = append(c.RestartRequired, "text_processor")
	}
	if old.Audio != new.Audio {
		c.RestartRequired = append(c.RestartRequired, "audio")
	}
	if !intentSystemEqual(old.IntentSystem, new.IntentSystem) {
		c.RestartRequired = append(c.RestartRequired, "intent_system")
	}
	if old.Assets != new.Assets {
		c.RestartRequired = append(c.RestartRequired, "assets")
	}
	if old.Plugins.Enabled != new.Plugins.Enabled || !slices.Equal(old.Plugins.Paths, new.Plugins.Paths) {
		c.RestartRequired = append(c.RestartRequired, "plugins")
	}

	return c
}

func chainEqual(oldDef, newDef string, oldFallbacks, newFallbacks []string, oldEntries, newEntries []ProviderEntry) bool {
	return oldDef == newDef &&
		slices.Equal(oldFallbacks, newFallbacks) &&
		reflect.DeepEqual(oldEntries, newEntries)
}

func aliasesEqual(a, b map[string][]string) bool {
	return maps.EqualFunc(a, b, func(x, y []string) bool { return slices.Equal(x, y) })
}

func systemEqualIgnoringLogLevel(a, b SystemConfig) bool {
	return a.Name == b.Name &&
		a.Language == b.Language &&
		a.LogFormat == b.LogFormat &&
		a.IsPlaybackEnabled() == b.IsPlaybackEnabled() &&
		a.IsWebAPIEnabled() == b.IsWebAPIEnabled() &&
		a.WebHost == b.WebHost &&
		a.WebPort == b.WebPort &&
		a.MetricsPort == b.MetricsPort &&
		a.ConfigWatchEnabled == b.ConfigWatchEnabled &&
		a.ConfigWatchIntervalS == b.ConfigWatchIntervalS &&
		a.StartupGreeting == b.StartupGreeting
}

func inputsEqual(a, b InputsConfig) bool {
	return a.Default == b.Default &&
		a.CLI.IsEnabled() == b.CLI.IsEnabled() &&
		a.Microphone == b.Microphone &&
		a.Web == b.Web
}

func workflowEqual(a, b *WorkflowConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intentSystemEqual(a, b IntentSystemConfig) bool {
	return maps.Equal(a.DomainPriorities, b.DomainPriorities) &&
		slices.Equal(a.DestructiveCommands, b.DestructiveCommands) &&
		slices.Equal(a.ContextualCommands, b.ContextualCommands) &&
		a.MaxHistoryTurns == b.MaxHistoryTurns &&
		a.SessionTimeoutS == b.SessionTimeoutS &&
		a.CleanupIntervalS == b.CleanupIntervalS &&
		a.Analytics == b.Analytics
}
