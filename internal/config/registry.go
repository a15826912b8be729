package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/attalus-io/vestibule/pkg/provider/asr"
	"github.com/attalus-io/vestibule/pkg/provider/llm"
	"github.com/attalus-io/vestibule/pkg/provider/nlu"
	"github.com/attalus-io/vestibule/pkg/provider/tts"
	"github.com/attalus-io/vestibule/pkg/provider/voicetrigger"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory
// has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. Components resolve their configured chains through it;
// plugins and tests may register additional factories. Safe for concurrent
// use.
type Registry struct {
	mu           sync.RWMutex
	asr          map[string]func(ProviderEntry) (asr.Provider, error)
	tts          map[string]func(ProviderEntry) (tts.Provider, error)
	nlu          map[string]func(ProviderEntry) (nlu.Provider, error)
	llm          map[string]func(ProviderEntry) (llm.Provider, error)
	voiceTrigger map[string]func(ProviderEntry) (voicetrigger.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		asr:          make(map[string]func(ProviderEntry) (asr.Provider, error)),
		tts:          make(map[string]func(ProviderEntry) (tts.Provider, error)),
		nlu:          make(map[string]func(ProviderEntry) (nlu.Provider, error)),
		llm:          make(map[string]func(ProviderEntry) (llm.Provider, error)),
		voiceTrigger: make(map[string]func(ProviderEntry) (voicetrigger.Provider, error)),
	}
}

// RegisterASR registers a speech-recognition provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterASR(name string, factory func(ProviderEntry) (asr.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.asr[name] = factory
}

// RegisterTTS registers a speech-synthesis provider factory under name.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// RegisterNLU registers an intent-recognition provider factory under name.
func (r *Registry) RegisterNLU(name string, factory func(ProviderEntry) (nlu.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nlu[name] = factory
}

// RegisterLLM registers a completion provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterVoiceTrigger registers a wake-phrase provider factory under name.
func (r *Registry) RegisterVoiceTrigger(name string, factory func(ProviderEntry) (voicetrigger.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voiceTrigger[name] = factory
}

// CreateASR instantiates an ASR provider using the factory registered under
// entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateASR(entry ProviderEntry) (asr.Provider, error) {
	r.mu.RLock()
	factory, ok := r.asr[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: asr/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS instantiates a TTS provider using the factory registered under
// entry.Name.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateNLU instantiates an NLU provider using the factory registered under
// entry.Name.
func (r *Registry) CreateNLU(entry ProviderEntry) (nlu.Provider, error) {
	r.mu.RLock()
	factory, ok := r.nlu[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: nlu/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under
// entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateVoiceTrigger instantiates a wake-phrase provider using the factory
// registered under entry.Name.
func (r *Registry) CreateVoiceTrigger(entry ProviderEntry) (voicetrigger.Provider, error) {
	r.mu.RLock()
	factory, ok := r.voiceTrigger[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: voice_trigger/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// HasASR reports whether a factory is registered for the named ASR provider.
func (r *Registry) HasASR(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.asr[name]
	return ok
}

// HasTTS reports whether a factory is registered for the named TTS provider.
func (r *Registry) HasTTS(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tts[name]
	return ok
}

// HasNLU reports whether a factory is registered for the named NLU provider.
func (r *Registry) HasNLU(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nlu[name]
	return ok
}
