package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the known provider identifiers per component
// kind. The validator warns about names outside these lists; it does not
// reject them, since plugins may register providers of their own.
var ValidProviderNames = map[string][]string{
	"asr": {"openai"},
	"tts": {"console", "openai"},
	"llm": {
		"anthropic", "deepseek", "gemini", "groq", "llamacpp",
		"llamafile", "mistral", "ollama", "openai",
	},
	"nlu":           {"donation", "fuzzy"},
	"voice_trigger": {"textmatch"},
}

// Load reads the YAML configuration at path, expands environment
// references, applies defaults, and validates. Any validation error is
// fatal.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: load %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader parses configuration YAML from r. ${VAR} references are
// expanded from the environment first; an unresolved reference fails the
// load so the process never runs with silently empty credentials. Unknown
// YAML keys are rejected. Validation warnings are logged; errors abort.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	expanded, err := expandEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	applyDefaults(&cfg)

	res := Validate(&cfg)
	res.LogWarnings()
	if err := res.Err(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${NAME} references from the environment. A variable
// that is set but empty resolves to the empty string; a variable that is not
// set at all is an error.
func expandEnv(s string) (string, error) {
	var missing []string
	out := envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := ref[2 : len(ref)-1]
		val, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, ref)
			return ref
		}
		return val
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		missing = slices.Compact(missing)
		return "", fmt.Errorf("config: unresolved environment variables: %s", strings.Join(missing, ", "))
	}
	return out, nil
}
