package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/resona-ai/resona/internal/voices"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"media": {"gemini", "openai"},
	"text":  {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"live":  {"gemini"},
}

// validGenders lists recognised character gender values.
var validGenders = []string{"female", "male"}

// validAges lists recognised character age values.
var validAges = []string{"child", "young", "adult", "elderly"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills audio defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	expandSecrets(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandSecrets substitutes environment variable references in the API key
// fields, so keys can be written as "${GEMINI_API_KEY}" instead of being
// stored in the config file. Free-text fields are left untouched.
func expandSecrets(cfg *Config) {
	cfg.Providers.Media.APIKey = os.ExpandEnv(cfg.Providers.Media.APIKey)
	cfg.Providers.Text.APIKey = os.ExpandEnv(cfg.Providers.Text.APIKey)
	cfg.Providers.Live.APIKey = os.ExpandEnv(cfg.Providers.Live.APIKey)
}

// applyDefaults fills zero-valued audio parameters with the defaults.
func applyDefaults(cfg *Config) {
	if cfg.Audio.InputSampleRate == 0 {
		cfg.Audio.InputSampleRate = DefaultInputSampleRate
	}
	if cfg.Audio.OutputSampleRate == 0 {
		cfg.Audio.OutputSampleRate = DefaultOutputSampleRate
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("media", cfg.Providers.Media.Name)
	validateProviderName("text", cfg.Providers.Text.Name)
	validateProviderName("live", cfg.Providers.Live.Name)

	if cfg.Providers.Media.Name == "" && cfg.Providers.Live.Name == "" {
		slog.Warn("no media or live provider configured; the daemon will only serve text generation")
	}

	// Audio
	if cfg.Audio.InputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_sample_rate %d must be positive", cfg.Audio.InputSampleRate))
	}
	if cfg.Audio.OutputSampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_sample_rate %d must be positive", cfg.Audio.OutputSampleRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must be positive", cfg.Audio.FrameSize))
	}

	// Character duplicate name detection
	namesSeen := make(map[string]int, len(cfg.Characters))

	for i, ch := range cfg.Characters {
		prefix := fmt.Sprintf("characters[%d]", i)
		if ch.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[ch.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of characters[%d]", prefix, ch.Name, prev))
			}
			namesSeen[ch.Name] = i
		}
		if ch.Gender != "" && !slices.Contains(validGenders, ch.Gender) {
			errs = append(errs, fmt.Errorf("%s.gender %q is invalid; valid values: female, male", prefix, ch.Gender))
		}
		if ch.Age != "" && !slices.Contains(validAges, ch.Age) {
			errs = append(errs, fmt.Errorf("%s.age %q is invalid; valid values: child, young, adult, elderly", prefix, ch.Age))
		}
		if ch.Voice != "" && !voices.Known(ch.Voice) {
			slog.Warn("character voice is not a known prebuilt voice — may be a typo or provider-specific voice",
				"character", ch.Name,
				"voice", ch.Voice,
			)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
