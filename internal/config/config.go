// Package config provides the configuration schema, loader, file watcher and
// provider registry for the Resona studio daemon.
package config

// LogLevel controls log verbosity for the Resona daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default audio parameters. The capture side matches what the live model
// expects as input; the output side matches what it produces.
const (
	DefaultInputSampleRate  = 16000
	DefaultOutputSampleRate = 24000
	DefaultFrameSize        = 4096
)

// Config is the root configuration structure for Resona.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Providers  ProvidersConfig   `yaml:"providers"`
	Audio      AudioConfig       `yaml:"audio"`
	Characters []CharacterConfig `yaml:"characters"`
}

// ServerConfig holds network and logging settings for the Resona daemon.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which backend to use for each generation concern.
// Each Name selects a factory registered in the [Registry].
type ProvidersConfig struct {
	// Media is the multimodal backend for speech, image and video generation.
	Media ProviderEntry `yaml:"media"`

	// Text is the text generation backend.
	Text ProviderEntry `yaml:"text"`

	// Live is the backend for live duplex voice sessions.
	Live LiveEntry `yaml:"live"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "gemini-2.0-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// LiveEntry configures the live duplex session backend.
type LiveEntry struct {
	// Name selects the registered live dialer (e.g., "gemini").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// Model overrides the backend's default live model.
	Model string `yaml:"model"`

	// Voice is the default voice ID for live sessions. Characters may
	// override it per conversation.
	Voice string `yaml:"voice"`

	// Instructions is an optional system prompt applied to every session.
	Instructions string `yaml:"instructions"`
}

// AudioConfig holds sample rates and framing for the local audio devices.
// Zero values are filled with the Default* constants on load.
type AudioConfig struct {
	// InputSampleRate is the microphone capture rate in Hz.
	InputSampleRate int `yaml:"input_sample_rate"`

	// OutputSampleRate is the playback rate for model speech in Hz.
	OutputSampleRate int `yaml:"output_sample_rate"`

	// FrameSize is the number of samples per captured frame.
	FrameSize int `yaml:"frame_size"`
}

// CharacterConfig describes a named speaking persona: its traits drive voice
// selection and its instructions shape the live session.
type CharacterConfig struct {
	// Name is the character's display name (e.g., "Narrator").
	Name string `yaml:"name"`

	// Gender is "female", "male" or empty.
	Gender string `yaml:"gender"`

	// Age is "child", "young", "adult" or "elderly". Empty means adult.
	Age string `yaml:"age"`

	// Voice, when non-empty, overrides trait-based voice selection with an
	// explicit voice ID.
	Voice string `yaml:"voice"`

	// Instructions is a free-text persona description injected into the
	// session's system prompt.
	Instructions string `yaml:"instructions"`
}
