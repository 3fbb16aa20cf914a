// Package app wires all Resona subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects configuration,
// providers, and audio devices, and Shutdown tears everything down in order.
// Live voice sessions are managed by the embedded [SessionManager].
//
// For testing, inject mock providers and device factories; when an option is
// not provided, New falls back to package defaults.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/resona-ai/resona/internal/config"
	"github.com/resona-ai/resona/internal/health"
	"github.com/resona-ai/resona/internal/observe"
	"github.com/resona-ai/resona/internal/voices"
	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/provider/genai"
	"github.com/resona-ai/resona/pkg/provider/text"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Media genai.Provider
	Text  text.Provider
	Live  genai.LiveDialer
}

// Devices holds factories for opening audio devices. A nil factory means the
// corresponding device is unavailable on this host.
type Devices struct {
	NewCapture func() (audio.Capture, error)
	NewOutput  func() (audio.Output, error)
}

// App owns all subsystem lifetimes and serves as the composition root for the
// HTTP API and the CLI.
type App struct {
	mu        sync.Mutex
	cfg       *config.Config
	providers *Providers
	devices   Devices
	metrics   *observe.Metrics
	sessions  *SessionManager

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics instance instead of using the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App from the given config, providers, and device factories.
func New(cfg *config.Config, providers *Providers, devices Devices, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		devices:   devices,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.sessions = NewSessionManager(providers.Live, devices, WithSessionMetrics(a.metrics))
	return a, nil
}

// Config returns the current configuration snapshot.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Media returns the configured media generation provider, or nil.
func (a *App) Media() genai.Provider { return a.providers.Media }

// Text returns the configured text generation provider, or nil.
func (a *App) Text() text.Provider { return a.providers.Text }

// Metrics returns the application metrics instance.
func (a *App) Metrics() *observe.Metrics { return a.metrics }

// Sessions returns the live session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ErrUnknownCharacter is returned by StartLive when the named character is
// not in the configuration.
var ErrUnknownCharacter = errors.New("app: unknown character")

// StartLive starts a live voice session. When character is non-empty it must
// name a configured character, whose traits pick the voice and whose
// instructions steer the model. Otherwise the default live voice and
// instructions from config are used.
func (a *App) StartLive(ctx context.Context, character string) (SessionInfo, error) {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	voice := cfg.Providers.Live.Voice
	instructions := cfg.Providers.Live.Instructions

	if character != "" {
		cc, ok := findCharacter(cfg.Characters, character)
		if !ok {
			return SessionInfo{}, fmt.Errorf("%w: %q", ErrUnknownCharacter, character)
		}
		voice = voices.Select(voices.Selection{
			Gender:   cc.Gender,
			Age:      cc.Age,
			Override: cc.Voice,
		})
		if cc.Instructions != "" {
			instructions = cc.Instructions
		}
	}

	return a.sessions.Start(ctx, voice, instructions)
}

// ApplyConfig swaps in a new configuration. Only hot-reloadable settings take
// effect immediately; provider and listen address changes require a restart.
func (a *App) ApplyConfig(next *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = next
	a.mu.Unlock()

	d := config.Diff(prev, next)
	if d.LiveVoiceChanged {
		slog.Info("default live voice updated", "voice", d.NewLiveVoice)
	}
	for _, cd := range d.CharacterChanges {
		switch {
		case cd.Added:
			slog.Info("character added", "name", cd.Name)
		case cd.Removed:
			slog.Info("character removed", "name", cd.Name)
		default:
			slog.Info("character updated", "name", cd.Name,
				"traits", cd.TraitsChanged, "voice", cd.VoiceChanged, "instructions", cd.InstructionsChanged)
		}
	}
}

// Checkers returns the readiness checks for this application.
func (a *App) Checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "providers",
			Check: func(context.Context) error {
				if a.providers.Media == nil && a.providers.Text == nil && a.providers.Live == nil {
					return fmt.Errorf("no providers configured")
				}
				return nil
			},
		},
		{
			Name: "audio_device",
			Check: func(context.Context) error {
				if a.devices.NewOutput == nil {
					return fmt.Errorf("no output device available")
				}
				return nil
			},
		},
	}
}

// Shutdown stops the active live session, if any. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		if err := a.sessions.Stop(); err == nil {
			slog.Info("live session stopped during shutdown")
		}
		slog.Info("shutdown complete")
	})
	return nil
}

// findCharacter looks up a character by name, ignoring case.
func findCharacter(cs []config.CharacterConfig, name string) (config.CharacterConfig, bool) {
	for _, c := range cs {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return config.CharacterConfig{}, false
}
