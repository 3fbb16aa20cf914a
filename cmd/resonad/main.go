// Command resonad is the Resona creative-generation daemon. It owns the
// machine's microphone and speaker, talks to the configured generation
// providers, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/resona-ai/resona/internal/app"
	"github.com/resona-ai/resona/internal/config"
	"github.com/resona-ai/resona/internal/observe"
	"github.com/resona-ai/resona/internal/server"
	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/audio/portaudio"
	"github.com/resona-ai/resona/pkg/provider/genai"
	geminiprovider "github.com/resona-ai/resona/pkg/provider/genai/gemini"
	openaiprovider "github.com/resona-ai/resona/pkg/provider/genai/openai"
	"github.com/resona-ai/resona/pkg/provider/text"
	"github.com/resona-ai/resona/pkg/provider/text/anyllm"
)

// shutdownTimeout bounds graceful teardown after the stop signal.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "resonad: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "resonad: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("resonad starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "resonad"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(cfg, providers, audioDevices(cfg))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		logLevel.Set(slogLevel(next.Server.LogLevel))
		application.ApplyConfig(next)
		slog.Info("configuration reloaded", "config", *configPath)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = "127.0.0.1:8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.New(application).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Shutdown(sctx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// textProviderNames lists the backends the text provider supports. They all
// share the same option pattern: optional APIKey plus optional BaseURL.
var textProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Media (speech, image, video) ──────────────────────────────────────────
	reg.RegisterMedia("gemini", func(entry config.ProviderEntry) (genai.Provider, error) {
		var opts []geminiprovider.Option
		if entry.BaseURL != "" {
			opts = append(opts, geminiprovider.WithBaseURL(entry.BaseURL))
		}
		if m := optString(entry.Options, "speech_model"); m != "" {
			opts = append(opts, geminiprovider.WithSpeechModel(m))
		}
		if m := optString(entry.Options, "image_model"); m != "" {
			opts = append(opts, geminiprovider.WithImageModel(m))
		}
		if m := optString(entry.Options, "video_model"); m != "" {
			opts = append(opts, geminiprovider.WithVideoModel(m))
		}
		return geminiprovider.New(entry.APIKey, opts...), nil
	})

	reg.RegisterMedia("openai", func(entry config.ProviderEntry) (genai.Provider, error) {
		var opts []openaiprovider.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaiprovider.WithBaseURL(entry.BaseURL))
		}
		if m := optString(entry.Options, "speech_model"); m != "" {
			opts = append(opts, openaiprovider.WithSpeechModel(m))
		}
		if m := optString(entry.Options, "image_model"); m != "" {
			opts = append(opts, openaiprovider.WithImageModel(m))
		}
		return openaiprovider.New(entry.APIKey, opts...)
	})

	// ── Text ──────────────────────────────────────────────────────────────────
	for _, providerName := range textProviderNames {
		reg.RegisterText(providerName, func(entry config.ProviderEntry) (text.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Live ──────────────────────────────────────────────────────────────────
	reg.RegisterLive("gemini", func(entry config.LiveEntry) (genai.LiveDialer, error) {
		var opts []geminiprovider.Option
		if entry.Model != "" {
			opts = append(opts, geminiprovider.WithLiveModel(entry.Model))
		}
		return geminiprovider.New(entry.APIKey, opts...), nil
	})
}

// buildProviders instantiates the providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Media.Name; name != "" {
		p, err := reg.CreateMedia(cfg.Providers.Media)
		if err != nil {
			return nil, fmt.Errorf("create media provider %q: %w", name, err)
		}
		ps.Media = p
		slog.Info("provider created", "kind", "media", "name", name)
	}

	if name := cfg.Providers.Text.Name; name != "" {
		p, err := reg.CreateText(cfg.Providers.Text)
		if err != nil {
			return nil, fmt.Errorf("create text provider %q: %w", name, err)
		}
		ps.Text = p
		slog.Info("provider created", "kind", "text", "name", name)
	}

	if name := cfg.Providers.Live.Name; name != "" {
		d, err := reg.CreateLive(cfg.Providers.Live)
		if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		}
		ps.Live = d
		slog.Info("provider created", "kind", "live", "name", name)
	}

	return ps, nil
}

// audioDevices returns device factories bound to the configured sample rates.
func audioDevices(cfg *config.Config) app.Devices {
	inRate := cfg.Audio.InputSampleRate
	outRate := cfg.Audio.OutputSampleRate
	frame := cfg.Audio.FrameSize
	return app.Devices{
		NewCapture: func() (audio.Capture, error) {
			return portaudio.NewCapture(inRate, frame)
		},
		NewOutput: func() (audio.Output, error) {
			return portaudio.NewOutput(outRate, 1)
		},
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Resona — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Media", cfg.Providers.Media.Name, cfg.Providers.Media.Model)
	printProvider("Text", cfg.Providers.Text.Name, cfg.Providers.Text.Model)
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	fmt.Printf("║  Characters      : %-19d ║\n", len(cfg.Characters))
	fmt.Printf("║  Audio in/out    : %-19s ║\n",
		fmt.Sprintf("%d/%d Hz", cfg.Audio.InputSampleRate, cfg.Audio.OutputSampleRate))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
