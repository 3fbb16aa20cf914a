// Command resona-talk opens a live voice conversation from the terminal,
// without running the full daemon. It dials the configured live provider,
// streams the microphone up and plays model speech back until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resona-ai/resona/internal/app"
	"github.com/resona-ai/resona/internal/config"
	"github.com/resona-ai/resona/internal/live"
	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/audio/portaudio"
	"github.com/resona-ai/resona/pkg/provider/genai/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	character := flag.String("character", "", "configured character to talk to (default: plain live voice)")
	voice := flag.String("voice", "", "override the voice ID for this conversation")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "resona-talk: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "resona-talk: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn, // keep the terminal quiet during conversation
	})))

	if cfg.Providers.Live.Name == "" {
		fmt.Fprintln(os.Stderr, "resona-talk: no live provider configured")
		return 1
	}
	if cfg.Providers.Live.Name != "gemini" {
		fmt.Fprintf(os.Stderr, "resona-talk: unsupported live provider %q\n", cfg.Providers.Live.Name)
		return 1
	}
	if *voice != "" {
		cfg.Providers.Live.Voice = *voice
	}

	var dialerOpts []gemini.Option
	if m := cfg.Providers.Live.Model; m != "" {
		dialerOpts = append(dialerOpts, gemini.WithLiveModel(m))
	}
	dialer := gemini.New(cfg.Providers.Live.APIKey, dialerOpts...)

	devices := app.Devices{
		NewCapture: func() (audio.Capture, error) {
			return portaudio.NewCapture(cfg.Audio.InputSampleRate, cfg.Audio.FrameSize)
		},
		NewOutput: func() (audio.Output, error) {
			return portaudio.NewOutput(cfg.Audio.OutputSampleRate, 1)
		},
	}

	application, err := app.New(cfg, &app.Providers{Live: dialer}, devices)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resona-talk: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	info, err := application.StartLive(ctx, *character)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resona-talk: %v\n", err)
		return 1
	}

	who := *character
	if who == "" {
		who = info.Voice
	}
	fmt.Printf("Talking to %s — press Ctrl+C to hang up.\n", who)

	code := waitForConversation(ctx, application)

	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(sctx); err != nil {
		fmt.Fprintf(os.Stderr, "resona-talk: %v\n", err)
		return 1
	}
	fmt.Println("Conversation ended.")
	return code
}

// waitForConversation blocks until the user interrupts or the session closes
// on its own. Returns a nonzero exit code when the session ended with an error.
func waitForConversation(ctx context.Context, application *app.App) int {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastState live.State
	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			state, _, err := application.Sessions().Status()
			if state != lastState {
				switch state {
				case live.StateStreaming:
					fmt.Println("● listening")
				case live.StateModelSpeaking:
					fmt.Println("● speaking")
				}
				lastState = state
			}
			if state == live.StateClosed {
				if err != nil {
					fmt.Fprintf(os.Stderr, "resona-talk: session ended: %v\n", err)
					return 1
				}
				return 0
			}
		}
	}
}
