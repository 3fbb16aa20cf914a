package app_test

import (
	"context"
	"testing"

	"github.com/resona-ai/resona/internal/app"
	"github.com/resona-ai/resona/internal/config"
	"github.com/resona-ai/resona/pkg/audio"
	audiomock "github.com/resona-ai/resona/pkg/audio/mock"
	genaimock "github.com/resona-ai/resona/pkg/provider/genai/mock"
	textmock "github.com/resona-ai/resona/pkg/provider/text/mock"
)

// testConfig returns a minimal config with two characters for tests.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Characters: []config.CharacterConfig{
			{Name: "Narrator", Gender: "male", Age: "elderly", Instructions: "Speak slowly and grandly."},
			{Name: "Sprite", Gender: "female", Age: "child"},
		},
	}
	cfg.Providers.Live.Voice = "Kore"
	cfg.Providers.Live.Instructions = "Be helpful."
	return cfg
}

func testDevices() app.Devices {
	return app.Devices{
		NewCapture: func() (audio.Capture, error) { return audiomock.NewCapture(), nil },
		NewOutput:  func() (audio.Output, error) { return audiomock.NewOutput(), nil },
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	t.Parallel()
	if _, err := app.New(nil, &app.Providers{}, testDevices()); err == nil {
		t.Fatal("New should fail without a config")
	}
}

func TestStartLive_UsesConfiguredDefaults(t *testing.T) {
	t.Parallel()
	dialer := &genaimock.Dialer{Session: &genaimock.Session{}, OpenOnConnect: true}
	a, err := app.New(testConfig(), &app.Providers{Live: dialer}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	info, err := a.StartLive(context.Background(), "")
	if err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	if info.Voice != "Kore" {
		t.Errorf("voice = %q, want Kore", info.Voice)
	}
	if got := dialer.ConnectCalls[0].Cfg.Instructions; got != "Be helpful." {
		t.Errorf("instructions = %q, want the configured default", got)
	}
}

func TestStartLive_CharacterTraitsPickVoice(t *testing.T) {
	t.Parallel()
	dialer := &genaimock.Dialer{Session: &genaimock.Session{}, OpenOnConnect: true}
	a, err := app.New(testConfig(), &app.Providers{Live: dialer}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	info, err := a.StartLive(context.Background(), "sprite")
	if err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	// A young female character maps to Aoede.
	if info.Voice != "Aoede" {
		t.Errorf("voice = %q, want Aoede", info.Voice)
	}
}

func TestStartLive_CharacterInstructionsOverrideDefault(t *testing.T) {
	t.Parallel()
	dialer := &genaimock.Dialer{Session: &genaimock.Session{}, OpenOnConnect: true}
	a, err := app.New(testConfig(), &app.Providers{Live: dialer}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if _, err := a.StartLive(context.Background(), "Narrator"); err != nil {
		t.Fatalf("StartLive: %v", err)
	}
	if got := dialer.ConnectCalls[0].Cfg.Instructions; got != "Speak slowly and grandly." {
		t.Errorf("instructions = %q, want the character's", got)
	}
}

func TestStartLive_UnknownCharacter(t *testing.T) {
	t.Parallel()
	dialer := &genaimock.Dialer{Session: &genaimock.Session{}, OpenOnConnect: true}
	a, err := app.New(testConfig(), &app.Providers{Live: dialer}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := a.StartLive(context.Background(), "Stranger"); err == nil {
		t.Fatal("StartLive should fail for an unknown character")
	}
	if len(dialer.ConnectCalls) != 0 {
		t.Error("no dial should happen for an unknown character")
	}
}

func TestCheckers_ProvidersAndDevices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	bare, err := app.New(testConfig(), &app.Providers{}, app.Devices{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range bare.Checkers() {
		if err := c.Check(ctx); err == nil {
			t.Errorf("check %q should fail with nothing configured", c.Name)
		}
	}

	full, err := app.New(testConfig(), &app.Providers{Text: &textmock.Provider{}}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, c := range full.Checkers() {
		if err := c.Check(ctx); err != nil {
			t.Errorf("check %q failed: %v", c.Name, err)
		}
	}
}

func TestApplyConfig_SwapsSnapshot(t *testing.T) {
	t.Parallel()
	a, err := app.New(testConfig(), &app.Providers{}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	next := testConfig()
	next.Providers.Live.Voice = "Puck"
	a.ApplyConfig(next)

	if got := a.Config().Providers.Live.Voice; got != "Puck" {
		t.Errorf("live voice after ApplyConfig = %q, want Puck", got)
	}
}

func TestShutdown_StopsActiveSession(t *testing.T) {
	t.Parallel()
	dialer := &genaimock.Dialer{Session: &genaimock.Session{}, OpenOnConnect: true}
	a, err := app.New(testConfig(), &app.Providers{Live: dialer}, testDevices())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := a.StartLive(context.Background(), ""); err != nil {
		t.Fatalf("StartLive: %v", err)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if a.Sessions().Active() {
		t.Error("session still active after Shutdown")
	}

	// Second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
