// Package genai defines the interfaces over the multimodal generation
// backends Resona drives: one-shot speech, image, and video generation plus
// the duplex live voice session.
//
// The interfaces mirror the narrow surface the studio actually consumes.
// Speech comes back as a Base64-encoded raw PCM16 payload (24 kHz mono) —
// container synthesis is the caller's job, via the audio package. Image and
// video generation return a media URL the dashboard can embed directly.
//
// Implementations must be safe for concurrent use.
package genai

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by providers for operations their backend does
// not offer (e.g., video generation on OpenAI). Callers should pick a
// provider per operation via Capabilities rather than probing with errors.
var ErrNotSupported = errors.New("genai: operation not supported by this provider")

// Capabilities describes which operations a provider backend offers and the
// voices it can speak with. Values are constant for the lifetime of the
// Provider instance.
type Capabilities struct {
	Speech bool
	Image  bool
	Video  bool
	Live   bool

	// Voices lists the prebuilt voice IDs accepted by GenerateSpeech and
	// LiveConfig.VoiceID.
	Voices []Voice
}

// Voice is one prebuilt voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier (e.g., "Kore").
	ID string

	// Name is the human-readable voice name.
	Name string
}

// VideoRequest carries the inputs for a video generation call.
type VideoRequest struct {
	// Prompt is the text description of the clip to generate.
	Prompt string

	// ImageData optionally seeds generation with a start frame, supplied as
	// Base64-encoded image bytes. Empty for text-only generation.
	ImageData string

	// ImageMIMEType is the MIME type of ImageData (e.g., "image/png").
	// Ignored when ImageData is empty.
	ImageMIMEType string

	// Model optionally overrides the provider's default video model.
	Model string
}

// Provider is the abstraction over a multimodal generation backend.
type Provider interface {
	// GenerateSpeech synthesises text with the given voice and returns the
	// audio as a Base64-encoded raw PCM16 payload, 24 kHz mono. An empty
	// payload from the backend is returned as-is; the caller's codec layer
	// rejects it.
	GenerateSpeech(ctx context.Context, text, voiceID string) (string, error)

	// GenerateImage renders prompt into an image and returns a media URL —
	// either a remote URL or a data: URL carrying the encoded image.
	GenerateImage(ctx context.Context, prompt string) (string, error)

	// GenerateVideo produces a short video clip and returns its media URL.
	// Video backends are slow; implementations poll the long-running
	// operation internally and respect ctx for cancellation.
	GenerateVideo(ctx context.Context, req VideoRequest) (string, error)

	// Capabilities returns static metadata about this backend.
	Capabilities() Capabilities
}

// ── Live duplex session ────────────────────────────────────────────────────────

// MediaChunk is one Base64-encoded audio chunk on the live session wire,
// tagged with its MIME type (e.g., "audio/pcm;rate=16000").
type MediaChunk struct {
	MIMEType string
	Data     string // Base64-encoded payload
}

// LiveConfig is the initial configuration for a live duplex session.
type LiveConfig struct {
	// VoiceID selects the model's speaking voice.
	VoiceID string

	// Instructions is an optional system-level prompt for the session.
	Instructions string
}

// LiveCallbacks receives session events. All callbacks are invoked from the
// session's internal receive goroutine and must not block; a nil callback is
// skipped.
//
// Exactly one of OnClose or a terminal OnError is delivered when the session
// ends; OnAudio is never invoked after either.
type LiveCallbacks struct {
	// OnOpen fires once the remote end has acknowledged session setup and
	// audio may flow.
	OnOpen func()

	// OnAudio delivers one model audio chunk, still Base64-encoded exactly
	// as it arrived on the wire.
	OnAudio func(chunk MediaChunk)

	// OnClose fires when the remote end closes the session cleanly.
	OnClose func()

	// OnError fires when the session fails: a remote error message, a
	// dropped connection, or a protocol violation.
	OnError func(err error)
}

// LiveSession is an open duplex session. The caller owns it exclusively and
// must call Close when done; Close is idempotent.
type LiveSession interface {
	// SendRealtimeInput forwards one captured audio chunk to the model.
	// Returns an error if the session is closed.
	SendRealtimeInput(chunk MediaChunk) error

	// Close terminates the session and releases its connection. Safe to
	// call more than once.
	Close() error
}

// LiveDialer is implemented by providers that offer a live duplex session.
type LiveDialer interface {
	// ConnectLive establishes a new live session. ctx governs only the
	// connection attempt; the session then lives until Close or a remote
	// close/error.
	ConnectLive(ctx context.Context, cfg LiveConfig, cb LiveCallbacks) (LiveSession, error)
}
