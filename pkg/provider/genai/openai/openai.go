// Package openai provides a genai.Provider backed by the OpenAI API. It
// supports one-shot speech and image generation; video and live sessions are
// not offered by this backend.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/resona-ai/resona/pkg/audio"
	"github.com/resona-ai/resona/pkg/provider/genai"
)

var _ genai.Provider = (*Provider)(nil)

const (
	// DefaultSpeechModel is the speech model used when none is configured.
	DefaultSpeechModel = oai.SpeechModelGPT4oMiniTTS

	// DefaultImageModel is the image model used when none is configured.
	DefaultImageModel = oai.ImageModelDallE3
)

// Provider implements genai.Provider using the OpenAI API.
type Provider struct {
	client      oai.Client
	speechModel oai.SpeechModel
	imageModel  oai.ImageModel
}

// config holds optional configuration for the provider.
type config struct {
	baseURL     string
	timeout     time.Duration
	speechModel string
	imageModel  string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSpeechModel overrides the model used for speech synthesis.
func WithSpeechModel(model string) Option {
	return func(c *config) {
		c.speechModel = model
	}
}

// WithImageModel overrides the model used for image generation.
func WithImageModel(model string) Option {
	return func(c *config) {
		c.imageModel = model
	}
}

// New constructs a new OpenAI Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	p := &Provider{
		client:      oai.NewClient(reqOpts...),
		speechModel: DefaultSpeechModel,
		imageModel:  DefaultImageModel,
	}
	if cfg.speechModel != "" {
		p.speechModel = oai.SpeechModel(cfg.speechModel)
	}
	if cfg.imageModel != "" {
		p.imageModel = oai.ImageModel(cfg.imageModel)
	}
	return p, nil
}

// Capabilities returns static metadata about the OpenAI backend.
func (p *Provider) Capabilities() genai.Capabilities {
	return genai.Capabilities{
		Speech: true,
		Image:  true,
		Voices: []genai.Voice{
			{ID: "alloy", Name: "Alloy"},
			{ID: "echo", Name: "Echo"},
			{ID: "fable", Name: "Fable"},
			{ID: "nova", Name: "Nova"},
			{ID: "onyx", Name: "Onyx"},
			{ID: "shimmer", Name: "Shimmer"},
		},
	}
}

// GenerateSpeech synthesises text and returns the audio base64-encoded. The
// PCM response format delivers 24 kHz mono PCM16, matching what the codec
// layer expects.
func (p *Provider) GenerateSpeech(ctx context.Context, text, voiceID string) (string, error) {
	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          p.speechModel,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return "", fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("openai: speech: read body: %w", err)
	}
	return audio.EncodeBase64(pcm), nil
}

// GenerateImage renders prompt into an image and returns it as a data: URL.
func (p *Provider) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Images.Generate(ctx, oai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          p.imageModel,
		N:              param.NewOpt(int64(1)),
		ResponseFormat: oai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai: image: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("openai: image: empty response data")
	}
	img := resp.Data[0]
	if img.B64JSON != "" {
		return "data:image/png;base64," + img.B64JSON, nil
	}
	if img.URL != "" {
		return img.URL, nil
	}
	return "", fmt.Errorf("openai: image: response carried neither data nor URL")
}

// GenerateVideo is not offered by the OpenAI backend.
func (p *Provider) GenerateVideo(_ context.Context, _ genai.VideoRequest) (string, error) {
	return "", genai.ErrNotSupported
}
