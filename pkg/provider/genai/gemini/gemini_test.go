package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/resona-ai/resona/pkg/provider/genai"
	"github.com/resona-ai/resona/pkg/provider/genai/gemini"
)

// TestInterfaceSatisfaction verifies that Provider satisfies the genai
// interfaces at compile time. The real assertions are the blank-identifier
// variables in gemini.go; this test ensures those vars exist and the package
// compiles cleanly.
func TestInterfaceSatisfaction(t *testing.T) {
	t.Parallel()
	// Nothing to do at runtime – the compiler enforces the contracts.
}

func TestCapabilities_AllModalities(t *testing.T) {
	t.Parallel()
	p := gemini.New("key")
	caps := p.Capabilities()
	if !caps.Speech || !caps.Image || !caps.Video || !caps.Live {
		t.Errorf("capabilities = %+v; want all modalities supported", caps)
	}
	if len(caps.Voices) == 0 {
		t.Error("Voices should be non-empty")
	}
}

// inlineDataResponse builds a generateContent response carrying one
// inlineData part.
func inlineDataResponse(mimeType, data string) map[string]any {
	return map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": mimeType, "data": data}},
					},
				},
			},
		},
	}
}

func TestGenerateSpeech_ReturnsEncodedAudio(t *testing.T) {
	t.Parallel()

	wantData := base64.StdEncoding.EncodeToString([]byte{0x01, 0x02, 0x03, 0x04})
	var gotPath, gotQuery string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(inlineDataResponse("audio/pcm;rate=24000", wantData))
	}))
	t.Cleanup(srv.Close)

	p := gemini.New("speech-key", gemini.WithBaseURL(srv.URL), gemini.WithSpeechModel("tts-model"))
	got, err := p.GenerateSpeech(context.Background(), "Hello there", "Kore")
	if err != nil {
		t.Fatalf("GenerateSpeech: %v", err)
	}
	if got != wantData {
		t.Errorf("GenerateSpeech = %q; want %q (payload must stay base64-encoded)", got, wantData)
	}

	if !strings.Contains(gotPath, "tts-model:generateContent") {
		t.Errorf("path = %q; want it to address tts-model:generateContent", gotPath)
	}
	if !strings.Contains(gotQuery, "key=speech-key") {
		t.Errorf("query = %q; want key=speech-key", gotQuery)
	}

	genCfg, _ := gotBody["generationConfig"].(map[string]any)
	if genCfg == nil {
		t.Fatal("request body missing generationConfig")
	}
	if mods, _ := genCfg["responseModalities"].([]any); len(mods) != 1 || mods[0] != "AUDIO" {
		t.Errorf("responseModalities = %v; want [AUDIO]", genCfg["responseModalities"])
	}
}

func TestGenerateSpeech_NoAudioInResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "no audio here"}}}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := gemini.New("key", gemini.WithBaseURL(srv.URL))
	if _, err := p.GenerateSpeech(context.Background(), "Hello", "Kore"); err == nil {
		t.Fatal("GenerateSpeech should fail when the response carries no audio")
	}
}

func TestGenerateSpeech_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": 429, "message": "quota exceeded"},
		})
	}))
	t.Cleanup(srv.Close)

	p := gemini.New("key", gemini.WithBaseURL(srv.URL))
	_, err := p.GenerateSpeech(context.Background(), "Hello", "Kore")
	if err == nil {
		t.Fatal("GenerateSpeech should surface API errors")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error = %v; want it to carry the API message", err)
	}
}

func TestGenerateImage_ReturnsDataURL(t *testing.T) {
	t.Parallel()

	imgData := base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(inlineDataResponse("image/png", imgData))
	}))
	t.Cleanup(srv.Close)

	p := gemini.New("key", gemini.WithBaseURL(srv.URL))
	got, err := p.GenerateImage(context.Background(), "a lighthouse at dusk")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	want := "data:image/png;base64," + imgData
	if got != want {
		t.Errorf("GenerateImage = %q; want %q", got, want)
	}
}

func TestGenerateVideo_PollsOperationToCompletion(t *testing.T) {
	t.Parallel()

	const opName = "operations/video-42"
	const videoURI = "https://example.com/clips/video-42.mp4"
	var polls int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, ":predictLongRunning"):
			_ = json.NewEncoder(w).Encode(map[string]any{"name": opName, "done": false})
		case r.Method == http.MethodGet && strings.Contains(r.URL.Path, opName):
			polls++
			if polls < 2 {
				_ = json.NewEncoder(w).Encode(map[string]any{"name": opName, "done": false})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": opName,
				"done": true,
				"response": map[string]any{
					"generateVideoResponse": map[string]any{
						"generatedSamples": []map[string]any{
							{"video": map[string]any{"uri": videoURI}},
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p := gemini.New("key", gemini.WithBaseURL(srv.URL), gemini.WithVideoPollInterval(10*time.Millisecond))
	got, err := p.GenerateVideo(ctx, genai.VideoRequest{Prompt: "waves rolling in"})
	if err != nil {
		t.Fatalf("GenerateVideo: %v", err)
	}
	if got != videoURI {
		t.Errorf("GenerateVideo = %q; want %q", got, videoURI)
	}
	if polls < 2 {
		t.Errorf("polls = %d; want at least 2", polls)
	}
}

func TestGenerateVideo_OperationError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name": "operations/fail-1",
			"done": true,
			"error": map[string]any{
				"code":    400,
				"message": "prompt rejected",
			},
		})
	}))
	t.Cleanup(srv.Close)

	p := gemini.New("key", gemini.WithBaseURL(srv.URL))
	_, err := p.GenerateVideo(context.Background(), genai.VideoRequest{Prompt: "bad prompt"})
	if err == nil {
		t.Fatal("GenerateVideo should surface operation errors")
	}
	if !strings.Contains(err.Error(), "prompt rejected") {
		t.Errorf("error = %v; want it to carry the operation message", err)
	}
}

func TestGenerateVideo_ContextCancelledDuringPoll(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// Operation never completes.
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "operations/slow", "done": false})
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := gemini.New("key", gemini.WithBaseURL(srv.URL), gemini.WithVideoPollInterval(10*time.Millisecond))
	_, err := p.GenerateVideo(ctx, genai.VideoRequest{Prompt: "never finishes"})
	if err == nil {
		t.Fatal("GenerateVideo should fail when ctx expires during polling")
	}
}
