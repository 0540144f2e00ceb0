package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loom/internal/config"
)

func testConfig(baseURL string) config.Speech {
	return config.Speech{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		VoiceID:         "voice-1",
		Stability:       0.5,
		SimilarityBoost: 0.75,
	}
}

func alignmentPayload(text string) map[string]any {
	chars := make([]string, 0, len(text))
	starts := make([]float64, 0, len(text))
	ends := make([]float64, 0, len(text))
	for i, r := range []rune(text) {
		chars = append(chars, string(r))
		starts = append(starts, float64(i)*0.1)
		ends = append(ends, float64(i+1)*0.1)
	}
	return map[string]any{
		"characters":                    chars,
		"character_start_times_seconds": starts,
		"character_end_times_seconds":   ends,
	}
}

func TestSynthesizeDecodesAudioAndAlignment(t *testing.T) {
	audio := []byte("fake-mp3-bytes")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "/v1/text-to-speech/voice-1/with-timestamps") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Fatalf("missing api key header")
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["text"] != "go far" {
			t.Fatalf("unexpected text %v", req["text"])
		}
		settings, ok := req["voice_settings"].(map[string]any)
		if !ok || settings["stability"] != 0.5 {
			t.Fatalf("voice settings not passed through: %v", req["voice_settings"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString(audio),
			"alignment":    alignmentPayload("go far"),
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	result, err := client.Synthesize(context.Background(), "go far")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if string(result.Audio) != string(audio) {
		t.Fatal("audio bytes did not round-trip")
	}
	if result.Alignment.Len() != 6 {
		t.Fatalf("expected 6 characters, got %d", result.Alignment.Len())
	}
	if result.Alignment.Text() != "go far" {
		t.Fatalf("alignment text = %q", result.Alignment.Text())
	}
}

func TestSynthesizeFallsBackToNormalizedAlignment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64":         base64.StdEncoding.EncodeToString([]byte("x")),
			"normalized_alignment": alignmentPayload("hi"),
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	result, err := client.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if result.Alignment.Text() != "hi" {
		t.Fatalf("alignment text = %q", result.Alignment.Text())
	}
}

func TestSynthesizeRejectsMissingAlignment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("x")),
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error when response lacks alignment")
	}
}

func TestSynthesizeRejectsMismatchedAlignment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("x")),
			"alignment": map[string]any{
				"characters":                    []string{"h", "i"},
				"character_start_times_seconds": []float64{0},
				"character_end_times_seconds":   []float64{0.1, 0.2},
			},
		})
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for mismatched alignment arrays")
	}
}

func TestSynthesizeRetriesOn429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"audio_base64": base64.StdEncoding.EncodeToString([]byte("x")),
			"alignment":    alignmentPayload("hi"),
		})
	}))
	defer server.Close()

	var slept []time.Duration
	client := NewClient(testConfig(server.URL),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
	)
	if _, err := client.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single 1s sleep, got %v", slept)
	}
}

func TestSynthesizeDoesNotRetryClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), WithSleeper(func(time.Duration) {}))
	if _, err := client.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for 422")
	}
	if calls != 1 {
		t.Fatalf("422 must not retry, got %d calls", calls)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}
