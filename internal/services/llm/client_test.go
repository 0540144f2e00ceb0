package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// chatStub serves canned chat completion payloads and counts requests.
type chatStub struct {
	t       *testing.T
	server  *httptest.Server
	calls   int
	respond func(calls int, w http.ResponseWriter)
}

func newChatStub(t *testing.T, respond func(calls int, w http.ResponseWriter)) *chatStub {
	t.Helper()
	stub := &chatStub{t: t, respond: respond}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls++
		stub.respond(stub.calls, w)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *chatStub) client(opts ...Option) *Client {
	return NewClient(Config{APIKey: "test", BaseURL: s.server.URL, Model: "demo-model"}, opts...)
}

// messageContent wraps content in the standard chat completion envelope.
func messageContent(content string) map[string]any {
	return map[string]any{
		"choices": []any{
			map[string]any{
				"finish_reason": "stop",
				"message":       map[string]any{"content": content},
			},
		},
	}
}

func encodeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientHealthCheck(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, messageContent(`{"ok":true}`))
	})
	if err := stub.client().HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, messageContent("```json\n{\"ok\":true}\n```"))
	})
	if err := stub.client().HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		encodeJSON(t, w, map[string]string{"error": "unauthorized"})
	})
	if err := stub.client().HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check to fail")
	}
}

func TestClientSegmentScriptCodeFence(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, messageContent("```json\n{\"scenes\":[{\"text\":\"The sun rises.\",\"transition\":\"fade\"},{\"text\":\"Birds wake up.\",\"transition\":\"CUT\"}]}\n```"))
	})
	scenes, err := stub.client().SegmentScript(context.Background(), "The sun rises. Birds wake up.")
	if err != nil {
		t.Fatalf("SegmentScript returned error: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0].Transition != "" {
		t.Fatalf("first scene must have no entering transition, got %q", scenes[0].Transition)
	}
	if scenes[1].Transition != "cut" {
		t.Fatalf("expected lowercased transition cut, got %q", scenes[1].Transition)
	}
}

func TestClientSegmentScriptToolCallsArguments(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "tool_calls",
					"message": map[string]any{
						"content": "",
						"tool_calls": []any{
							map[string]any{
								"type": "function",
								"id":   "call_1",
								"function": map[string]any{
									"name":      "segment_script",
									"arguments": `{"scenes":[{"text":"One scene only.","transition":""}]}`,
								},
							},
						},
					},
				},
			},
		})
	})
	scenes, err := stub.client().SegmentScript(context.Background(), "One scene only.")
	if err != nil {
		t.Fatalf("SegmentScript returned error: %v", err)
	}
	if len(scenes) != 1 || scenes[0].Text != "One scene only." {
		t.Fatalf("unexpected scenes: %+v", scenes)
	}
}

func TestClientSegmentScriptEmptyContentHasSnippet(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, messageContent(""))
	})
	client := stub.client(
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
	)
	_, err := client.SegmentScript(context.Background(), "Some script.")
	if err == nil {
		t.Fatal("expected segmentation to fail")
	}
	if !strings.Contains(err.Error(), "empty content") || !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected empty-content error to include snippet, got %v", err)
	}
}

func TestClientDescribeSceneDeltaContent(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "",
					"delta": map[string]any{
						"content": `{"description":"A red barn at dawn, mist over the fields."}`,
					},
				},
			},
		})
	})
	description, err := stub.client().DescribeScene(context.Background(), "The farm wakes up.", "")
	if err != nil {
		t.Fatalf("DescribeScene returned error: %v", err)
	}
	if !strings.Contains(description, "red barn") {
		t.Fatalf("unexpected description %q", description)
	}
}

func TestClientSuggestCaptionBoundariesLegacyText(t *testing.T) {
	stub := newChatStub(t, func(_ int, w http.ResponseWriter) {
		encodeJSON(t, w, map[string]any{
			"choices": []any{
				map[string]any{
					"finish_reason": "stop",
					"text":          `{"boundaries":[3,7]}`,
				},
			},
		})
	})
	boundaries, err := stub.client().SuggestCaptionBoundaries(context.Background(), []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"})
	if err != nil {
		t.Fatalf("SuggestCaptionBoundaries returned error: %v", err)
	}
	if len(boundaries) != 2 || boundaries[0] != 3 || boundaries[1] != 7 {
		t.Fatalf("unexpected boundaries %v", boundaries)
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	stub := newChatStub(t, func(calls int, w http.ResponseWriter) {
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			encodeJSON(t, w, map[string]string{"error": "rate limited"})
			return
		}
		encodeJSON(t, w, messageContent(`{"boundaries":[2]}`))
	})

	var slept []time.Duration
	client := stub.client(
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	boundaries, err := client.SuggestCaptionBoundaries(context.Background(), []string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("SuggestCaptionBoundaries returned error: %v", err)
	}
	if len(boundaries) != 1 || boundaries[0] != 2 {
		t.Fatalf("unexpected boundaries %v", boundaries)
	}
	if stub.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", stub.calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	stub := newChatStub(t, func(calls int, w http.ResponseWriter) {
		content := ""
		if calls >= 3 {
			content = `{"description":"A quiet village square at dusk."}`
		}
		encodeJSON(t, w, messageContent(content))
	})
	client := stub.client(
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	description, err := client.DescribeScene(context.Background(), "Evening settles in.", "")
	if err != nil {
		t.Fatalf("DescribeScene returned error: %v", err)
	}
	if !strings.Contains(description, "village square") {
		t.Fatalf("unexpected description %q", description)
	}
	if stub.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", stub.calls)
	}
}
