package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sandro385/expert-tune/internal/config"
)

type recordingWriter struct {
	chunks []string
}

func (w *recordingWriter) WriteMessage(_ int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]interface{})) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization header = %q", got)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) config.LLMConfig {
	return config.LLMConfig{APIKey: "sk-test", BaseURL: url + "/v1/", Model: "gpt-4o-mini"}
}

func TestChatNonStreaming(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]interface{}) {
		msgs := body["messages"].([]interface{})
		if len(msgs) != 2 {
			t.Errorf("expected 2 messages, got %d", len(msgs))
		}
		if body["model"] != "gpt-4o-mini" {
			t.Errorf("model = %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"პირველი კითხვა?"},"finish_reason":"stop"}]}`)
	})

	client := NewClient(testConfig(srv.URL))
	reply, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "გამარჯობა"},
	}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "პირველი კითხვა?" {
		t.Fatalf("reply = %q", reply)
	}
}

func TestChatStreaming(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, body map[string]interface{}) {
		if body["stream"] != true {
			t.Errorf("stream flag not set")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"რა ", "გაქვთ?"} {
			fmt.Fprintf(w, "data: {\"id\":\"x\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	client := NewClient(testConfig(srv.URL))
	w := &recordingWriter{}
	reply, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, w)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "რა გაქვთ?" {
		t.Fatalf("reply = %q", reply)
	}
	if len(w.chunks) != 2 {
		t.Fatalf("expected 2 streamed chunks, got %v", w.chunks)
	}
}

func TestChatProviderError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, _ map[string]interface{}) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	})

	client := NewClient(testConfig(srv.URL))
	if _, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil); err == nil {
		t.Fatal("expected error from failing provider")
	}
}
