package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOllamaClient(&Config{Host: server.URL + "/", Model: "llava:13b", Timeout: 5 * time.Second})
}

func TestOllamaClientDescribeFrame(t *testing.T) {
	var got generateRequest
	client := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"response": `{"description":"trees"}`, "done": true})
	})

	text, err := client.DescribeFrame(context.Background(), []byte("jpeg-bytes"), "describe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != `{"description":"trees"}` {
		t.Errorf("unexpected response text %q", text)
	}

	if got.Model != "llava:13b" || got.Prompt != "describe" || got.Format != "json" || got.Stream {
		t.Errorf("unexpected request body %+v", got)
	}
	if len(got.Images) != 1 || got.Images[0] != base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")) {
		t.Errorf("expected one base64 image, got %v", got.Images)
	}
	if got.Options.Temperature != 0.3 || got.Options.NumPredict != 256 {
		t.Errorf("unexpected options %+v", got.Options)
	}
}

func TestOllamaClientGenerate(t *testing.T) {
	var got generateRequest
	client := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"response": "A short flight."})
	})

	text, err := client.Generate(context.Background(), "summarize")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "A short flight." {
		t.Errorf("unexpected text %q", text)
	}
	if len(got.Images) != 0 || got.Format != "" {
		t.Errorf("summary request should carry no images or format, got %+v", got)
	}
	if got.Options.Temperature != 0.5 || got.Options.NumPredict != 128 {
		t.Errorf("unexpected options %+v", got.Options)
	}
}

func TestOllamaClientTransportErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
		},
		{
			name: "not found status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not found", http.StatusNotFound)
			},
		},
		{
			name: "error field in body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{"error": "out of memory"})
			},
		},
		{
			name: "garbage envelope",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>proxy</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestOllama(t, tt.handler)
			_, err := client.DescribeFrame(context.Background(), []byte("x"), "p")
			if !errors.Is(err, ErrTransport) {
				t.Errorf("expected ErrTransport, got %v", err)
			}
		})
	}
}

func TestOllamaClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewOllamaClient(&Config{Host: url, Model: "llava:13b", Timeout: time.Second})
	if err := client.Health(context.Background()); !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestOllamaClientListModels(t *testing.T) {
	client := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"llama3:latest"},{"name":"llava:13b"}]}`))
	})

	names, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[1] != "llava:13b" {
		t.Errorf("unexpected models %v", names)
	}

	ok, err := client.HasModel(context.Background())
	if err != nil || !ok {
		t.Errorf("expected configured model to be present, got %v %v", ok, err)
	}
}
