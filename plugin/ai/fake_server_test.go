package ai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeOllama emulates the OpenAI compatible endpoints served by Ollama under /v1.
type fakeOllama struct {
	mu sync.Mutex

	chunks    []string
	reply     string
	vectors   [][]float32
	models    []string
	failWith  int
	requests  []map[string]any
	lastPaths []string
}

func newFakeOllama(t *testing.T) (*fakeOllama, *httptest.Server) {
	t.Helper()
	f := &fakeOllama{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", f.handleChat)
	mux.HandleFunc("/v1/embeddings", f.handleEmbeddings)
	mux.HandleFunc("/v1/models", f.handleModels)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOllama) record(r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, body)
	f.lastPaths = append(f.lastPaths, r.URL.Path)
	return body, f.failWith != 0
}

func (f *fakeOllama) fail(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(f.failWith)
	_, _ = w.Write([]byte(`{"error":{"message":"backend exploded","type":"server_error"}}`))
}

func (f *fakeOllama) handleChat(w http.ResponseWriter, r *http.Request) {
	body, failing := f.record(r)
	if failing {
		f.fail(w)
		return
	}

	if stream, _ := body["stream"].(bool); !stream {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  body["model"],
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": f.reply},
				"finish_reason": "stop",
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, chunk := range f.chunks {
		payload, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"model":   body["model"],
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": chunk}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (f *fakeOllama) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	_, failing := f.record(r)
	if failing {
		f.fail(w)
		return
	}
	data := make([]map[string]any, 0, len(f.vectors))
	for i, vec := range f.vectors {
		data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "nomic-embed-text"})
}

func (f *fakeOllama) handleModels(w http.ResponseWriter, r *http.Request) {
	_, failing := f.record(r)
	if failing {
		f.fail(w)
		return
	}
	data := make([]map[string]any, 0, len(f.models))
	for _, m := range f.models {
		data = append(data, map[string]any{"id": m, "object": "model", "owned_by": "library"})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
}

func (f *fakeOllama) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}
