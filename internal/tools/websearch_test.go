package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchTool_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			http.Error(w, "missing auth", http.StatusUnauthorized)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if payload["query"] != "golang broker" {
			http.Error(w, "unexpected query", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Go", "url": "https://go.dev", "content": "The Go programming language"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	tool := &WebSearchTool{APIKey: "test-key", BaseURL: srv.URL}
	got, err := tool.Call(context.Background(), json.RawMessage(`{"query":"golang broker"}`))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if !strings.Contains(got, "status_code: 200") {
		t.Fatalf("Call() = %q, want status_code header", got)
	}
	if !strings.Contains(got, "go.dev") {
		t.Fatalf("Call() = %q, want result body", got)
	}
}

func TestWebSearchTool_Call_MissingQuery(t *testing.T) {
	tool := &WebSearchTool{APIKey: "test-key"}
	_, err := tool.Call(context.Background(), json.RawMessage(`{}`))
	if err == nil {
		t.Fatalf("Call() = nil, want error")
	}
}

func TestWebSearchTool_Call_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota exceeded"}`, http.StatusPaymentRequired)
	}))
	t.Cleanup(srv.Close)

	tool := &WebSearchTool{APIKey: "test-key", BaseURL: srv.URL}
	_, err := tool.Call(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err == nil {
		t.Fatalf("Call() = nil, want error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("Call() error = %q, want response snippet", err)
	}
}

func TestWebSearchTool_Call_MissingAPIKey(t *testing.T) {
	t.Setenv("SEARCH_API_KEY", "")
	tool := &WebSearchTool{}
	_, err := tool.Call(context.Background(), json.RawMessage(`{"query":"x"}`))
	if err == nil {
		t.Fatalf("Call() = nil, want error")
	}
}
