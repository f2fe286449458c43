package autofix

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPGeneratorRoundTrip(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "fixer-1" {
			t.Errorf("expected model fixer-1, got %s", req.Model)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "package db\n"}},
			},
		})
	}))
	defer server.Close()

	gen, err := NewHTTPGenerator(GeneratorConfig{BaseURL: server.URL, APIKey: "secret", Model: "fixer-1"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	body, err := gen.GenerateFix(context.Background(), "fix this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if body != "package db\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
}

func TestHTTPGeneratorEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer server.Close()

	gen, err := NewHTTPGenerator(GeneratorConfig{BaseURL: server.URL, Model: "fixer-1"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	body, err := gen.GenerateFix(context.Background(), "fix this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if body != "" {
		t.Fatalf("expected empty body, got %q", body)
	}
}

func TestHTTPGeneratorServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	gen, err := NewHTTPGenerator(GeneratorConfig{BaseURL: server.URL, Model: "fixer-1"})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}
	if _, err := gen.GenerateFix(context.Background(), "fix this"); err == nil {
		t.Fatalf("expected error on 503")
	}
}

func TestGeneratorConfigValidate(t *testing.T) {
	if err := (GeneratorConfig{}).Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if err := (GeneratorConfig{BaseURL: "http://localhost:1234/v1"}).Validate(); err == nil {
		t.Fatalf("expected error for missing model")
	}
	if err := (GeneratorConfig{BaseURL: "http://localhost:1234/v1", Model: "fixer-1"}).Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
