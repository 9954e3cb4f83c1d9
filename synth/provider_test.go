package synth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropic_Generate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/messages") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("X-Api-Key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"<html><body>ok</body></html>"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`))
	}))
	defer srv.Close()

	a := NewAnthropic(AnthropicConfig{APIKey: "key", Model: "m", Temperature: DefaultTemperature, BaseURL: srv.URL + "/"})
	out, err := a.Generate(context.Background(), Prompt{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "<html><body>ok</body></html>" {
		t.Errorf("output: got %q", out)
	}
	if body["model"] != "m" || body["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("request body: %v", body)
	}
}

func TestAnthropic_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		kind      Kind
		transient bool
	}{
		{http.StatusTooManyRequests, RateLimited, false},
		{http.StatusInternalServerError, ServiceUnavailable, true},
		{http.StatusBadRequest, ServiceUnavailable, false},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"nope"}}`))
		}))
		_, err := NewAnthropic(AnthropicConfig{APIKey: "key", BaseURL: srv.URL + "/"}).
			Generate(context.Background(), Prompt{User: "u"})
		srv.Close()

		se := kindOf(t, err)
		if se.Kind != tt.kind || se.Transient != tt.transient {
			t.Errorf("status %d: got %s/%v", tt.status, se.Kind, se.Transient)
		}
	}
}

func TestGemini_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "generateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"<html>"},{"text":"<body>ok</body></html>"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "key", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := g.Generate(context.Background(), Prompt{System: "s", User: "u"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "<html><body>ok</body></html>" {
		t.Errorf("output: got %q", out)
	}
	if g.Name() != "gemini:"+DefaultGeminiModel {
		t.Errorf("name: got %q", g.Name())
	}
}

func TestGemini_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	g, err := NewGemini(context.Background(), GeminiConfig{APIKey: "key", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = g.Generate(context.Background(), Prompt{User: "u"})
	if se := kindOf(t, err); se.Kind != RateLimited {
		t.Fatalf("kind: got %s", se.Kind)
	}
}
