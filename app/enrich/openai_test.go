package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionResponse(content string) string {
	payload, _ := json.Marshal(map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(payload)
}

func TestOpenAIProviderEnrich(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, completionResponse(`{"summary":["Assess pain and function before prescribing.","Prefer non-opioid therapies first.","Reassess benefits and harms regularly.","Offer naloxone when risk is elevated."],"tags":["Opioids","Pain Management","primary care"]}`))
	}))
	defer server.Close()

	provider := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL + "/v1", Model: "test-model"})
	result, err := provider.Enrich(context.Background(), Request{Title: "Opioid Prescribing Update", Bullets: 3})
	if err != nil {
		t.Fatal(err)
	}

	if received["model"] != "test-model" {
		t.Errorf("Expected model 'test-model' in request, got %v", received["model"])
	}
	if format, ok := received["response_format"].(map[string]any); !ok || format["type"] != "json_object" {
		t.Errorf("Expected json_object response format, got %v", received["response_format"])
	}

	lines := strings.Split(result.Summary, "\n")
	if len(lines) != 3 {
		t.Errorf("Expected summary truncated to 3 bullets, got %d", len(lines))
	}
	if lines[0] != "• Assess pain and function before prescribing." {
		t.Errorf("Unexpected first bullet %q", lines[0])
	}
	want := []string{"opioid", "pain management", "primary care"}
	if strings.Join(result.Tags, ",") != strings.Join(want, ",") {
		t.Errorf("Expected tags %v, got %v", want, result.Tags)
	}
	if result.Method != MethodAI {
		t.Errorf("Expected method %s, got %s", MethodAI, result.Method)
	}
}

func TestOpenAIProviderErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		delay  time.Duration
		want   ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, 0, KindAuth},
		{"quota", http.StatusTooManyRequests, `{"error":"quota"}`, 0, KindQuota},
		{"server error", http.StatusBadGateway, `oops`, 0, KindTransport},
		{"not json", http.StatusOK, `<html>`, 0, KindMalformed},
		{"no choices", http.StatusOK, `{"choices":[]}`, 0, KindMalformed},
		{"too few bullets", http.StatusOK, completionResponse(`{"summary":["only one"],"tags":[]}`), 0, KindMalformed},
		{"content not json", http.StatusOK, completionResponse(`Here is your summary`), 0, KindMalformed},
		{"slow", http.StatusOK, completionResponse(`{}`), 200 * time.Millisecond, KindTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.delay > 0 {
					select {
					case <-time.After(tt.delay):
					case <-r.Context().Done():
						return
					}
				}
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			provider := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: server.URL + "/v1"})
			_, err := provider.Enrich(ctx, Request{Title: "Asthma Guideline"})

			var providerErr *ProviderError
			if !errors.As(err, &providerErr) {
				t.Fatalf("Expected *ProviderError, got %v", err)
			}
			if providerErr.Kind != tt.want {
				t.Errorf("Expected kind %s, got %s (%v)", tt.want, providerErr.Kind, err)
			}
			if !errors.Is(err, ErrUnavailable) {
				t.Error("Expected error to wrap ErrUnavailable")
			}
		})
	}
}

func TestOpenAIProviderDisabledWithoutKey(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{}).Enrich(context.Background(), Request{Title: "x"})

	var providerErr *ProviderError
	if !errors.As(err, &providerErr) || providerErr.Kind != KindDisabled {
		t.Errorf("Expected disabled error, got %v", err)
	}
}

func TestParseCompletionVariants(t *testing.T) {
	tests := []struct {
		name    string
		content string
		bullets int
		want    string
	}{
		{
			name:    "string summary with markers",
			content: "{\"summary\":\"- First point here\\n2. Second point here\\n• Third point here\",\"tags\":\"asthma, copd\"}",
			bullets: 4,
			want:    "• First point here\n• Second point here\n• Third point here",
		},
		{
			name:    "code fence",
			content: "```json\n{\"summary\":[\"a one\",\"b two\",\"c three\"]}\n```",
			bullets: 3,
			want:    "• a one\n• b two\n• c three",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseCompletion(tt.content, tt.bullets)
			if err != nil {
				t.Fatal(err)
			}
			if result.Summary != tt.want {
				t.Errorf("Expected summary %q, got %q", tt.want, result.Summary)
			}
		})
	}
}
