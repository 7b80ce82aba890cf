package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "gpt-4o-mini",
		BaseURL: server.URL,
	}, 0.2, 5*time.Second)
	return server, client
}

func TestOpenAIClient_Complete(t *testing.T) {
	t.Run("returns completion content and usage", func(t *testing.T) {
		_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "gpt-4o-mini", req.Model)
			require.Len(t, req.Messages, 2)
			assert.Equal(t, "system", req.Messages[0].Role)
			require.NotNil(t, req.ResponseFormat)
			assert.Equal(t, "json_object", req.ResponseFormat.Type)

			resp := chatResponse{
				Model: "gpt-4o-mini-2024",
				Choices: []chatChoice{
					{Message: chatMessage{Role: "assistant", Content: `{"score": 0.9}`}},
				},
				Usage: chatUsage{PromptTokens: 100, CompletionTokens: 20},
			}
			_ = json.NewEncoder(w).Encode(resp)
		})

		resp, err := client.Complete(context.Background(), Request{
			Messages: []Message{
				{Role: RoleSystem, Content: "You score papers."},
				{Role: RoleUser, Content: "Score this."},
			},
			JSONResponse: true,
		})
		require.NoError(t, err)
		assert.Equal(t, `{"score": 0.9}`, resp.Content)
		assert.Equal(t, "gpt-4o-mini-2024", resp.Model)
		assert.Equal(t, 100, resp.Usage.InputTokens)
		assert.Equal(t, 20, resp.Usage.OutputTokens)
	})

	t.Run("request model overrides default", func(t *testing.T) {
		var gotModel string
		_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			gotModel = req.Model
			_ = json.NewEncoder(w).Encode(chatResponse{
				Choices: []chatChoice{{Message: chatMessage{Content: "ok"}}},
			})
		})

		_, err := client.Complete(context.Background(), Request{
			Model:    "gpt-4o",
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", gotModel)
	})

	t.Run("maps rate limit to transient API error", func(t *testing.T) {
		_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(openAIErrorResponse{
				Error: openAIErrorDetail{Message: "rate limit exceeded", Type: "rate_limit_error"},
			})
		})

		_, err := client.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, "rate limit exceeded", apiErr.Message)
		assert.True(t, apiErr.IsTransient())
	})

	t.Run("maps bad request to permanent API error", func(t *testing.T) {
		_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(openAIErrorResponse{
				Error: openAIErrorDetail{Message: "unknown model", Type: "invalid_request_error"},
			})
		})

		_, err := client.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.False(t, apiErr.IsTransient())
	})

	t.Run("maps network failure to transient API error", func(t *testing.T) {
		server, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()

		_, err := client.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 0, apiErr.StatusCode)
		assert.True(t, apiErr.IsTransient())
	})

	t.Run("rejects empty choices", func(t *testing.T) {
		_, client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(chatResponse{})
		})

		_, err := client.Complete(context.Background(), Request{
			Messages: []Message{{Role: RoleUser, Content: "hi"}},
		})
		assert.ErrorContains(t, err, "empty choices")
	})
}
