package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "qwen3:8b", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := map[string]any{
			"model": "qwen3:8b",
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": `{"ok":true}`}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4},
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewLocal("qwen3:8b", WithLocalBaseURL(srv.URL))
	got, err := c.Complete(context.Background(), Request{
		System: "you are terse",
		User:   "reply with json",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, got.Text)
	assert.Equal(t, 12, got.Usage.PromptTokens)
	assert.Equal(t, 4, got.Usage.CompletionTokens)
}

func TestLocalCompleteErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewLocal("qwen3:8b", WithLocalBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Request{User: "hi"})
	assert.ErrorContains(t, err, "status 500")
}

func TestLocalCompleteNoChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"m","choices":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewLocal("m", WithLocalBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), Request{User: "hi"})
	assert.ErrorContains(t, err, "no choices")
}

func TestProbe(t *testing.T) {
	t.Parallel()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer alive.Close()

	c := NewLocal("m", WithLocalBaseURL(alive.URL))
	assert.True(t, c.Probe(context.Background()))

	dead := NewLocal("m", WithLocalBaseURL("http://127.0.0.1:1"))
	assert.False(t, dead.Probe(context.Background()))
}
