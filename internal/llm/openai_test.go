package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slrforge/internal/config"
	"slrforge/internal/fault"
)

func newTestOpenAI(baseURL string) *OpenAI {
	cfg := config.DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.BaseURL = baseURL
	cfg.LLM.Model = "gpt-test"
	cfg.LLM.TimeoutSeconds = 5
	c := NewOpenAI(cfg)
	c.backoff = time.Millisecond
	return c
}

func chatCompletion(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]interface{}{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestOpenAIDraftSendsRequestAndExtractsJSON(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletion("Here you go:\n```json\n{\"statement\": \"refined\"}\n```")))
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	doc, err := c.Draft(context.Background(), DraftRequest{
		System: "You draft research protocols.",
		Prompt: "Frame this idea as JSON.",
		Schema: "problem_framing",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"statement": "refined"}`, string(doc))

	assert.Equal(t, "gpt-test", captured["model"])
	messages := captured["messages"].([]interface{})
	require.Len(t, messages, 2)
	first := messages[0].(map[string]interface{})
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "You draft research protocols.", first["content"])
	second := messages[1].(map[string]interface{})
	assert.Equal(t, "user", second["role"])

	format, ok := captured["response_format"].(map[string]interface{})
	require.True(t, ok, "request must carry response_format")
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIDraftRetriesTransientFailures(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&attempts, 1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(chatCompletion(`{"ok": true}`)))
		}
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	doc, err := c.Draft(context.Background(), DraftRequest{Prompt: "draft JSON"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(doc))
	assert.EqualValues(t, 3, atomic.LoadInt32(&attempts))
}

func TestOpenAIDraftClientErrorIsTerminal(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key"}}`))
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	_, err := c.Draft(context.Background(), DraftRequest{Prompt: "draft JSON"})
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))

	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, fault.KindProvider, fe.Kind)
	assert.False(t, fe.Retriable)
}

func TestOpenAIDraftFallsBackWithoutResponseFormat(t *testing.T) {
	var attempts int32
	var secondBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&attempts, 1) {
		case 1:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "response_format is not supported by this model"}}`))
		default:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&secondBody))
			w.Write([]byte(chatCompletion(`{"ok": true}`)))
		}
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	doc, err := c.Draft(context.Background(), DraftRequest{Prompt: "draft JSON"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(doc))
	assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
	assert.NotContains(t, secondBody, "response_format")
}

func TestOpenAIDraftExhaustsRetries(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	_, err := c.Draft(context.Background(), DraftRequest{Prompt: "draft JSON"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.EqualValues(t, openAIMaxRetries+1, atomic.LoadInt32(&attempts))

	fe, ok := fault.As(err)
	require.True(t, ok)
	assert.Equal(t, fault.KindProvider, fe.Kind)
	assert.True(t, fe.Retriable)
}

func TestOpenAIDraftRequiresAPIKey(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	c.apiKey = ""

	_, err := c.Draft(context.Background(), DraftRequest{Prompt: "draft JSON"})
	require.Error(t, err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))
	assert.EqualValues(t, 0, atomic.LoadInt32(&attempts))
}

func TestOpenAIDraftNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	c := newTestOpenAI(server.URL)
	_, err := c.Draft(context.Background(), DraftRequest{Prompt: "draft JSON"})
	require.Error(t, err)
	assert.Equal(t, fault.KindProvider, fault.KindOf(err))
	assert.Contains(t, err.Error(), "no completion returned")
}

func TestOpenAIDraftCanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("canceled draft must not reach the server")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestOpenAI(server.URL)
	_, err := c.Draft(ctx, DraftRequest{Prompt: "draft JSON"})
	require.Error(t, err)
	assert.Equal(t, fault.KindTimeout, fault.KindOf(err))
}
