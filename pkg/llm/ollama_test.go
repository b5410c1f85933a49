package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func ollamaStub(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestResolveSkipsDeadEndpoints(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	alive := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	client, err := NewOllamaClient(OllamaConfig{
		Endpoints:    []string{dead.URL, alive.URL},
		ProbeTimeout: 500 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	endpoint, err := client.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, alive.URL, endpoint)
}

func TestResolveCachesFirstSuccess(t *testing.T) {
	var probes int32
	alive := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&probes, 1)
		w.WriteHeader(http.StatusOK)
	})

	client, err := NewOllamaClient(OllamaConfig{
		Endpoints: []string{alive.URL},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := client.Resolve(context.Background())
		require.NoError(t, err)
	}

	require.Equal(t, int32(1), atomic.LoadInt32(&probes))
}

func TestResolveOrDefaultFallsBackToLastEndpoint(t *testing.T) {
	first := httptest.NewServer(http.NotFoundHandler())
	first.Close()
	second := httptest.NewServer(http.NotFoundHandler())
	second.Close()

	client, err := NewOllamaClient(OllamaConfig{
		Endpoints:    []string{first.URL, second.URL},
		ProbeTimeout: 200 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = client.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoEndpoint)
	require.Equal(t, second.URL, client.ResolveOrDefault(context.Background()))
}

func TestCompleteSendsGenerateContract(t *testing.T) {
	var captured map[string]any
	server := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(map[string]string{"response": `{"ok": true}`})
	})

	client, err := NewOllamaClient(OllamaConfig{
		Endpoints: []string{server.URL},
		Model:     "llama3",
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	raw, err := client.Complete(context.Background(), "grade this", Options{
		Temperature: 0.2,
		TopP:        0.9,
		NumPredict:  512,
		JSONMode:    true,
	})
	require.NoError(t, err)
	require.Equal(t, `{"ok": true}`, raw)

	require.Equal(t, "llama3", captured["model"])
	require.Equal(t, "grade this", captured["prompt"])
	require.Equal(t, false, captured["stream"])
	require.Equal(t, "json", captured["format"])
	options, ok := captured["options"].(map[string]any)
	require.True(t, ok)
	require.InDelta(t, 0.2, options["temperature"], 0.001)
	require.InDelta(t, 0.9, options["top_p"], 0.001)
	require.Equal(t, float64(512), options["num_predict"])
}

func TestCompleteReturnsTransportErrorOnServerFailure(t *testing.T) {
	server := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	client, err := NewOllamaClient(OllamaConfig{
		Endpoints: []string{server.URL},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt", Options{})
	require.Error(t, err)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	require.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
}

func TestEmbedReturnsVector(t *testing.T) {
	server := ollamaStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "all-minilm", payload["model"])
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	})

	client, err := NewOllamaClient(OllamaConfig{
		Endpoints: []string{server.URL},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	vector, err := client.Embed(context.Background(), "all-minilm", "hello")
	require.NoError(t, err)
	require.Len(t, vector, 2)
}

func TestExtractObjectSlicesBraces(t *testing.T) {
	require.Equal(t, `{"a": {"b": 1}}`, extractObject("noise {\"a\": {\"b\": 1}} trailing"))
	require.Equal(t, "", extractObject("no braces here"))
	require.Equal(t, "", extractObject("} reversed {"))
}
