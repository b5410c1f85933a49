package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	gatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aula",
		Subsystem: "gateway",
		Name:      "completion_duration_seconds",
		Help:      "Duration of inference completion requests",
	}, []string{"model"})

	gatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "gateway",
		Name:      "completion_failures_total",
		Help:      "Number of failed inference completion requests",
	}, []string{"model"})

	gatewayProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aula",
		Subsystem: "gateway",
		Name:      "endpoint_probes_total",
		Help:      "Liveness probes issued while resolving an inference endpoint",
	}, []string{"outcome"})
)

// ErrNoEndpoint indicates no configured endpoint answered its liveness probe.
var ErrNoEndpoint = errors.New("no reachable inference endpoint")

// OllamaConfig defines configuration for the Ollama-backed provider.
type OllamaConfig struct {
	// Endpoints are probed in priority order. The last entry doubles as the
	// default used when nothing answers.
	Endpoints    []string
	Model        string
	ProbeTimeout time.Duration
	Logger       zerolog.Logger
}

// OllamaClient implements Provider against the Ollama generate API with
// endpoint failover. The first endpoint that answers a liveness probe is
// cached and reused for subsequent calls.
type OllamaClient struct {
	endpoints    []string
	model        string
	probeTimeout time.Duration
	httpClient   *http.Client
	logger       zerolog.Logger
	tracer       trace.Tracer

	mu       sync.Mutex
	resolved string
}

// NewOllamaClient builds a client from the provided configuration.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}

	if cfg.Model == "" {
		cfg.Model = "llama3"
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 1500 * time.Millisecond
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OllamaClient{
		endpoints:    cfg.Endpoints,
		model:        cfg.Model,
		probeTimeout: cfg.ProbeTimeout,
		httpClient:   &http.Client{},
		logger:       logger.With().Str("component", "ollama_client").Logger(),
		tracer:       otel.Tracer("github.com/aulalabs/aula-api/pkg/llm"),
	}, nil
}

// Resolve returns the cached working endpoint, probing the candidate list in
// order when nothing is cached yet. Concurrent callers serialize on the cache
// so a single probe sweep runs at a time.
func (c *OllamaClient) Resolve(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved != "" {
		return c.resolved, nil
	}

	for _, endpoint := range c.endpoints {
		if c.probe(ctx, endpoint) {
			gatewayProbes.WithLabelValues("ok").Inc()
			c.logger.Info().Str("endpoint", endpoint).Msg("inference endpoint resolved")
			c.resolved = endpoint
			return endpoint, nil
		}
		gatewayProbes.WithLabelValues("unreachable").Inc()
	}

	return "", ErrNoEndpoint
}

// ResolveOrDefault resolves an endpoint, falling back to the last configured
// candidate when none answers. Callers that must always produce a structured
// result use this instead of aborting on connectivity failure.
func (c *OllamaClient) ResolveOrDefault(ctx context.Context) string {
	endpoint, err := c.Resolve(ctx)
	if err != nil {
		fallback := c.endpoints[len(c.endpoints)-1]
		c.logger.Warn().Str("endpoint", fallback).Msg("no endpoint answered probe, using default")
		return fallback
	}
	return endpoint
}

func (c *OllamaClient) probe(ctx context.Context, endpoint string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint+"/api/tags", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete issues one blocking generate call and returns the raw text payload.
// Transport problems and non-2xx responses surface as *TransportError; no
// recovery happens at this layer.
func (c *OllamaClient) Complete(parent context.Context, prompt string, opts Options) (string, error) {
	ctx, span := c.tracer.Start(parent, "ollama.complete", trace.WithAttributes(
		attribute.String("model", c.model),
	))
	defer span.End()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	endpoint := c.ResolveOrDefault(ctx)

	payload := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.NumPredict,
		},
	}
	if opts.JSONMode {
		payload.Format = "json"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	gatewayDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		gatewayFailures.WithLabelValues(c.model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		gatewayFailures.WithLabelValues(c.model).Inc()
		err := &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode}
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status "+strconv.Itoa(resp.StatusCode))
		return "", err
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		gatewayFailures.WithLabelValues(c.model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	return decoded.Response, nil
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed computes one embedding vector for the given text using the configured
// embedding model. Used by the retrieval pipeline, not by completions.
func (c *OllamaClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	endpoint, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	var decoded embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	return decoded.Embedding, nil
}
