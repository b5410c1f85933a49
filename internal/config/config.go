package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	NATSURL     string

	JWTSecret string

	// Inference gateway. Endpoints are probed in order; the last entry also
	// serves as the default when no endpoint answers its liveness check.
	AIProvider      string
	OllamaEndpoints []string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	ProbeTimeout    time.Duration
	AuditTimeout    time.Duration
	RiskTimeout     time.Duration
	TutorTimeout    time.Duration
	GenerateTimeout time.Duration

	SandboxBackend   string
	ExecutionTimeout time.Duration
	DockerHost       string
	CodeRunMemoryMB  int
	CodeRunCPUShares int

	ChromaURL        string
	ChromaCollection string
	EmbeddingModel   string
	ChunkSize        int
	ChunkOverlap     int

	RiskWorkers   int
	RiskQueueSize int

	ChatCacheTTL time.Duration

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("AULA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Aula API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("ai.provider", "ollama")
	v.SetDefault("ollama.endpoints", "http://localhost:11434")
	v.SetDefault("ollama.model", "llama3")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("probe_timeout_ms", 1500)
	v.SetDefault("audit_timeout_ms", 120000)
	v.SetDefault("risk_timeout_ms", 60000)
	v.SetDefault("tutor_timeout_ms", 30000)
	v.SetDefault("generate_timeout_ms", 300000)
	v.SetDefault("sandbox.backend", "process")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("chroma.url", "http://localhost:8000")
	v.SetDefault("chroma.collection", "activity_documents")
	v.SetDefault("embedding.model", "all-minilm")
	v.SetDefault("chunk.size", 1000)
	v.SetDefault("chunk.overlap", 200)
	v.SetDefault("risk.workers", 2)
	v.SetDefault("risk.queue_size", 16)
	v.SetDefault("chat.cache_ttl", "30m")
	v.SetDefault("cloudinary.folder", "aula/documents")

	ttl, err := time.ParseDuration(v.GetString("chat.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid chat cache ttl: %w", err)
	}

	endpoints := splitEndpoints(v.GetString("ollama.endpoints"))
	if len(endpoints) == 0 {
		return Config{}, fmt.Errorf("at least one ollama endpoint must be configured")
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		AIProvider:          strings.ToLower(v.GetString("ai.provider")),
		OllamaEndpoints:     endpoints,
		OllamaModel:         v.GetString("ollama.model"),
		OpenAIAPIKey:        v.GetString("openai_api_key"),
		OpenAIBaseURL:       v.GetString("openai.base_url"),
		OpenAIModel:         v.GetString("openai.model"),
		ProbeTimeout:        millis(v, "probe_timeout_ms", 1500),
		AuditTimeout:        millis(v, "audit_timeout_ms", 120000),
		RiskTimeout:         millis(v, "risk_timeout_ms", 60000),
		TutorTimeout:        millis(v, "tutor_timeout_ms", 30000),
		GenerateTimeout:     millis(v, "generate_timeout_ms", 300000),
		SandboxBackend:      strings.ToLower(v.GetString("sandbox.backend")),
		ExecutionTimeout:    millis(v, "execution_timeout_ms", 5000),
		DockerHost:          v.GetString("docker_host"),
		CodeRunMemoryMB:     v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:    v.GetInt("code_run_cpu_shares"),
		ChromaURL:           strings.TrimRight(v.GetString("chroma.url"), "/"),
		ChromaCollection:    v.GetString("chroma.collection"),
		EmbeddingModel:      v.GetString("embedding.model"),
		ChunkSize:           v.GetInt("chunk.size"),
		ChunkOverlap:        v.GetInt("chunk.overlap"),
		RiskWorkers:         v.GetInt("risk.workers"),
		RiskQueueSize:       v.GetInt("risk.queue_size"),
		ChatCacheTTL:        ttl,
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 200
	}
	if cfg.RiskWorkers <= 0 {
		cfg.RiskWorkers = 2
	}
	if cfg.RiskQueueSize <= 0 {
		cfg.RiskQueueSize = 16
	}
	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}
	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}

func millis(v *viper.Viper, key string, fallback int) time.Duration {
	value := v.GetInt(key)
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Millisecond
}

func splitEndpoints(raw string) []string {
	parts := strings.Split(raw, ",")
	endpoints := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimRight(strings.TrimSpace(part), "/")
		if trimmed != "" {
			endpoints = append(endpoints, trimmed)
		}
	}
	return endpoints
}
