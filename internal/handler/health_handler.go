package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aulalabs/aula-api/internal/config"
	"github.com/aulalabs/aula-api/internal/utils"
)

// HealthResponse is the liveness payload. It names the active provider and
// sandbox backend so an operator can see a misconfigured instance at a glance.
type HealthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Service        string    `json:"service"`
	Environment    string    `json:"environment"`
	AIProvider     string    `json:"ai_provider"`
	SandboxBackend string    `json:"sandbox_backend"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
}

// HealthCheck reports process liveness. It deliberately probes nothing: a
// degraded inference endpoint already degrades gracefully and must not flap
// the readiness of the whole service.
func HealthCheck(cfg config.Config) fiber.Handler {
	started := time.Now()

	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:         "ok",
			Timestamp:      time.Now().UTC(),
			Service:        cfg.AppName,
			Environment:    cfg.AppEnv,
			AIProvider:     cfg.AIProvider,
			SandboxBackend: cfg.SandboxBackend,
			UptimeSeconds:  int64(time.Since(started).Seconds()),
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
