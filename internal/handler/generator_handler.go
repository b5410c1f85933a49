package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/service"
	"github.com/aulalabs/aula-api/internal/utils"
)

// GeneratorHandler exposes AI exercise generation for an activity.
type GeneratorHandler struct {
	service service.GeneratorService
	logger  zerolog.Logger
}

// NewGeneratorHandler constructs the handler.
func NewGeneratorHandler(service service.GeneratorService, logger zerolog.Logger) *GeneratorHandler {
	return &GeneratorHandler{
		service: service,
		logger:  logger.With().Str("component", "generator_handler").Logger(),
	}
}

// Register wires the handler endpoints into the activities router group.
func (h *GeneratorHandler) Register(router fiber.Router) {
	router.Post("/:id/exercises/generate", h.generate)
}

func (h *GeneratorHandler) generate(c *fiber.Ctx) error {
	var payload dto.GenerateExercisesRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	exercises, err := h.service.Generate(c.Context(), c.Params("id"), payload)
	if err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		h.logger.Error().Err(err).Msg("exercise generation failed")
		return utils.SendError(c, fiber.StatusBadGateway, "exercise generation unavailable")
	}

	return utils.SendCreated(c, "exercises generated", exercises)
}
