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

// SubmissionHandler exposes code execution, final submission, and risk report
// endpoints.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(service service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: service,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.submit)
	router.Get("/:activity/risk", h.riskReport)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitSolutionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Submit(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	message := "code executed"
	if payload.IsFinalSubmission {
		message = "submission graded"
	}
	return utils.SendSuccess(c, message, response)
}

func (h *SubmissionHandler) riskReport(c *fiber.Ctx) error {
	activityID := c.Params("activity")
	studentID := c.Query("student")
	if studentID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "student query parameter is required")
	}

	report, err := h.service.RiskReport(c.Context(), activityID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "risk report retrieved", report)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrRiskReportNotReady):
		return utils.SendError(c, fiber.StatusNotFound, "risk report not ready")
	default:
		h.logger.Error().Err(err).Msg("submission request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
