package handler

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/aulalabs/aula-api/internal/dto"
	"github.com/aulalabs/aula-api/internal/service"
	"github.com/aulalabs/aula-api/internal/utils"
)

// maxDocumentBytes bounds uploads to 20 MiB.
const maxDocumentBytes = 20 << 20

// DocumentHandler exposes document ingestion and document chat for an activity.
type DocumentHandler struct {
	documents service.DocumentService
	chat      service.ChatService
	logger    zerolog.Logger
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(documents service.DocumentService, chat service.ChatService, logger zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		chat:      chat,
		logger:    logger.With().Str("component", "document_handler").Logger(),
	}
}

// Register wires the handler endpoints into the activities router group.
func (h *DocumentHandler) Register(router fiber.Router) {
	router.Post("/:id/documents", h.upload)
	router.Get("/:id/documents", h.list)
	router.Post("/:id/chat", h.ask)
}

func (h *DocumentHandler) upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxDocumentBytes {
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, "file exceeds upload limit")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "failed to read file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "failed to read file")
	}

	document, err := h.documents.Upload(c.Context(), c.Params("id"), fileHeader.Filename, data)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendCreated(c, "document ingested", document)
}

func (h *DocumentHandler) list(c *fiber.Ctx) error {
	documents, err := h.documents.List(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "documents retrieved", documents)
}

func (h *DocumentHandler) ask(c *fiber.Ctx) error {
	var payload dto.ChatRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if payload.Query == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "query is required")
	}

	answer, err := h.chat.Ask(c.Context(), c.Params("id"), payload.Query)
	if err != nil {
		h.logger.Error().Err(err).Msg("document chat failed")
		return utils.SendError(c, fiber.StatusBadGateway, "knowledge base unavailable")
	}

	return utils.SendSuccess(c, "answer generated", dto.ChatResponse{Response: answer})
}

func (h *DocumentHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrUnsupportedDocument):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrEmptyDocument):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error().Err(err).Msg("document request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
