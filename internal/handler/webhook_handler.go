package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/dafibh/mediaforge/mediaforge-backend/internal/domain"
	"github.com/dafibh/mediaforge/mediaforge-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// maxWebhookBody caps provider callback payloads
const maxWebhookBody = 1 << 20

// WebhookHandler receives provider callbacks
type WebhookHandler struct {
	generation *service.GenerationService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(generation *service.GenerationService) *WebhookHandler {
	return &WebhookHandler{generation: generation}
}

// WebhookResponse acknowledges a callback
type WebhookResponse struct {
	Status string `json:"status"`
}

// Receive handles POST /api/v1/webhooks/:provider
func (h *WebhookHandler) Receive(c echo.Context) error {
	providerName := c.Param("provider")
	// one byte over the cap tells an oversized body from one that fits exactly
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return NewValidationError(c, "Unreadable request body", nil)
	}
	if len(body) > maxWebhookBody {
		log.Warn().Str("provider", providerName).Msg("Rejected oversized webhook")
		return NewPayloadTooLargeError(c, "Webhook body exceeds 1 MiB")
	}

	event, err := h.generation.HandleWebhook(c.Request().Context(), providerName, c.Request().Header, body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownProvider):
			return NewNotFoundError(c, "Unknown provider")
		case errors.Is(err, domain.ErrInvalidSignature):
			log.Warn().Str("provider", providerName).Msg("Rejected webhook with invalid signature")
			return NewUnauthorizedError(c, "Invalid webhook signature")
		case errors.Is(err, domain.ErrInvalidWebhook):
			return NewValidationError(c, "Invalid webhook payload", nil)
		case errors.Is(err, domain.ErrJobNotFound):
			// the provider retries, which covers callbacks racing the dispatch write
			return NewNotFoundError(c, "Job not found")
		}
		log.Error().Err(err).Str("provider", providerName).Msg("Failed to process webhook")
		return NewInternalError(c, "Failed to process webhook")
	}

	if !event.Terminal() {
		return c.JSON(http.StatusAccepted, WebhookResponse{Status: event.Status})
	}
	return c.JSON(http.StatusOK, WebhookResponse{Status: event.Status})
}
