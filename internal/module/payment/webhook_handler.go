package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gatewayconnect/server/internal/module/payment/provider"
	apperrors "github.com/gatewayconnect/server/internal/shared/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives provider notifications.
type WebhookHandler struct {
	service *WebhookService
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service *WebhookService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/provider/:provider/webhook", h.HandleWebhook)
}

// HandleWebhook verifies and applies a provider notification.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	name := c.Param("provider")

	// Raw body is needed for signature verification
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.String("provider", name), zap.Error(err))
		respondError(c, apperrors.BadRequest("failed to read body"))
		return
	}

	err = h.service.Handle(c.Request.Context(), name, payload, c.Request.Header)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, WebhookAck{OK: true})
	case errors.Is(err, provider.ErrInvalidSignature):
		respondError(c, apperrors.Unauthorized("invalid sign"))
	case errors.Is(err, provider.ErrMalformedNotification):
		respondError(c, apperrors.BadRequest(err.Error()))
	case errors.Is(err, ErrProviderNotFound):
		respondError(c, apperrors.NotFound("Unknown provider"))
	default:
		h.logger.Error("failed to process webhook", zap.String("provider", name), zap.Error(err))
		_ = c.Error(err)
		respondError(c, apperrors.Internal("processing failed", err))
	}
}

func respondError(c *gin.Context, appErr *apperrors.AppError) {
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}
