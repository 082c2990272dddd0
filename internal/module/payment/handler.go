package payment

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	apperrors "github.com/gatewayconnect/server/internal/shared/errors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

// Handler handles platform-facing payment requests.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the platform routes.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/status", h.Status)
	r.POST("/refund", h.Refund)
	r.POST("/payout", h.Payout)
	r.POST("/confirm_secure_code", h.ConfirmSecureCode)
	r.POST("/resend_otp", h.ResendOTP)
	r.POST("/next_payment_step", h.NextPaymentStep)
	r.GET("/qr_form/:gateway_token", h.QRForm)
}

// RegisterPayRoute registers /pay separately so it can carry its own middleware.
func (h *Handler) RegisterPayRoute(r gin.IRoutes, middleware ...gin.HandlerFunc) {
	r.POST("/pay", append(middleware, h.Pay)...)
}

// RegisterAdminRoutes registers the admin routes. The caller guards the group.
func (h *Handler) RegisterAdminRoutes(r gin.IRoutes) {
	r.POST("/update_status", h.UpdateStatus)
}

// Pay creates a payment at the routed provider.
func (h *Handler) Pay(c *gin.Context) {
	var req PlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}

	resp, err := h.service.Pay(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Status queries the provider for a correlated transaction.
func (h *Handler) Status(c *gin.Context) {
	h.serve(c, h.service.Status)
}

// Refund refunds a correlated transaction.
func (h *Handler) Refund(c *gin.Context) {
	h.serve(c, h.service.Refund)
}

// Payout submits a payout.
func (h *Handler) Payout(c *gin.Context) {
	h.serve(c, h.service.Payout)
}

// ConfirmSecureCode confirms a payer-entered code.
func (h *Handler) ConfirmSecureCode(c *gin.Context) {
	h.serve(c, h.service.ConfirmSecureCode)
}

// ResendOTP resends a one-time password.
func (h *Handler) ResendOTP(c *gin.Context) {
	h.serve(c, h.service.ResendOTP)
}

// NextPaymentStep returns the next payer action.
func (h *Handler) NextPaymentStep(c *gin.Context) {
	h.serve(c, h.service.NextPaymentStep)
}

type statusOperation func(context.Context, *PlatformRequest) (*domain.StatusResponse, error)

func (h *Handler) serve(c *gin.Context, op statusOperation) {
	var req PlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badBody(c, err)
		return
	}

	resp, err := op(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdateStatus overrides a transaction status.
// POST /admin/update_status?token=&new_status=
func (h *Handler) UpdateStatus(c *gin.Context) {
	resp, err := h.service.UpdateStatus(c.Request.Context(), c.Query("token"), c.Query("new_status"))
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

var qrFormTemplate = template.Must(template.New("qr_form").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>SBP Payment</title>
<style>
body { font-family: Arial, sans-serif; text-align: center; padding: 20px; }
.qr { max-width: 400px; margin: 0 auto; }
</style>
</head>
<body>
<div class="qr">
<h2>SBP Payment</h2>
<p><strong>Order:</strong> {{.OrderNumber}}</p>
<p><strong>Status:</strong> {{.Status}}</p>
<div id="qr"><p>Scan the QR code in your banking app to pay.</p></div>
</div>
</body>
</html>
`))

type qrFormView struct {
	OrderNumber string
	Status      string
}

// QRForm renders the hosted QR page referenced by post_iframes redirects.
func (h *Handler) QRForm(c *gin.Context) {
	record, err := h.service.FindForm(c.Request.Context(), c.Param("gateway_token"))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			respondError(c, apperrors.NotFound("QR form not found"))
			return
		}
		handleError(c, err)
		return
	}

	view := qrFormView{OrderNumber: "N/A", Status: string(domain.StatusPending)}
	if v := domain.Deref(record.OrderNumber); v != "" {
		view.OrderNumber = v
	}
	if v := domain.Deref(record.Status); v != "" {
		view.Status = v
	}
	c.Render(http.StatusOK, render.HTML{Template: qrFormTemplate, Data: view})
}

func (h *Handler) badBody(c *gin.Context, err error) {
	_ = c.Error(err)
	respondError(c, apperrors.BadRequest("Invalid JSON"))
}

// handleError maps module errors to the error envelope.
func handleError(c *gin.Context, err error) {
	var fieldErr *FieldError
	var appErr *apperrors.AppError

	switch {
	case errors.As(err, &fieldErr):
		appErr = apperrors.ValidationError(fieldErr.Error())
	case errors.Is(err, ErrMissingLookupKey):
		appErr = apperrors.ValidationError(err.Error())
	case errors.Is(err, ErrProviderNotFound):
		appErr = apperrors.BadRequest("Provider not found")
	case errors.Is(err, ErrUnknownToken):
		appErr = apperrors.NotFound("Unknown token")
	case errors.Is(err, ErrTransactionNotFound):
		appErr = apperrors.NotFound("Transaction not found")
	case errors.As(err, &appErr):
	default:
		_ = c.Error(err)
		appErr = apperrors.Internal("Internal server error", err)
	}

	respondError(c, appErr)
}
