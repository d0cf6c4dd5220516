package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/api/errors"
	"github.com/noomo-ai/noomo-backend/pkg/email"
	"github.com/noomo-ai/noomo-backend/pkg/models"
)

// SupportHandler handles support inquiries
type SupportHandler struct {
	emailService *email.Service
	validator    *validator.Validate
}

// NewSupportHandler creates a new support handler
func NewSupportHandler(emailService *email.Service) *SupportHandler {
	return &SupportHandler{
		emailService: emailService,
		validator:    validator.New(),
	}
}

// SubmitInquiry handles forwarding a support inquiry
// @Summary Submit a support inquiry
// @Description Forward a support inquiry to the support inbox
// @Tags Support
// @Accept json
// @Produce json
// @Param request body models.SupportRequest true "Support inquiry"
// @Success 200 {object} models.SuccessResponse "Inquiry sent"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /support [post]
func (h *SupportHandler) SubmitInquiry(c echo.Context) error {
	var req models.SupportRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	if err := h.emailService.SendSupportEmail(req.Email, req.Subject, req.Message); err != nil {
		return errors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Support inquiry sent",
	})
}
