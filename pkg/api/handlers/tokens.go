package handlers

import (
	goerrors "errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/api/errors"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/noomo-ai/noomo-backend/pkg/tokens"
)

// TokensHandler handles token ledger endpoints
type TokensHandler struct {
	ledger    *tokens.Ledger
	metrics   *metrics.Metrics
	validator *validator.Validate
}

// NewTokensHandler creates a new tokens handler
func NewTokensHandler(ledger *tokens.Ledger, m *metrics.Metrics) *TokensHandler {
	return &TokensHandler{
		ledger:    ledger,
		metrics:   m,
		validator: validator.New(),
	}
}

// DeductToken handles charging one generation token
// @Summary Deduct a generation token
// @Description Charge one token from the profile; premium profiles are never charged
// @Tags Tokens
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.DeductTokenRequest true "Profile to charge"
// @Success 200 {object} models.DeductTokenResponse "Balance after deduction"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 403 {object} models.ErrorResponse "Insufficient tokens"
// @Failure 404 {object} models.ErrorResponse "Profile not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /tokens/deduct [post]
func (h *TokensHandler) DeductToken(c echo.Context) error {
	var req models.DeductTokenRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	resp, err := h.ledger.Deduct(c.Request().Context(), req.UserID)
	if err != nil {
		switch {
		case goerrors.Is(err, tokens.ErrProfileNotFound):
			return errors.NotFoundError(c, "Profile not found")
		case goerrors.Is(err, tokens.ErrInsufficientTokens):
			if h.metrics != nil {
				h.metrics.RecordTokenDeductDenied()
			}
			return errors.ForbiddenError(c, "Insufficient tokens")
		default:
			return errors.DatabaseError(c, err)
		}
	}

	if h.metrics != nil && !resp.Unlimited {
		h.metrics.RecordTokenDeducted()
	}

	return c.JSON(http.StatusOK, resp)
}

// GetBalance handles reading the current token balance
// @Summary Get token balance
// @Description Read the profile's current token balance; premium reports the unlimited sentinel
// @Tags Tokens
// @Produce json
// @Security BearerAuth
// @Param userId query string true "Profile id"
// @Success 200 {object} map[string]int "Current balance"
// @Failure 404 {object} models.ErrorResponse "Profile not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /tokens/balance [get]
func (h *TokensHandler) GetBalance(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return errors.ValidationError(c, goerrors.New("userId is required"))
	}

	balance, err := h.ledger.Balance(c.Request().Context(), userID)
	if err != nil {
		if goerrors.Is(err, tokens.ErrProfileNotFound) {
			return errors.NotFoundError(c, "Profile not found")
		}
		return errors.DatabaseError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]int{"tokens": balance})
}
