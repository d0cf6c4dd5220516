package handlers

import (
	goerrors "errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/noomo-ai/noomo-backend/pkg/api/errors"
	"github.com/noomo-ai/noomo-backend/pkg/billing"
	"github.com/noomo-ai/noomo-backend/pkg/models"
)

// BillingHandler handles billing endpoints
type BillingHandler struct {
	billingService *billing.Service
	frontendURL    string
	validator      *validator.Validate
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingService *billing.Service, frontendURL string) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		frontendURL:    frontendURL,
		validator:      validator.New(),
	}
}

// validateReturnURL validates and sanitizes the portal return URL to prevent
// open redirect attacks, falling back to the account page
func (h *BillingHandler) validateReturnURL(returnURL string) string {
	defaultURL := h.frontendURL + "/account"

	if returnURL == "" {
		return defaultURL
	}

	parsed, err := url.Parse(returnURL)
	if err != nil {
		return defaultURL
	}

	// Only http and https (prevents javascript:, data:, etc.)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return defaultURL
	}

	// Reject userinfo (prevents https://attacker@legitimate.com phishing)
	if parsed.User != nil && parsed.User.String() != "" {
		return defaultURL
	}

	allowedHosts := []string{
		"localhost:3000", // Development
		"noomo.ai",       // Production
		"www.noomo.ai",   // Production WWW
	}
	if front, err := url.Parse(h.frontendURL); err == nil && front.Host != "" {
		allowedHosts = append(allowedHosts, front.Host)
	}

	for _, host := range allowedHosts {
		if parsed.Host == host {
			return returnURL
		}
	}

	return defaultURL
}

// CreateCheckout handles creating a checkout session
// @Summary Create Stripe checkout session
// @Description Create a new Stripe checkout session for a subscription price
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.CheckoutRequest true "Checkout configuration"
// @Success 200 {object} models.CheckoutResponse "Checkout session created with URL"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 404 {object} models.ErrorResponse "Profile not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /billing/checkout [post]
func (h *BillingHandler) CreateCheckout(c echo.Context) error {
	var req models.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	session, err := h.billingService.CreateCheckoutSession(c.Request().Context(), req.PriceID, req.UserID, req.Email)
	if err != nil {
		if goerrors.Is(err, billing.ErrProfileNotFound) {
			return errors.NotFoundError(c, "Profile not found")
		}
		return errors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, session)
}

// CreatePortalSession handles creating a customer portal session
// @Summary Create Stripe customer portal session
// @Description Create a session to access the Stripe customer portal
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.PortalRequest true "Portal request"
// @Param return_url query string false "URL to return to after the portal session (validated against whitelist)"
// @Success 200 {object} models.PortalResponse "Portal session created with URL"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 404 {object} models.ErrorResponse "No billing customer"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /billing/portal [post]
func (h *BillingHandler) CreatePortalSession(c echo.Context) error {
	var req models.PortalRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	returnURL := h.validateReturnURL(c.QueryParam("return_url"))

	portal, err := h.billingService.CreatePortalSession(c.Request().Context(), req.Email, returnURL)
	if err != nil {
		switch {
		case goerrors.Is(err, billing.ErrProfileNotFound):
			return errors.NotFoundError(c, "Profile not found")
		case goerrors.Is(err, billing.ErrNoBillingCustomer):
			return errors.NotFoundError(c, "No billing customer for this profile")
		default:
			return errors.InternalError(c, err)
		}
	}

	return c.JSON(http.StatusOK, portal)
}

// HandleWebhook handles Stripe webhook events
// @Summary Handle Stripe webhook
// @Description Process Stripe webhook events for subscription lifecycle changes
// @Tags Billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe webhook signature for verification"
// @Param payload body object true "Stripe webhook event payload"
// @Success 200 {object} map[string]bool "Webhook received"
// @Failure 400 {object} models.ErrorResponse "Invalid request or missing signature"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /webhook/stripe [post]
func (h *BillingHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "missing_signature",
		})
	}

	if err := h.billingService.HandleWebhook(c.Request().Context(), body, signature); err != nil {
		return errors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// SyncSubscription handles re-deriving the tier from Stripe
// @Summary Sync subscription state
// @Description Re-derive the authoritative tier from Stripe's live subscription list and overwrite the stored profile
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.SyncRequest true "Sync request"
// @Success 200 {object} models.SyncResponse "Synced tier"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 404 {object} models.ErrorResponse "Profile or customer not found"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /billing/sync [post]
func (h *BillingHandler) SyncSubscription(c echo.Context) error {
	var req models.SyncRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	resp, err := h.billingService.SyncSubscription(c.Request().Context(), req.Email)
	if err != nil {
		switch {
		case goerrors.Is(err, billing.ErrProfileNotFound):
			return errors.NotFoundError(c, "Profile not found")
		case goerrors.Is(err, billing.ErrNoBillingCustomer):
			return errors.NotFoundError(c, "No billing customer for this profile")
		default:
			return errors.InternalError(c, err)
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// ValidateSubscription handles a read-only subscription liveness check
// @Summary Validate a subscription
// @Description Check a subscription's status against Stripe without mutating the profile
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.ValidateSubscriptionRequest true "Validation request"
// @Success 200 {object} models.ValidateSubscriptionResponse "Subscription status"
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 500 {object} models.ErrorResponse "Internal server error"
// @Router /billing/validate [post]
func (h *BillingHandler) ValidateSubscription(c echo.Context) error {
	var req models.ValidateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError(c, err)
	}
	if err := h.validator.Struct(req); err != nil {
		return errors.ValidationError(c, err)
	}

	resp, err := h.billingService.ValidateSubscription(c.Request().Context(), req.SubscriptionID)
	if err != nil {
		return errors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, resp)
}

// GetPricing handles returning pricing information
// @Summary Get pricing tiers
// @Description Get all subscription tiers with pricing, features, and token limits
// @Tags Billing
// @Produce json
// @Success 200 {object} models.PricingResponse "Pricing information for all tiers"
// @Router /pricing [get]
func (h *BillingHandler) GetPricing(c echo.Context) error {
	return c.JSON(http.StatusOK, h.billingService.GetPricing())
}
