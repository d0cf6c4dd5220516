package models

// CheckoutRequest represents a request to create a checkout session
type CheckoutRequest struct {
	PriceID string `json:"priceId" validate:"required"`
	UserID  string `json:"userId" validate:"required,uuid4"`
	Email   string `json:"email" validate:"required,email"`
}

// CheckoutResponse represents a checkout session response
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// PortalRequest represents a request to open the billing portal
type PortalRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PortalResponse represents a customer portal session response
type PortalResponse struct {
	URL string `json:"url"`
}

// SyncRequest asks for an authoritative re-derivation of the stored tier
type SyncRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SyncResponse reports the tier written back to the profile
type SyncResponse struct {
	Tier           string `json:"tier"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
}

// ValidateSubscriptionRequest is a read-only liveness check for a subscription
type ValidateSubscriptionRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
}

// ValidateSubscriptionResponse reports the provider-side subscription status
type ValidateSubscriptionResponse struct {
	Valid  bool   `json:"valid"`
	Status string `json:"status"`
}

// DeductTokenRequest identifies the profile to charge
type DeductTokenRequest struct {
	UserID string `json:"userId" validate:"required,uuid4"`
}

// DeductTokenResponse reports the balance after deduction.
// TokensRemaining is -1 (UnlimitedTokens) for premium profiles.
type DeductTokenResponse struct {
	Success         bool `json:"success"`
	TokensRemaining int  `json:"tokensRemaining"`
	Unlimited       bool `json:"unlimited,omitempty"`
}

// PricingTier represents a pricing tier with details
type PricingTier struct {
	Name        string   `json:"name"`
	Price       int      `json:"price"`
	TokenLimit  int      `json:"token_limit"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}

// PricingResponse represents pricing information
type PricingResponse struct {
	Tiers []PricingTier `json:"tiers"`
}
