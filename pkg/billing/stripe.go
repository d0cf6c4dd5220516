package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/stripe/stripe-go/v76"
	billingportalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"
	"github.com/stripe/stripe-go/v76/webhook"
	"gorm.io/gorm"
)

var (
	// ErrProfileNotFound is returned when no profile matches the lookup
	ErrProfileNotFound = errors.New("profile not found")
	// ErrNoBillingCustomer is returned when the profile has no stored customer id
	ErrNoBillingCustomer = errors.New("profile has no billing customer")
)

// Service handles Stripe billing operations
type Service struct {
	db      *gorm.DB
	subs    SubscriptionAPI
	guard   EventGuard
	metrics *metrics.Metrics
	config  *StripeConfig
}

// StripeConfig holds Stripe configuration
type StripeConfig struct {
	SecretKey           string
	WebhookSecret       string
	PricePremium        string
	PriceBasic          string
	SuccessURL          string
	CancelURL           string
	TokenAllowanceBasic int
}

// NewService creates a new billing service
func NewService(db *gorm.DB, config *StripeConfig) *Service {
	// Set Stripe API key
	stripe.Key = config.SecretKey

	return &Service{
		db:     db,
		subs:   &liveSubscriptionAPI{},
		config: config,
	}
}

// SetSubscriptionAPI replaces the live Stripe subscription client (tests)
func (s *Service) SetSubscriptionAPI(api SubscriptionAPI) {
	s.subs = api
}

// SetEventGuard installs a webhook delivery dedup guard
func (s *Service) SetEventGuard(guard EventGuard) {
	s.guard = guard
}

// SetMetrics installs the Prometheus collectors
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *Service) recordWebhookEvent(eventType stripe.EventType, status string) {
	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(string(eventType), status)
	}
}

func (s *Service) recordTierChange(tier string) {
	if s.metrics != nil {
		s.metrics.RecordSubscriptionChange(tier)
	}
}

// CreateCheckoutSession creates a Stripe checkout session for the given price,
// reusing the profile's billing customer or creating one on first purchase
func (s *Service) CreateCheckoutSession(ctx context.Context, priceID, userID, email string) (*models.CheckoutResponse, error) {
	profile, err := s.profileByID(ctx, userID)
	if err != nil {
		// The auth provider creates profile rows; a checkout before the
		// trigger has fired still matches by email.
		profile, err = s.profileByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
	}

	var customerID string
	if profile.StripeCustomerID != nil && *profile.StripeCustomerID != "" {
		customerID = *profile.StripeCustomerID
	} else {
		params := &stripe.CustomerParams{
			Email: stripe.String(email),
			Metadata: map[string]string{
				"user_id": profile.ID.String(),
			},
		}
		params.Context = ctx
		cust, err := customer.New(params)
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		customerID = cust.ID

		if err := s.db.WithContext(ctx).Model(profile).
			Update("stripe_customer_id", customerID).Error; err != nil {
			return nil, fmt.Errorf("failed to save customer ID: %w", err)
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.config.SuccessURL),
		CancelURL:  stripe.String(s.config.CancelURL),
		Metadata: map[string]string{
			"user_id": profile.ID.String(),
		},
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &models.CheckoutResponse{
		SessionID: sess.ID,
		URL:       sess.URL,
	}, nil
}

// CreatePortalSession creates a Stripe customer portal session
func (s *Service) CreatePortalSession(ctx context.Context, email, returnURL string) (*models.PortalResponse, error) {
	profile, err := s.profileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if profile.StripeCustomerID == nil || *profile.StripeCustomerID == "" {
		return nil, ErrNoBillingCustomer
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*profile.StripeCustomerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := billingportalsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}

	return &models.PortalResponse{URL: sess.URL}, nil
}

// HandleWebhook verifies and processes a Stripe webhook delivery. Stripe
// delivers at least once, so verified events pass through the dedup guard
// before any profile mutation.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}

	log.Printf("📨 Stripe webhook received: %s (%s)", event.Type, event.ID)

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("failed to check event dedup: %w", err)
		}
		if seen {
			log.Printf("↩️  Duplicate webhook delivery skipped: %s", event.ID)
			s.recordWebhookEvent(event.Type, "duplicate")
			return nil
		}
	}

	if err := s.dispatchEvent(ctx, event); err != nil {
		// Unmark so Stripe's retry schedule can reprocess the event
		if s.guard != nil {
			_ = s.guard.Delete(ctx, event.ID)
		}
		s.recordWebhookEvent(event.Type, "failed")
		return err
	}
	s.recordWebhookEvent(event.Type, "processed")
	return nil
}

func (s *Service) dispatchEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		return s.handleSubscriptionChange(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.paid":
		return s.handleInvoicePaid(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoicePaymentFailed(ctx, event)
	default:
		log.Printf("⚠️  Unhandled webhook event type: %s", event.Type)
	}
	return nil
}

// handleCheckoutCompleted resolves the purchased tier from the subscription's
// price id and writes it to the profile matched by user-id metadata, falling
// back to the checkout email
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if sess.Subscription == nil {
		log.Printf("⚠️  Checkout session %s has no subscription", sess.ID)
		return nil
	}

	sub, err := s.subs.Get(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription: %w", err)
	}

	tier := s.resolveTierFromPrice(firstPriceID(sub))

	profile, err := s.profileForCheckout(ctx, &sess)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			log.Printf("⚠️  No profile for checkout session %s", sess.ID)
			return nil
		}
		return err
	}

	updates := map[string]any{
		"subscription_tier":      tier,
		"stripe_subscription_id": sub.ID,
	}
	if sess.Customer != nil {
		updates["stripe_customer_id"] = sess.Customer.ID
	}
	if tier == models.TierBasic && s.config.TokenAllowanceBasic > 0 {
		updates["current_tokens"] = s.config.TokenAllowanceBasic
	}

	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update profile tier: %w", err)
	}

	s.recordTierChange(tier)
	log.Printf("✅ Checkout completed: user=%s tier=%s subscription=%s", profile.ID, tier, sub.ID)
	return nil
}

// handleSubscriptionChange re-resolves the tier from the subscription's price
// and status; a non-active subscription forces the free tier
func (s *Service) handleSubscriptionChange(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	tier := models.TierFree
	if sub.Status == stripe.SubscriptionStatusActive {
		tier = s.resolveTierFromPrice(firstPriceID(&sub))
	}

	profile, err := s.profileForSubscription(ctx, &sub)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			log.Printf("⚠️  No profile for subscription %s", sub.ID)
			return nil
		}
		return err
	}

	updates := map[string]any{
		"subscription_tier":      tier,
		"stripe_subscription_id": sub.ID,
	}
	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update profile tier: %w", err)
	}

	s.recordTierChange(tier)
	log.Printf("🔄 Subscription %s: user=%s status=%s tier=%s", sub.ID, profile.ID, sub.Status, tier)
	return nil
}

// handleSubscriptionDeleted downgrades the profile to the free tier
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	profile, err := s.profileForSubscription(ctx, &sub)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil
		}
		return err
	}

	updates := map[string]any{
		"subscription_tier":      models.TierFree,
		"stripe_subscription_id": nil,
	}
	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to downgrade profile: %w", err)
	}

	s.recordTierChange(models.TierFree)
	log.Printf("❌ Subscription deleted: user=%s downgraded to free", profile.ID)
	return nil
}

// handleInvoicePaid re-fetches the subscription and re-runs the tier update
func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Subscription == nil {
		return nil
	}

	sub, err := s.subs.Get(ctx, invoice.Subscription.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription: %w", err)
	}

	tier := models.TierFree
	if sub.Status == stripe.SubscriptionStatusActive {
		tier = s.resolveTierFromPrice(firstPriceID(sub))
	}

	profile, err := s.profileForSubscription(ctx, sub)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil
		}
		return err
	}

	updates := map[string]any{
		"subscription_tier":      tier,
		"stripe_subscription_id": sub.ID,
	}
	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update profile tier: %w", err)
	}

	s.recordTierChange(tier)
	log.Printf("💰 Invoice paid: user=%s tier=%s", profile.ID, tier)
	return nil
}

// handleInvoicePaymentFailed forces the free tier
func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	if invoice.Customer == nil {
		return nil
	}

	profile, err := s.profileByCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil
		}
		return err
	}

	if err := s.db.WithContext(ctx).Model(profile).
		Update("subscription_tier", models.TierFree).Error; err != nil {
		return fmt.Errorf("failed to downgrade profile: %w", err)
	}

	s.recordTierChange(models.TierFree)
	log.Printf("⚠️  Invoice payment failed: user=%s downgraded to free", profile.ID)
	return nil
}

// SyncSubscription re-derives the authoritative tier from the provider's live
// active-subscription list and unconditionally overwrites the stored profile.
// This is the repair path for drift left by missed or out-of-order webhooks.
func (s *Service) SyncSubscription(ctx context.Context, email string) (*models.SyncResponse, error) {
	profile, err := s.profileByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	if profile.StripeCustomerID == nil || *profile.StripeCustomerID == "" {
		return nil, ErrNoBillingCustomer
	}

	subs, err := s.subs.ListActive(ctx, *profile.StripeCustomerID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	tier := models.TierFree
	subID := ""
	if len(subs) > 0 && subs[0].Status == stripe.SubscriptionStatusActive {
		tier = s.resolveTierFromPrice(firstPriceID(subs[0]))
		subID = subs[0].ID
	}

	updates := map[string]any{"subscription_tier": tier}
	if subID != "" {
		updates["stripe_subscription_id"] = subID
	} else {
		updates["stripe_subscription_id"] = nil
	}
	if err := s.db.WithContext(ctx).Model(profile).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to sync profile: %w", err)
	}

	s.recordTierChange(tier)
	log.Printf("🔄 Subscription synced: user=%s tier=%s", profile.ID, tier)
	return &models.SyncResponse{Tier: tier, SubscriptionID: subID}, nil
}

// ValidateSubscription is a read-only liveness check against the provider
func (s *Service) ValidateSubscription(ctx context.Context, subscriptionID string) (*models.ValidateSubscriptionResponse, error) {
	sub, err := s.subs.Get(ctx, subscriptionID)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return &models.ValidateSubscriptionResponse{Valid: false, Status: "not_found"}, nil
		}
		return nil, fmt.Errorf("failed to fetch subscription: %w", err)
	}

	return &models.ValidateSubscriptionResponse{
		Valid:  sub.Status == stripe.SubscriptionStatusActive,
		Status: string(sub.Status),
	}, nil
}

// resolveTierFromPrice maps a Stripe price id to a subscription tier
func (s *Service) resolveTierFromPrice(priceID string) string {
	if priceID == "" {
		return models.TierFree
	}
	switch priceID {
	case s.config.PricePremium:
		return models.TierPremium
	case s.config.PriceBasic:
		return models.TierBasic
	default:
		return models.TierFree
	}
}

// firstPriceID returns the price id of the subscription's first item
func firstPriceID(sub *stripe.Subscription) string {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return ""
	}
	return item.Price.ID
}

func (s *Service) profileByID(ctx context.Context, id string) (*models.Profile, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrProfileNotFound
	}

	var profile models.Profile
	err = s.db.WithContext(ctx).Where("id = ?", uid).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

func (s *Service) profileByEmail(ctx context.Context, email string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

func (s *Service) profileByCustomerID(ctx context.Context, customerID string) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.WithContext(ctx).Where("stripe_customer_id = ?", customerID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

// profileForCheckout matches by embedded user-id metadata, then by email
func (s *Service) profileForCheckout(ctx context.Context, sess *stripe.CheckoutSession) (*models.Profile, error) {
	if userID, ok := sess.Metadata["user_id"]; ok && userID != "" {
		profile, err := s.profileByID(ctx, userID)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
	}

	email := ""
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	if email == "" {
		email = sess.CustomerEmail
	}
	if email == "" {
		return nil, ErrProfileNotFound
	}
	return s.profileByEmail(ctx, email)
}

// profileForSubscription matches by stored customer id, then by metadata
func (s *Service) profileForSubscription(ctx context.Context, sub *stripe.Subscription) (*models.Profile, error) {
	if sub.Customer != nil && sub.Customer.ID != "" {
		profile, err := s.profileByCustomerID(ctx, sub.Customer.ID)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
	}

	if userID, ok := sub.Metadata["user_id"]; ok && userID != "" {
		return s.profileByID(ctx, userID)
	}
	return nil, ErrProfileNotFound
}

// GetPricing returns pricing information for all tiers
func (s *Service) GetPricing() *models.PricingResponse {
	return &models.PricingResponse{
		Tiers: []models.PricingTier{
			{
				Name:        models.TierFree,
				Price:       0,
				TokenLimit:  40,
				Description: "Try out jingle generation",
				Features: []string{
					"40 tokens per month",
					"Lyrics generation",
					"Study set organizer",
				},
			},
			{
				Name:        models.TierBasic,
				Price:       5,
				TokenLimit:  400,
				Description: "For regular studying",
				Features: []string{
					"400 tokens per month",
					"Lyrics and audio generation",
					"All genres",
					"Email support",
				},
			},
			{
				Name:        models.TierPremium,
				Price:       12,
				TokenLimit:  models.UnlimitedTokens,
				Description: "For serious studying",
				Features: []string{
					"Unlimited generation",
					"Full study set audio stitching",
					"Priority support",
				},
			},
		},
	}
}
