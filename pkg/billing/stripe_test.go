package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/noomo-ai/noomo-backend/pkg/metrics"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Profile{}, &models.StudySet{}))
	return db
}

func newTestService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()

	return NewService(db, &StripeConfig{
		SecretKey:           "sk_test_dummy",
		WebhookSecret:       testWebhookSecret,
		PricePremium:        "price_premium_test",
		PriceBasic:          "price_basic_test",
		SuccessURL:          "https://noomo.test/success",
		CancelURL:           "https://noomo.test/cancel",
		TokenAllowanceBasic: 400,
	})
}

func seedProfile(t *testing.T, db *gorm.DB, tier string, customerID string) *models.Profile {
	t.Helper()

	profile := &models.Profile{
		ID:               uuid.New(),
		Email:            fmt.Sprintf("%s@noomo.test", uuid.NewString()[:8]),
		SubscriptionTier: tier,
		CurrentTokens:    40,
	}
	if customerID != "" {
		profile.StripeCustomerID = &customerID
	}
	require.NoError(t, db.Create(profile).Error)
	return profile
}

// signPayload produces a Stripe-Signature header value for the payload
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeSubscriptionAPI struct {
	subs   map[string]*stripe.Subscription
	active []*stripe.Subscription
	getErr error
}

func (f *fakeSubscriptionAPI) Get(_ context.Context, id string) (*stripe.Subscription, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, &stripe.Error{Code: stripe.ErrorCodeResourceMissing}
	}
	return sub, nil
}

func (f *fakeSubscriptionAPI) ListActive(_ context.Context, _ string, _ int64) ([]*stripe.Subscription, error) {
	return f.active, nil
}

type fakeGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: map[string]bool{}}
}

func (g *fakeGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[eventID] {
		return true, nil
	}
	g.seen[eventID] = true
	return false, nil
}

func (g *fakeGuard) Delete(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, eventID)
	return nil
}

func activeSubscription(id, customerID, priceID string) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       id,
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: customerID},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{ID: priceID}},
			},
		},
	}
}

func subscriptionEventPayload(eventID, eventType, subID, customerID, priceID, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"api_version": "2023-10-16",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "subscription",
				"customer": %q,
				"status": %q,
				"items": {
					"object": "list",
					"data": [
						{"id": "si_1", "object": "subscription_item", "price": {"id": %q, "object": "price"}}
					]
				}
			}
		}
	}`, eventID, eventType, subID, customerID, status, priceID))
}

// Expandable fields (customer, subscription) arrive as bare id strings in
// webhook payloads, matching Stripe's unexpanded serialization.
func checkoutEventPayload(eventID, sessID, customerID, subID, userID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"api_version": "2023-10-16",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": %q,
				"object": "checkout.session",
				"customer": %q,
				"subscription": %q,
				"metadata": {"user_id": %q}
			}
		}
	}`, eventID, sessID, customerID, subID, userID))
}

func invoiceEventPayload(eventID, eventType, invoiceID, customerID, subID string) []byte {
	sub := "null"
	if subID != "" {
		sub = fmt.Sprintf("%q", subID)
	}
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"object": "event",
		"api_version": "2023-10-16",
		"type": %q,
		"data": {
			"object": {
				"id": %q,
				"object": "invoice",
				"customer": %q,
				"subscription": %s
			}
		}
	}`, eventID, eventType, invoiceID, customerID, sub))
}

func TestResolveTierFromPrice(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	tests := []struct {
		name    string
		priceID string
		want    string
	}{
		{"premium price", "price_premium_test", models.TierPremium},
		{"basic price", "price_basic_test", models.TierBasic},
		{"unknown price", "price_other", models.TierFree},
		{"empty price", "", models.TierFree},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.resolveTierFromPrice(tt.priceID))
		})
	}
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	payload := subscriptionEventPayload("evt_bad", "customer.subscription.updated", "sub_1", "cus_1", "price_premium_test", "active")
	err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.Error(t, err)
}

func TestHandleWebhookSubscriptionUpdatedSetsPremium(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierFree, "cus_upd")

	payload := subscriptionEventPayload("evt_upd_1", "customer.subscription.updated", "sub_upd", "cus_upd", "price_premium_test", "active")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierPremium, got.SubscriptionTier)
	require.NotNil(t, got.StripeSubscriptionID)
	assert.Equal(t, "sub_upd", *got.StripeSubscriptionID)
}

func TestHandleWebhookInactiveSubscriptionForcesFree(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierPremium, "cus_lapsed")

	payload := subscriptionEventPayload("evt_lapse_1", "customer.subscription.updated", "sub_lapse", "cus_lapsed", "price_premium_test", "past_due")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierFree, got.SubscriptionTier)
}

func TestHandleWebhookSubscriptionDeletedDowngrades(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierPremium, "cus_del")
	subID := "sub_del"
	require.NoError(t, db.Model(profile).Update("stripe_subscription_id", subID).Error)

	payload := subscriptionEventPayload("evt_del_1", "customer.subscription.deleted", subID, "cus_del", "price_premium_test", "canceled")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierFree, got.SubscriptionTier)
	assert.Nil(t, got.StripeSubscriptionID)
}

func TestHandleWebhookCheckoutCompletedGrantsBasicAllowance(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierFree, "")
	svc.SetSubscriptionAPI(&fakeSubscriptionAPI{subs: map[string]*stripe.Subscription{
		"sub_co": activeSubscription("sub_co", "cus_co", "price_basic_test"),
	}})

	payload := checkoutEventPayload("evt_co_1", "cs_co_1", "cus_co", "sub_co", profile.ID.String())
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierBasic, got.SubscriptionTier)
	assert.Equal(t, 400, got.CurrentTokens, "basic checkout grants the monthly allowance")
	require.NotNil(t, got.StripeCustomerID)
	assert.Equal(t, "cus_co", *got.StripeCustomerID)
	require.NotNil(t, got.StripeSubscriptionID)
	assert.Equal(t, "sub_co", *got.StripeSubscriptionID)
}

func TestHandleWebhookCheckoutCompletedPremiumKeepsTokens(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierFree, "")
	svc.SetSubscriptionAPI(&fakeSubscriptionAPI{subs: map[string]*stripe.Subscription{
		"sub_co_p": activeSubscription("sub_co_p", "cus_co_p", "price_premium_test"),
	}})

	payload := checkoutEventPayload("evt_co_2", "cs_co_2", "cus_co_p", "sub_co_p", profile.ID.String())
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	// Premium is unlimited, so the stored balance stays untouched
	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierPremium, got.SubscriptionTier)
	assert.Equal(t, 40, got.CurrentTokens)
}

func TestHandleWebhookInvoicePaidRefreshesTier(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierFree, "cus_inv")
	svc.SetSubscriptionAPI(&fakeSubscriptionAPI{subs: map[string]*stripe.Subscription{
		"sub_inv": activeSubscription("sub_inv", "cus_inv", "price_premium_test"),
	}})

	payload := invoiceEventPayload("evt_inv_1", "invoice.paid", "in_1", "cus_inv", "sub_inv")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierPremium, got.SubscriptionTier)
	require.NotNil(t, got.StripeSubscriptionID)
	assert.Equal(t, "sub_inv", *got.StripeSubscriptionID)
}

func TestHandleWebhookInvoicePaymentFailedDowngrades(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierPremium, "cus_fail")

	payload := invoiceEventPayload("evt_fail_1", "invoice.payment_failed", "in_2", "cus_fail", "")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	require.NoError(t, err)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierFree, got.SubscriptionTier)
}

func TestHandleWebhookDuplicateDeliverySkipped(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	svc.SetEventGuard(newFakeGuard())
	profile := seedProfile(t, db, models.TierFree, "cus_dup")

	payload := subscriptionEventPayload("evt_dup_1", "customer.subscription.updated", "sub_dup", "cus_dup", "price_premium_test", "active")
	sig := signPayload(payload, testWebhookSecret)

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	// Flip the profile back so a reprocessed duplicate would be visible
	require.NoError(t, db.Model(profile).Update("subscription_tier", models.TierFree).Error)

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierFree, got.SubscriptionTier, "duplicate delivery must not reprocess")
}

func TestHandleWebhookRecordsMetrics(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	svc.SetEventGuard(newFakeGuard())
	m := metrics.New()
	svc.SetMetrics(m)
	seedProfile(t, db, models.TierFree, "cus_met")

	payload := subscriptionEventPayload("evt_met_1", "customer.subscription.updated", "sub_met", "cus_met", "price_premium_test", "active")
	sig := signPayload(payload, testWebhookSecret)

	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))
	require.NoError(t, svc.HandleWebhook(context.Background(), payload, sig))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEvents.WithLabelValues("customer.subscription.updated", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEvents.WithLabelValues("customer.subscription.updated", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionsActive.WithLabelValues(models.TierPremium)))
}

func TestHandleWebhookUnknownProfileIsNoop(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	payload := subscriptionEventPayload("evt_orphan", "customer.subscription.updated", "sub_orphan", "cus_missing", "price_premium_test", "active")
	err := svc.HandleWebhook(context.Background(), payload, signPayload(payload, testWebhookSecret))
	assert.NoError(t, err)
}

func TestSyncSubscriptionOverwritesStoredTier(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierPremium, "cus_sync")

	// Provider reports only an active basic subscription; the stale premium
	// tier must be overwritten.
	svc.SetSubscriptionAPI(&fakeSubscriptionAPI{
		active: []*stripe.Subscription{activeSubscription("sub_sync", "cus_sync", "price_basic_test")},
	})

	resp, err := svc.SyncSubscription(context.Background(), profile.Email)
	require.NoError(t, err)
	assert.Equal(t, models.TierBasic, resp.Tier)
	assert.Equal(t, "sub_sync", resp.SubscriptionID)

	var got models.Profile
	require.NoError(t, db.First(&got, "id = ?", profile.ID).Error)
	assert.Equal(t, models.TierBasic, got.SubscriptionTier)
}

func TestSyncSubscriptionNoActiveSubscriptionsMeansFree(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierPremium, "cus_sync_none")
	svc.SetSubscriptionAPI(&fakeSubscriptionAPI{})

	resp, err := svc.SyncSubscription(context.Background(), profile.Email)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, resp.Tier)
	assert.Empty(t, resp.SubscriptionID)
}

func TestSyncSubscriptionWithoutCustomer(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierFree, "")

	_, err := svc.SyncSubscription(context.Background(), profile.Email)
	assert.ErrorIs(t, err, ErrNoBillingCustomer)
}

func TestSyncSubscriptionUnknownProfile(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	_, err := svc.SyncSubscription(context.Background(), "nobody@noomo.test")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestValidateSubscription(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)

	canceled := activeSubscription("sub_canceled", "cus_v", "price_basic_test")
	canceled.Status = stripe.SubscriptionStatusCanceled

	svc.SetSubscriptionAPI(&fakeSubscriptionAPI{subs: map[string]*stripe.Subscription{
		"sub_active":   activeSubscription("sub_active", "cus_v", "price_premium_test"),
		"sub_canceled": canceled,
	}})

	resp, err := svc.ValidateSubscription(context.Background(), "sub_active")
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "active", resp.Status)

	resp, err = svc.ValidateSubscription(context.Background(), "sub_canceled")
	require.NoError(t, err)
	assert.False(t, resp.Valid)

	resp, err = svc.ValidateSubscription(context.Background(), "sub_missing")
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, "not_found", resp.Status)
}

func TestCreatePortalSessionWithoutCustomer(t *testing.T) {
	db := setupTestDB(t)
	svc := newTestService(t, db)
	profile := seedProfile(t, db, models.TierFree, "")

	_, err := svc.CreatePortalSession(context.Background(), profile.Email, "https://noomo.test/account")
	assert.ErrorIs(t, err, ErrNoBillingCustomer)
}

func TestGetPricing(t *testing.T) {
	svc := newTestService(t, setupTestDB(t))

	pricing := svc.GetPricing()
	require.Len(t, pricing.Tiers, 3)
	assert.Equal(t, models.TierFree, pricing.Tiers[0].Name)
	assert.Equal(t, models.TierPremium, pricing.Tiers[2].Name)
	assert.Equal(t, models.UnlimitedTokens, pricing.Tiers[2].TokenLimit)
	assert.Equal(t, 0, pricing.Tiers[0].Price)
}
