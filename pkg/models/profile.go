package models

import (
	"time"

	"github.com/google/uuid"
)

// Subscription tiers
const (
	TierFree    = "free"
	TierBasic   = "basic"
	TierPremium = "premium"
)

// UnlimitedTokens is the sentinel balance reported for premium profiles
const UnlimitedTokens = -1

// Profile represents one user row. Rows are created by the auth provider
// trigger; this service only mutates billing and token state.
type Profile struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email                string     `gorm:"type:text;not null;uniqueIndex" json:"email"`
	DisplayName          *string    `gorm:"column:display_name" json:"display_name,omitempty"`
	SubscriptionTier     string     `gorm:"column:subscription_tier;not null;default:free" json:"subscription_tier"`
	StripeCustomerID     *string    `gorm:"column:stripe_customer_id;index" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `gorm:"column:stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	CurrentTokens        int        `gorm:"column:current_tokens;not null;default:40" json:"current_tokens"`
	TokensRefreshedAt    *time.Time `gorm:"column:tokens_refreshed_at" json:"tokens_refreshed_at,omitempty"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName overrides the default pluralization
func (Profile) TableName() string {
	return "profiles"
}

// IsUnlimited reports whether the profile's tier grants unlimited generation
func (p *Profile) IsUnlimited() bool {
	return p.SubscriptionTier == TierPremium
}

// IsValidTier reports whether s names a known subscription tier
func IsValidTier(s string) bool {
	return s == TierFree || s == TierBasic || s == TierPremium
}
