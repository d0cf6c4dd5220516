package tokens

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/noomo-ai/noomo-backend/pkg/models"
	"gorm.io/gorm"
)

var (
	// ErrProfileNotFound is returned when no profile matches the user id
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInsufficientTokens is returned when the balance is already zero
	ErrInsufficientTokens = errors.New("insufficient tokens")
)

// Ledger manages per-profile generation token balances
type Ledger struct {
	db             *gorm.DB
	allowanceFree  int
	allowanceBasic int
}

// NewLedger creates a token ledger with per-tier monthly allowances
func NewLedger(db *gorm.DB, allowanceFree, allowanceBasic int) *Ledger {
	return &Ledger{
		db:             db,
		allowanceFree:  allowanceFree,
		allowanceBasic: allowanceBasic,
	}
}

// Deduct charges one token from the profile. Premium profiles are never
// charged and always report the unlimited sentinel. The decrement is a single
// conditional UPDATE so concurrent deductions can never push the balance
// below zero.
func (l *Ledger) Deduct(ctx context.Context, userID string) (*models.DeductTokenResponse, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrProfileNotFound
	}

	var profile models.Profile
	err = l.db.WithContext(ctx).Where("id = ?", uid).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if profile.IsUnlimited() {
		return &models.DeductTokenResponse{
			Success:         true,
			TokensRemaining: models.UnlimitedTokens,
			Unlimited:       true,
		}, nil
	}

	res := l.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ? AND current_tokens > 0", uid).
		Update("current_tokens", gorm.Expr("current_tokens - 1"))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to deduct token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientTokens
	}

	var remaining int
	err = l.db.WithContext(ctx).Model(&models.Profile{}).
		Where("id = ?", uid).
		Select("current_tokens").Scan(&remaining).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	return &models.DeductTokenResponse{
		Success:         true,
		TokensRemaining: remaining,
	}, nil
}

// Balance reports the profile's current token balance. Premium profiles
// report the unlimited sentinel regardless of the stored count.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrProfileNotFound
	}

	var profile models.Profile
	err = l.db.WithContext(ctx).Where("id = ?", uid).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load profile: %w", err)
	}

	if profile.IsUnlimited() {
		return models.UnlimitedTokens, nil
	}
	return profile.CurrentTokens, nil
}

// RefillAll resets every non-premium profile's balance to its tier allowance.
// Runs on the monthly refresh schedule.
func (l *Ledger) RefillAll(ctx context.Context) error {
	now := time.Now()

	res := l.db.WithContext(ctx).Model(&models.Profile{}).
		Where("subscription_tier = ?", models.TierFree).
		Updates(map[string]any{
			"current_tokens":      l.allowanceFree,
			"tokens_refreshed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to refill free profiles: %w", res.Error)
	}
	freeCount := res.RowsAffected

	res = l.db.WithContext(ctx).Model(&models.Profile{}).
		Where("subscription_tier = ?", models.TierBasic).
		Updates(map[string]any{
			"current_tokens":      l.allowanceBasic,
			"tokens_refreshed_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to refill basic profiles: %w", res.Error)
	}

	log.Printf("🔄 Token refill complete: %d free, %d basic profiles", freeCount, res.RowsAffected)
	return nil
}
