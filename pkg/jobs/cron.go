package jobs

import (
	"context"
	"log"
	"time"

	"github.com/noomo-ai/noomo-backend/pkg/tokens"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// CronManager manages scheduled jobs
type CronManager struct {
	cron   *cron.Cron
	db     *gorm.DB
	ledger *tokens.Ledger
	logger *log.Logger
}

// NewCronManager creates a new cron manager
func NewCronManager(db *gorm.DB, ledger *tokens.Ledger, logger *log.Logger) *CronManager {
	if logger == nil {
		logger = log.Default()
	}

	return &CronManager{
		cron:   cron.New(),
		db:     db,
		ledger: ledger,
		logger: logger,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	cm.logger.Println("Setting up cron jobs...")

	// Monthly on the 1st at midnight: refill token allowances
	_, err := cm.cron.AddFunc("0 0 1 * *", func() {
		cm.logger.Println("🕐 Running monthly token refill job...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		if err := cm.ledger.RefillAll(ctx); err != nil {
			cm.logger.Printf("❌ Token refill failed: %v", err)
			return
		}

		cm.logger.Println("✅ Monthly token refill completed")
	})

	if err != nil {
		return err
	}

	// Daily at 4 AM: log subscription tier statistics
	_, err = cm.cron.AddFunc("0 4 * * *", func() {
		cm.logger.Println("🕐 Logging tier statistics...")

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
		defer cancel()

		stats, err := cm.tierStats(ctx)
		if err != nil {
			cm.logger.Printf("❌ Failed to get tier stats: %v", err)
			return
		}

		cm.logger.Printf("📊 Subscription Tiers:")
		for _, row := range stats {
			cm.logger.Printf("  %s: %d profiles", row.Tier, row.Count)
		}
	})

	if err != nil {
		return err
	}

	cm.logger.Println("✅ Cron jobs configured successfully")
	cm.logger.Println("  - Monthly on the 1st at midnight: Refill token allowances")
	cm.logger.Println("  - Daily at 4 AM: Log tier statistics")

	return nil
}

type tierCount struct {
	Tier  string
	Count int64
}

func (cm *CronManager) tierStats(ctx context.Context) ([]tierCount, error) {
	var rows []tierCount
	err := cm.db.WithContext(ctx).
		Table("profiles").
		Select("subscription_tier AS tier, COUNT(*) AS count").
		Group("subscription_tier").
		Order("subscription_tier").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Println("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the cron scheduler
func (cm *CronManager) Stop() {
	cm.logger.Println("🛑 Stopping cron scheduler...")
	cm.cron.Stop()
}
