package jobs

import (
	"context"
	"time"

	"affiliate-network-backend/internal/logger"
)

// ExpireInvites marks invited or confirmed invites past their expiry as expired
func (jr *JobRunner) ExpireInvites() {
	jr.runWithRecovery("ExpireInvites", func(ctx context.Context) {
		n, err := jr.services.Invites.ExpireStale(ctx)
		if err != nil {
			logger.Error("Failed to expire invites", "error", err)
			return
		}
		logger.Info("Expired stale invites", "count", n)
	})
}

// ApproveCommissions approves pending commissions older than the configured
// holding period. A negative period disables the job.
func (jr *JobRunner) ApproveCommissions() {
	jr.runWithRecovery("ApproveCommissions", func(ctx context.Context) {
		days := jr.config.Commission.AutoApproveAfterDays
		if days < 0 {
			logger.Info("Commission auto-approval is disabled")
			return
		}

		n, err := jr.services.Commissions.ApproveOlderThan(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			logger.Error("Failed to approve commissions", "error", err)
			return
		}
		logger.Info("Approved pending commissions", "count", n, "olderThanDays", days)
	})
}
