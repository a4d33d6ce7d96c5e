package jobs

import (
	"context"
	"time"

	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
)

// UpdateAllLiabilities reconciles fee liabilities for every member. One
// member failing does not stop the batch; each member's reconciliation is
// still all-or-nothing on its own.
func (jr *JobRunner) UpdateAllLiabilities() {
	jr.runWithRecovery("UpdateAllLiabilities", func() {
		ctx := context.Background()

		members, err := jr.repos.Members.List(ctx)
		if err != nil {
			logger.Error("Failed to list members", "error", err)
			return
		}

		var failed int
		for _, member := range members {
			if err := jr.services.Liabilities.UpdateLiabilities(ctx, member.ID); err != nil {
				logger.Error("Failed to update liabilities for member",
					"member_id", member.ID,
					"member_number", member.Number,
					"error", err)
				failed++
			}
		}

		logger.Info("Updated member liabilities",
			"total_members", len(members),
			"failed", failed)
	})
}

// TakeBalanceSnapshots creates a MemberBalance for the previous month for
// every member with a non-zero net position in that month.
func (jr *JobRunner) TakeBalanceSnapshots() {
	jr.runWithRecovery("TakeBalanceSnapshots", func() {
		ctx := context.Background()

		now := domain.Date(time.Now())
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start := domain.AddMonths(firstOfThisMonth, -1)
		end := firstOfThisMonth.Add(-time.Nanosecond)

		members, err := jr.repos.Members.List(ctx)
		if err != nil {
			logger.Error("Failed to list members", "error", err)
			return
		}

		var created, failed int
		for _, member := range members {
			balance, err := jr.services.Liabilities.CreateBalance(ctx, member.ID, start, end, false)
			if err != nil {
				logger.Error("Failed to snapshot balance for member",
					"member_id", member.ID,
					"error", err)
				failed++
				continue
			}
			if balance != nil {
				created++
			}
		}

		logger.Info("Balance snapshots taken",
			"period_start", start.Format("2006-01-02"),
			"created", created,
			"failed", failed)
	})
}

// ReportStatuteBarredDebt logs every member whose outstanding fees have
// become time-barred under the configured liability interval.
func (jr *JobRunner) ReportStatuteBarredDebt() {
	jr.runWithRecovery("ReportStatuteBarredDebt", func() {
		ctx := context.Background()

		members, err := jr.repos.Members.List(ctx)
		if err != nil {
			logger.Error("Failed to list members", "error", err)
			return
		}

		var affected int
		for _, member := range members {
			barred, err := jr.services.Liabilities.StatuteBarredDebt(ctx, member.ID, 0)
			if err != nil {
				logger.Error("Failed to compute statute-barred debt",
					"member_id", member.ID,
					"error", err)
				continue
			}
			if barred.IsPositive() {
				logger.Warn("Member has statute-barred debt",
					"member_id", member.ID,
					"member_number", member.Number,
					"amount", barred.StringFixed(2))
				affected++
			}
		}

		logger.Info("Statute-barred debt report completed",
			"total_members", len(members),
			"members_affected", affected)
	})
}
