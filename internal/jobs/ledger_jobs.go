package jobs

import (
	"context"

	"clubledger-backend/internal/logger"
)

// ReportUnbalancedTransactions logs every transaction whose bookings do not
// sum to zero so bookkeepers can resolve them.
func (jr *JobRunner) ReportUnbalancedTransactions() {
	jr.runWithRecovery("ReportUnbalancedTransactions", func() {
		ctx := context.Background()

		txs, err := jr.services.Ledger.UnbalancedTransactions(ctx, 0)
		if err != nil {
			logger.Error("Failed to list unbalanced transactions", "error", err)
			return
		}

		for _, tx := range txs {
			logger.Warn("Unbalanced transaction",
				"transaction_id", tx.ID,
				"value_datetime", tx.ValueDatetime.Format("2006-01-02"),
				"memo", tx.FindMemo())
		}

		logger.Info("Unbalanced transaction report completed",
			"open_transactions", len(txs))
	})
}
