package hybrid

import (
	"strings"

	"tokenlens/internal/models"
)

// Summarize aggregates one wallet's activity over an already-merged transfer
// list. First and last transfer follow list order, which the merge step made
// chronological. Transfers not touching the wallet count toward the total
// but not the sent/received splits.
func Summarize(transfers []models.Transfer, wallet string) models.WalletSummary {
	wallet = strings.ToLower(wallet)
	summary := models.WalletSummary{Wallet: wallet}
	counterparties := make(map[string]bool)

	for _, transfer := range transfers {
		switch wallet {
		case transfer.To:
			summary.ReceivedCount++
			summary.TotalReceived += transfer.Value
			counterparties[transfer.From] = true
		case transfer.From:
			summary.SentCount++
			summary.TotalSent += transfer.Value
			counterparties[transfer.To] = true
		}

		summary.TotalTransfers++

		if summary.FirstTransfer.IsZero() {
			summary.FirstTransfer = transfer.Timestamp
		}
		summary.LastTransfer = transfer.Timestamp
	}

	summary.NetChange = summary.TotalReceived - summary.TotalSent
	summary.UniqueCounterparties = len(counterparties)

	return summary
}
