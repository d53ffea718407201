package report

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jrh3k5/walletops/internal/batch"
	"github.com/shopspring/decimal"
)

// BatchReport is the persisted record of a batch run.
type BatchReport struct {
	Summary   Summary                 `json:"summary"`
	Transfers []batch.TransferOutcome `json:"transfers"`
	Failed    []batch.TransferOutcome `json:"failed"`
	Metadata  Metadata                `json:"metadata"`
}

// Summary holds the totals of a run. Amounts are in whole units.
type Summary struct {
	Recipients   int    `json:"recipients"`
	Processed    int    `json:"processed"`
	Successful   int    `json:"successful"`
	Failed       int    `json:"failed"`
	TotalAmount  string `json:"totalAmount"`  // sent by successful transfers
	TotalGasCost string `json:"totalGasCost"` // native units, including reverted transfers
}

type Metadata struct {
	RunID      string    `json:"runId"`
	DryRun     bool      `json:"dryRun"`
	Network    string    `json:"network"`
	Sender     string    `json:"sender"`
	Token      string    `json:"token"`
	Decimals   int       `json:"decimals"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Aborted    string    `json:"aborted,omitempty"`
}

// Build summarizes a run. runErr is the error the run ended with, if any; it is
// recorded so that a report of partial progress says why it is partial.
func Build(run *batch.Run, network string, runErr error) *BatchReport {
	successful := run.Successful()
	failed := run.Failed()

	totalAmount := decimal.Zero
	for _, outcome := range successful {
		amount, err := decimal.NewFromString(outcome.Amount)
		if err != nil {
			slog.Warn(fmt.Sprintf("Leaving unparseable amount '%s' of %s out of the report total", outcome.Amount, outcome.Recipient))

			continue
		}
		totalAmount = totalAmount.Add(amount)
	}

	totalGasCost := decimal.Zero
	for _, outcome := range run.Outcomes {
		if outcome.GasCost == "" {
			continue
		}

		cost, err := decimal.NewFromString(outcome.GasCost)
		if err != nil {
			slog.Warn(fmt.Sprintf("Leaving unparseable gas cost '%s' of %s out of the report total", outcome.GasCost, outcome.Recipient))

			continue
		}
		totalGasCost = totalGasCost.Add(cost)
	}

	report := &BatchReport{
		Summary: Summary{
			Recipients:   run.Recipients,
			Processed:    len(run.Outcomes),
			Successful:   len(successful),
			Failed:       len(failed),
			TotalAmount:  totalAmount.String(),
			TotalGasCost: totalGasCost.String(),
		},
		Transfers: run.Outcomes,
		Failed:    failed,
		Metadata: Metadata{
			RunID:      run.ID,
			DryRun:     run.DryRun,
			Network:    network,
			Sender:     run.Sender,
			Token:      run.Token,
			Decimals:   run.Decimals,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		},
	}

	if report.Transfers == nil {
		report.Transfers = []batch.TransferOutcome{}
	}

	if report.Failed == nil {
		report.Failed = []batch.TransferOutcome{}
	}

	if runErr != nil {
		report.Metadata.Aborted = runErr.Error()
	}

	return report
}

// FailedTransfers turns failed outcomes into a recipient list that can be fed to a new run.
func FailedTransfers(outcomes []batch.TransferOutcome) []batch.Recipient {
	recipients := []batch.Recipient{}
	for _, outcome := range outcomes {
		if outcome.Status != batch.StatusFailed {
			continue
		}

		recipients = append(recipients, batch.Recipient{
			Address: outcome.Recipient,
			Amount:  outcome.Amount,
		})
	}

	return recipients
}
