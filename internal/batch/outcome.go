package batch

import "time"

// Status is the terminal state of a transfer.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// TransferOutcome records what happened to one recipient. BlockNumber is nil when
// the transfer was broadcast but its receipt could not be read.
type TransferOutcome struct {
	Recipient   string    `json:"recipient"`
	Amount      string    `json:"amount"`
	Status      Status    `json:"status"`
	TxHash      string    `json:"txHash,omitempty"`
	Nonce       *uint64   `json:"nonce,omitempty"`
	BlockNumber *uint64   `json:"blockNumber,omitempty"`
	GasUsed     *uint64   `json:"gasUsed,omitempty"`
	GasCost     string    `json:"gasCost,omitempty"` // native units
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
	Timestamp   time.Time `json:"timestamp"`
}

// Run is everything a batch run produced, including partial progress.
type Run struct {
	ID         string
	Sender     string
	Token      string
	Decimals   int
	DryRun     bool
	Recipients int
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []TransferOutcome
}

// Failed returns the failed outcomes in the order they were recorded.
func (r *Run) Failed() []TransferOutcome {
	var failed []TransferOutcome
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusFailed {
			failed = append(failed, outcome)
		}
	}

	return failed
}

// Successful returns the successful outcomes in the order they were recorded.
func (r *Run) Successful() []TransferOutcome {
	var successful []TransferOutcome
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusSuccess {
			successful = append(successful, outcome)
		}
	}

	return successful
}
