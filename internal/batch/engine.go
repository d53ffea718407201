package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	ctsbig "github.com/jrh3k5/walletops/internal/big"
	"github.com/jrh3k5/walletops/internal/metrics"
	"github.com/jrh3k5/walletops/internal/retry"
	"github.com/shopspring/decimal"
)

const nativeDecimals = 18

// Engine sends one token transfer per recipient from a single wallet. Transfers
// are strictly sequential because each one is assigned the next account nonce.
type Engine struct {
	chain   Chain
	policy  Policy
	retrier *retry.Executor
}

// NewEngine builds an Engine for the given chain and policy.
func NewEngine(chain Chain, policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid batch policy: %w", err)
	}

	retrier, err := retry.NewExecutor(policy.RetryPolicy())
	if err != nil {
		return nil, err
	}

	return &Engine{
		chain:   chain,
		policy:  policy,
		retrier: retrier,
	}, nil
}

// runState is the mutable state of one Execute call.
type runState struct {
	run   *Run
	nonce uint64
	batch int
}

// Execute validates the recipients, checks that the sender can afford the whole
// batch and then sends every transfer.
//
// The returned Run is never nil. Failures of individual transfers are recorded in
// it and do not stop the run. Problems found before anything is sent are returned
// as *ValidationError or *InsufficientBalanceError; a run that stops partway is
// returned with an *AbortError alongside the outcomes recorded so far.
func (e *Engine) Execute(ctx context.Context, recipients []Recipient) (*Run, error) {
	run := &Run{
		ID:         uuid.NewString(),
		Sender:     e.chain.Sender(),
		Token:      e.chain.Token(),
		DryRun:     e.policy.DryRun,
		Recipients: len(recipients),
		StartedAt:  time.Now().UTC(),
	}
	defer func() { run.FinishedAt = time.Now().UTC() }()

	validated, err := ValidateRecipients(recipients)
	if err != nil {
		return run, err
	}

	decimals, err := retry.Do(ctx, e.retrier, "token decimals lookup", func(ctx context.Context, _ int) (int, error) {
		return e.chain.TokenDecimals(ctx)
	})
	if err != nil {
		return run, fmt.Errorf("failed to read token decimals: %w", err)
	}
	run.Decimals = decimals

	amounts, err := baseUnitAmounts(validated, decimals)
	if err != nil {
		return run, err
	}

	if err := e.preflight(ctx, validated, amounts, decimals); err != nil {
		return run, err
	}

	state := &runState{run: run}
	for start := 0; start < len(validated); start += e.policy.BatchSize {
		end := min(start+e.policy.BatchSize, len(validated))

		if start > 0 && !e.policy.DryRun {
			if err := retry.Sleep(ctx, e.policy.BatchDelay); err != nil {
				return run, e.abort(state, len(validated), err)
			}
		}

		if err := e.executeBatch(ctx, state, validated[start:end], amounts[start:end]); err != nil {
			return run, e.abort(state, len(validated), err)
		}
		state.batch++
	}

	successful := len(run.Successful())
	slog.InfoContext(
		ctx,
		fmt.Sprintf("Batch run %s finished: %d succeeded, %d failed", run.ID, successful, len(run.Outcomes)-successful),
		"dryRun", run.DryRun,
	)

	return run, nil
}

func (e *Engine) abort(state *runState, total int, err error) error {
	processed := len(state.run.Outcomes)

	slog.Error(
		fmt.Sprintf("Aborting batch run %s in batch %d", state.run.ID, state.batch+1),
		"processed", processed,
		"error", err,
	)

	return &AbortError{
		Err:       err,
		Processed: processed,
		Remaining: total - processed,
	}
}

func baseUnitAmounts(recipients []Recipient, decimals int) ([]*big.Int, error) {
	var problems []string
	amounts := make([]*big.Int, len(recipients))
	for i, recipient := range recipients {
		parsed, err := ctsbig.ParseAmount(recipient.Amount)
		if err == nil {
			amounts[i], err = ctsbig.ToBaseUnits(parsed, decimals)
		}

		if err != nil {
			problems = append(problems, fmt.Sprintf("recipient %d (%s): %v", i+1, recipient.Address, err))
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}

	return amounts, nil
}

// preflight fails if the sender cannot cover the token total or the estimated gas of the whole batch.
func (e *Engine) preflight(ctx context.Context, recipients []Recipient, amounts []*big.Int, decimals int) error {
	sender := e.chain.Sender()

	total := new(big.Int)
	for _, amount := range amounts {
		total.Add(total, amount)
	}

	tokenBalance, err := retry.Do(ctx, e.retrier, "token balance lookup", func(ctx context.Context, _ int) (*big.Int, error) {
		return e.chain.TokenBalance(ctx, sender)
	})
	if err != nil {
		return fmt.Errorf("failed to read token balance: %w", err)
	}

	if tokenBalance.Cmp(total) < 0 {
		return &InsufficientBalanceError{
			Asset:     "token",
			Required:  ctsbig.FromBaseUnits(total, decimals).String(),
			Available: ctsbig.FromBaseUnits(tokenBalance, decimals).String(),
		}
	}

	gasPerTransfer, err := retry.Do(ctx, e.retrier, "gas estimate", func(ctx context.Context, _ int) (uint64, error) {
		return e.chain.EstimateTransferGas(ctx, recipients[0].Address, amounts[0])
	})
	if err != nil {
		return fmt.Errorf("failed to estimate transfer gas: %w", err)
	}

	gasPrice, err := retry.Do(ctx, e.retrier, "gas price lookup", func(ctx context.Context, _ int) (*big.Int, error) {
		return e.chain.GasPrice(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to read gas price: %w", err)
	}

	requiredGas := decimal.NewFromBigInt(new(big.Int).SetUint64(gasPerTransfer), 0).
		Mul(decimal.NewFromInt(int64(len(recipients)))).
		Mul(decimal.NewFromBigInt(gasPrice, 0)).
		Mul(decimal.NewFromFloat(e.policy.GasMultiplier)).
		Ceil().
		BigInt()

	nativeBalance, err := retry.Do(ctx, e.retrier, "native balance lookup", func(ctx context.Context, _ int) (*big.Int, error) {
		return e.chain.NativeBalance(ctx, sender)
	})
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}

	if nativeBalance.Cmp(requiredGas) < 0 {
		return &InsufficientBalanceError{
			Asset:     "native",
			Required:  ctsbig.FromBaseUnits(requiredGas, nativeDecimals).String(),
			Available: ctsbig.FromBaseUnits(nativeBalance, nativeDecimals).String(),
		}
	}

	slog.InfoContext(
		ctx,
		fmt.Sprintf("Preflight passed for %d recipients", len(recipients)),
		"tokenTotal", ctsbig.FromBaseUnits(total, decimals).String(),
		"estimatedGasCost", ctsbig.FromBaseUnits(requiredGas, nativeDecimals).String(),
	)

	return nil
}

func (e *Engine) executeBatch(ctx context.Context, state *runState, recipients []Recipient, amounts []*big.Int) error {
	// nothing reaches the chain in a dry run, so its nonce only needs reading once
	if !e.policy.DryRun || state.batch == 0 {
		nonce, err := retry.Do(ctx, e.retrier, "nonce lookup", func(ctx context.Context, _ int) (uint64, error) {
			return e.chain.PendingNonce(ctx, e.chain.Sender())
		})
		if err != nil {
			return fmt.Errorf("failed to read pending nonce: %w", err)
		}
		state.nonce = nonce
	}

	slog.InfoContext(
		ctx,
		fmt.Sprintf("Starting batch %d with %d recipients at nonce %d", state.batch+1, len(recipients), state.nonce),
	)

	for i, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}

		var outcome TransferOutcome
		var rateLimited bool
		if e.policy.DryRun {
			outcome = e.simulate(ctx, state, recipient, amounts[i])
		} else {
			outcome, rateLimited = e.transfer(ctx, state, recipient, amounts[i])
		}

		state.run.Outcomes = append(state.run.Outcomes, outcome)
		metrics.TransfersTotal.WithLabelValues(string(outcome.Status), strconv.FormatBool(e.policy.DryRun)).Inc()

		if outcome.Status == StatusSuccess {
			slog.InfoContext(ctx, fmt.Sprintf("Sent %s to %s", outcome.Amount, outcome.Recipient), "txHash", outcome.TxHash)
		} else {
			slog.WarnContext(ctx, fmt.Sprintf("Transfer of %s to %s failed", outcome.Amount, outcome.Recipient), "error", outcome.Error)
		}

		if e.policy.DryRun {
			continue
		}

		if rateLimited {
			slog.WarnContext(ctx, fmt.Sprintf("Provider is rate limiting; cooling down for %s", e.policy.RateLimitCooldown))
			metrics.RateLimitCooldowns.Inc()
			if err := retry.Sleep(ctx, e.policy.RateLimitCooldown); err != nil {
				return err
			}
		}

		if err := retry.Sleep(ctx, e.policy.TransferDelay); err != nil {
			return err
		}
	}

	return nil
}

// simulate records what a transfer would do without broadcasting it.
func (e *Engine) simulate(ctx context.Context, state *runState, recipient Recipient, amount *big.Int) TransferOutcome {
	outcome := TransferOutcome{
		Recipient: recipient.Address,
		Amount:    recipient.Amount,
		Timestamp: time.Now().UTC(),
	}

	var attempts int
	_, err := retry.Do(ctx, e.retrier, "dry-run gas estimate", func(ctx context.Context, attempt int) (uint64, error) {
		attempts = attempt

		return e.chain.EstimateTransferGas(ctx, recipient.Address, amount)
	})
	outcome.Attempts = attempts

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()

		return outcome
	}

	nonce := state.nonce
	state.nonce++

	outcome.Status = StatusSuccess
	outcome.Nonce = &nonce
	outcome.TxHash = fmt.Sprintf("dry-run-%d", len(state.run.Outcomes)+1)

	return outcome
}

// transfer sends one transfer at the current nonce. The nonce only advances once
// the transaction has been accepted by the network. It also reports whether the
// provider rate limited any step.
func (e *Engine) transfer(ctx context.Context, state *runState, recipient Recipient, amount *big.Int) (TransferOutcome, bool) {
	nonce := state.nonce
	outcome := TransferOutcome{
		Recipient: recipient.Address,
		Amount:    recipient.Amount,
		Timestamp: time.Now().UTC(),
	}

	var attempts int
	var rateLimited bool
	// hash of a transfer whose broadcast failed after signing; the network may hold it
	var unsettledHash string
	label := fmt.Sprintf("transfer to %s", recipient.Address)
	txHash, err := retry.Do(ctx, e.retrier, label, func(ctx context.Context, attempt int) (string, error) {
		attempts = attempt

		if unsettledHash != "" {
			taken, err := e.nonceTaken(ctx, nonce)
			if err != nil {
				return "", err
			}
			if taken {
				slog.InfoContext(ctx, fmt.Sprintf("Nonce %d was taken by %s despite the failed broadcast; treating it as sent", nonce, unsettledHash))

				return unsettledHash, nil
			}
		}

		hash, err := e.broadcast(ctx, recipient.Address, amount, nonce)
		if err == nil {
			return hash, nil
		}

		if retry.IsRateLimited(err) {
			rateLimited = true
		}

		if unsettledHash != "" && isKnownTransaction(err) {
			slog.InfoContext(ctx, fmt.Sprintf("Network already holds %s; treating it as sent", unsettledHash), "error", err)

			return unsettledHash, nil
		}

		if hash != "" {
			unsettledHash = hash
		}

		return "", err
	})
	outcome.Attempts = attempts

	if err != nil {
		outcome.Status = StatusFailed
		outcome.Error = err.Error()

		return outcome, rateLimited
	}

	outcome.TxHash = txHash
	outcome.Nonce = &nonce

	waitCtx := ctx
	if e.policy.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.policy.ConfirmationTimeout)
		defer cancel()
	}

	var confirmAttempts int
	var confirmRateLimited bool
	receipt, err := retry.Do(waitCtx, e.retrier, "confirmation of "+txHash, func(ctx context.Context, attempt int) (*Receipt, error) {
		confirmAttempts = attempt

		receipt, err := e.chain.WaitForReceipt(ctx, txHash)
		if err != nil && retry.IsRateLimited(err) {
			// the network accepted the transaction; only the receipt is unknown
			slog.WarnContext(ctx, fmt.Sprintf("Rate limited while confirming %s; recording it as sent", txHash), "error", err)
			confirmRateLimited = true

			return nil, nil
		}

		return receipt, err
	})
	if confirmAttempts > 1 {
		outcome.Attempts += confirmAttempts - 1
	}

	switch {
	case err != nil:
		e.resyncNonce(ctx, state)
		outcome.Status = StatusFailed
		outcome.Error = fmt.Sprintf("failed to confirm transaction %s, which may still be mined: %v", txHash, err)

		return outcome, rateLimited
	case confirmRateLimited:
		state.nonce++
		outcome.Status = StatusSuccess

		return outcome, true
	}

	// a mined transaction consumes its nonce even if it reverted
	state.nonce++

	blockNumber := receipt.BlockNumber
	gasUsed := receipt.GasUsed
	outcome.BlockNumber = &blockNumber
	outcome.GasUsed = &gasUsed
	if receipt.EffectiveGasPrice != nil {
		cost := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), receipt.EffectiveGasPrice)
		outcome.GasCost = ctsbig.FromBaseUnits(cost, nativeDecimals).String()
	}

	if !receipt.Succeeded {
		outcome.Status = StatusFailed
		outcome.Error = fmt.Sprintf("transaction %s reverted in block %d", txHash, blockNumber)

		return outcome, rateLimited
	}

	outcome.Status = StatusSuccess

	return outcome, rateLimited
}

func (e *Engine) broadcast(ctx context.Context, to string, amount *big.Int, nonce uint64) (string, error) {
	gas, err := e.chain.EstimateTransferGas(ctx, to, amount)
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	gasPrice, err := e.chain.GasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read gas price: %w", err)
	}

	gasLimit := decimal.NewFromBigInt(new(big.Int).SetUint64(gas), 0).Mul(decimal.NewFromFloat(e.policy.GasMultiplier)).Ceil().IntPart()

	txHash, err := e.chain.SendTransfer(ctx, TransferRequest{
		To:       to,
		Amount:   amount,
		Nonce:    nonce,
		GasLimit: uint64(gasLimit),
		GasPrice: gasPrice,
	})
	if err != nil {
		return txHash, fmt.Errorf("failed to send transaction: %w", err)
	}

	return txHash, nil
}

// nonceTaken reports whether the network has accepted a transaction at nonce from the sender.
func (e *Engine) nonceTaken(ctx context.Context, nonce uint64) (bool, error) {
	pending, err := e.chain.PendingNonce(ctx, e.chain.Sender())
	if err != nil {
		return false, fmt.Errorf("failed to check whether nonce %d is taken: %w", nonce, err)
	}

	return pending > nonce, nil
}

var knownTransactionTokens = []string{
	"already known",
	"known transaction",
	"nonce too low",
	"replacement transaction underpriced",
}

// isKnownTransaction reports whether a broadcast was refused because the
// network already holds a transaction at the same nonce.
func isKnownTransaction(err error) bool {
	message := strings.ToLower(err.Error())
	for _, token := range knownTransactionTokens {
		if strings.Contains(message, token) {
			return true
		}
	}

	return false
}

// resyncNonce asks the network for the next nonce after a broadcast transaction
// could not be confirmed, since it may still be pending. If the network cannot be
// asked, the transaction is assumed to hold its nonce.
func (e *Engine) resyncNonce(ctx context.Context, state *runState) {
	nonce, err := e.chain.PendingNonce(ctx, e.chain.Sender())
	if err != nil {
		slog.WarnContext(ctx, "Unable to re-read pending nonce; assuming the unconfirmed transaction holds its nonce", "error", err)
		state.nonce++

		return
	}

	state.nonce = nonce
}

// IsPreflightError reports whether err stopped a run before anything was sent.
func IsPreflightError(err error) bool {
	var validationErr *ValidationError
	var balanceErr *InsufficientBalanceError

	return errors.As(err, &validationErr) || errors.As(err, &balanceErr)
}
