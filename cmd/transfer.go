package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jrh3k5/walletops/internal/batch"
	"github.com/jrh3k5/walletops/internal/chain/evm"
	"github.com/jrh3k5/walletops/internal/report"
	"github.com/manifoldco/promptui"
)

var errUserCanceled = errors.New("user canceled operation")

func runTransfer(ctx context.Context, httpClient *http.Client, args []string) error {
	var common commonFlags
	var (
		recipientsPath string
		dryRun         bool
		assumeYes      bool
		tokenAddress   string
		batchSize      int
	)

	flags := flag.NewFlagSet("transfer", flag.ContinueOnError)
	common.register(flags)
	flags.StringVar(&recipientsPath, "recipients", "", "JSON or CSV file of recipients and amounts (required)")
	flags.BoolVar(&dryRun, "dry-run", false, "estimate every transfer without sending anything")
	flags.BoolVar(&assumeYes, "yes", false, "do not ask for confirmation before sending")
	flags.StringVar(&tokenAddress, "token", "", "token contract to send; overrides TOKEN_ADDRESS")
	flags.IntVar(&batchSize, "batch-size", 0, "recipients per batch; overrides BATCH_SIZE")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if recipientsPath == "" {
		return errors.New("--recipients is required")
	}

	settings, stopMetrics, err := common.setup(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	if tokenAddress != "" {
		settings.Chain.TokenAddress = tokenAddress
	}

	if batchSize > 0 {
		settings.Batch.BatchSize = batchSize
	}
	settings.Batch.DryRun = dryRun

	if err := settings.RequireChain(); err != nil {
		return err
	}

	recipients, err := readRecipients(recipientsPath)
	if err != nil {
		return err
	}

	chain, err := evm.Dial(ctx, httpClient, evm.Config{
		RPCURL:       settings.Chain.RPCURL,
		PrivateKey:   settings.Chain.PrivateKey,
		TokenAddress: settings.Chain.TokenAddress,
		ChainID:      settings.Chain.ChainID,
	})
	if err != nil {
		return err
	}
	defer chain.Close()

	engine, err := batch.NewEngine(chain, settings.Batch)
	if err != nil {
		return err
	}

	if !dryRun && !assumeYes {
		if err := confirmTransfer(len(recipients), chain.Token(), settings.Network); err != nil {
			return err
		}
	}

	run, runErr := engine.Execute(ctx, recipients)

	// a validation or balance problem means nothing was attempted, so there is nothing to report
	if batch.IsPreflightError(runErr) {
		return runErr
	}

	built := report.Build(run, settings.Network, runErr)
	saved, saveErr := report.NewAssembler(settings.OutputDir).Save(built)

	slog.InfoContext(
		ctx,
		fmt.Sprintf("%d of %d transfers succeeded", built.Summary.Successful, built.Summary.Recipients),
		"failed", built.Summary.Failed,
		"totalAmount", built.Summary.TotalAmount,
		"totalGasCost", built.Summary.TotalGasCost,
		"dryRun", built.Metadata.DryRun,
	)

	if saved != nil && saved.FailedPath != "" {
		slog.WarnContext(ctx, fmt.Sprintf("Retry the failed transfers with --recipients %s", saved.FailedPath))
	}

	return errors.Join(runErr, saveErr)
}

func readRecipients(path string) ([]batch.Recipient, error) {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open recipients file: %w", err)
	}
	defer func() { _ = file.Close() }()

	recipients, err := batch.ParseRecipients(file, batch.FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read recipients from '%s': %w", path, err)
	}

	return recipients, nil
}

func confirmTransfer(recipientCount int, tokenAddress string, network string) error {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Send token %s to %d recipient(s) on %s", tokenAddress, recipientCount, network),
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return errUserCanceled
		}

		return fmt.Errorf("confirmation prompt failed: %w", err)
	}

	return nil
}
