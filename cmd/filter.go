package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jrh3k5/walletops/internal/etherscan"
	ctsio "github.com/jrh3k5/walletops/internal/io"
	"github.com/jrh3k5/walletops/internal/queue"
	"github.com/jrh3k5/walletops/internal/retry"
	"github.com/jrh3k5/walletops/internal/token"
	"github.com/jrh3k5/walletops/internal/transaction"
)

const dateLayout = "2006-01-02"

func runFilter(ctx context.Context, httpClient *http.Client, args []string) error {
	var common commonFlags
	var (
		address        string
		start          string
		end            string
		includeAll     bool
		includeInt     bool
		includeERC20   bool
		includeERC721  bool
		includeERC1155 bool
		incomingOnly   bool
		outgoingOnly   bool
		ignoreFile     string
		outputPath     string
	)

	flags := flag.NewFlagSet("filter", flag.ContinueOnError)
	common.register(flags)
	flags.StringVar(&address, "address", "", "wallet address to filter (required)")
	flags.StringVar(&start, "start", "", "first day to include, as YYYY-MM-DD or RFC 3339")
	flags.StringVar(&end, "end", "", "last day to include, as YYYY-MM-DD or RFC 3339")
	flags.BoolVar(&includeAll, "all", false, "include internal transactions and every token standard")
	flags.BoolVar(&includeInt, "internal", false, "include internal transactions")
	flags.BoolVar(&includeERC20, "erc20", true, "include ERC-20 transfers")
	flags.BoolVar(&includeERC721, "erc721", false, "include ERC-721 transfers")
	flags.BoolVar(&includeERC1155, "erc1155", false, "include ERC-1155 transfers")
	flags.BoolVar(&incomingOnly, "incoming-only", false, "only keep records received by the wallet")
	flags.BoolVar(&outgoingOnly, "outgoing-only", false, "only keep records sent by the wallet")
	flags.StringVar(&ignoreFile, "ignore-file", "", "YAML file of transaction hashes to leave out")
	flags.StringVar(&outputPath, "output", "", "file to write the result to; defaults to a new file in the output directory")

	if err := flags.Parse(args); err != nil {
		return err
	}

	if address == "" {
		return errors.New("--address is required")
	}

	settings, stopMetrics, err := common.setup(ctx)
	if err != nil {
		return err
	}
	defer stopMetrics()

	if err := settings.RequireExplorer(); err != nil {
		return err
	}

	criteria := transaction.Criteria{
		Address:         address,
		IncludeInternal: includeAll || includeInt,
		IncludeERC20:    includeAll || includeERC20,
		IncludeERC721:   includeAll || includeERC721,
		IncludeERC1155:  includeAll || includeERC1155,
		IncomingOnly:    incomingOnly,
		OutgoingOnly:    outgoingOnly,
	}

	if criteria.Start, err = parseDate(start, false); err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}

	if criteria.End, err = parseDate(end, true); err != nil {
		return fmt.Errorf("invalid --end: %w", err)
	}

	if ignoreFile != "" {
		criteria.Ignore, err = readIgnoreList(ignoreFile)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, fmt.Sprintf("Ignoring %d transaction(s) listed in %s", criteria.Ignore.Len(), ignoreFile))
	}

	scheduler, err := queue.NewScheduler(settings.Queue)
	if err != nil {
		return fmt.Errorf("invalid queue settings: %w", err)
	}
	defer scheduler.Destroy()

	retrier, err := retry.NewExecutor(settings.Retry)
	if err != nil {
		return fmt.Errorf("invalid retry settings: %w", err)
	}

	explorer := etherscan.NewAPIClient(httpClient, settings.ExplorerConfig(), scheduler, retrier)

	// tokeninfo needs a paid explorer plan, so token details come from the node when one is configured
	var details token.DetailsService
	if settings.Chain.RPCURL != "" {
		details = token.NewScheduledDetailsService(token.NewRPCDetailsService(httpClient, settings.Chain.RPCURL), scheduler, retrier)
	}

	engine := transaction.NewEngine(explorer, details, settings.Explorer.PageSize)

	slog.InfoContext(ctx, fmt.Sprintf("Filtering history of '%s' on %s", address, settings.Network))

	result, err := engine.FilterTransactions(ctx, criteria)
	if err != nil {
		return err
	}

	if outputPath == "" {
		name := fmt.Sprintf("transactions-%s-%s", strings.ToLower(address), time.Now().UTC().Format("20060102-150405"))
		outputPath, err = ctsio.UniquePath(settings.OutputDir, name, ".json")
		if err != nil {
			return err
		}
	}

	if err := ctsio.WriteJSON(outputPath, result); err != nil {
		return fmt.Errorf("failed to save filter result: %w", err)
	}

	summary := result.Summary
	slog.InfoContext(
		ctx,
		fmt.Sprintf("Saved %d entries to %s", len(result.Entries), outputPath),
		"transactions", summary.Transactions,
		"internal", summary.InternalTransactions,
		"erc20", summary.ERC20Transfers,
		"erc721", summary.ERC721Transfers,
		"erc1155", summary.ERC1155Transfers,
		"uniqueTokens", summary.UniqueTokens,
		"apiCalls", result.Metadata.APICalls,
	)

	return nil
}

// parseDate accepts a day or an RFC 3339 timestamp. A day used as the end of a
// window covers the whole day.
func parseDate(value string, endOfDay bool) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}

	if day, err := time.Parse(dateLayout, value); err == nil {
		if endOfDay {
			return day.Add(24*time.Hour - time.Second), nil
		}

		return day, nil
	}

	return time.Parse(time.RFC3339, value)
}

func readIgnoreList(path string) (*transaction.IgnoreList, error) {
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore list: %w", err)
	}
	defer func() { _ = file.Close() }()

	return transaction.IgnoreListFromYAML(file)
}
