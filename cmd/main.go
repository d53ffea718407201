package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jrh3k5/walletops/internal/config"
	ctsslog "github.com/jrh3k5/walletops/internal/logging/slog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const httpTimeout = 30 * time.Second

// commonFlags are accepted by every subcommand.
type commonFlags struct {
	configPath  string
	debug       bool
	metricsAddr string
}

func (c *commonFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&c.configPath, "config", "", "path to a YAML settings file")
	flags.BoolVar(&c.debug, "debug", false, "enable debug logging")
	flags.StringVar(&c.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

// setup installs the logger, loads the settings and starts the metrics endpoint.
// The returned function stops the metrics endpoint.
func (c *commonFlags) setup(ctx context.Context) (*config.Settings, func(), error) {
	level := slog.LevelInfo
	if c.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(ctsslog.NewHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := config.LoadEnvFiles(".env", ".env.local"); err != nil {
		return nil, nil, err
	}

	settings, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}

	if c.metricsAddr == "" {
		return settings, func() {}, nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: c.metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.InfoContext(ctx, fmt.Sprintf("Serving metrics on %s/metrics", c.metricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "Metrics endpoint stopped", "error", err)
		}
	}()

	stop := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}

	return settings, stop, nil
}

func main() {
	os.Exit(runUntilSignaled(os.Args[1:]))
}

// runUntilSignaled runs the command with a context that ends on SIGINT or SIGTERM.
// Signal handling is released before the exit code is returned.
func runUntilSignaled(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, args)
}

func run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		usage()

		return 2
	}

	httpClient := &http.Client{Timeout: httpTimeout}

	var err error
	switch args[0] {
	case "filter":
		err = runFilter(ctx, httpClient, args[1:])
	case "transfer":
		err = runTransfer(ctx, httpClient, args[1:])
	case "-h", "--help", "help":
		usage()

		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command '%s'\n\n", args[0])
		usage()

		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUserCanceled):
		slog.InfoContext(ctx, "Canceled")

		return 1
	default:
		slog.ErrorContext(ctx, "Command failed", "error", err)

		return 1
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: walletops <command> [flags]

commands:
  filter    write a wallet's filtered history from a block explorer to a JSON file
  transfer  send an ERC-20 token to every recipient in a JSON or CSV file

Run 'walletops <command> -h' for the flags of a command.`)
}
