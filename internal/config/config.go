package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrh3k5/walletops/internal/batch"
	"github.com/jrh3k5/walletops/internal/etherscan"
	ctsio "github.com/jrh3k5/walletops/internal/io"
	"github.com/jrh3k5/walletops/internal/queue"
	"github.com/jrh3k5/walletops/internal/retry"
	"go.yaml.in/yaml/v3"
)

// Settings is everything the commands can be configured with. Values are read from
// an optional YAML file and then overridden by environment variables.
type Settings struct {
	Network   string           `yaml:"network"`
	OutputDir string           `yaml:"outputDir"`
	Explorer  ExplorerSettings `yaml:"explorer"`
	Chain     ChainSettings    `yaml:"chain"`
	Queue     queue.Policy     `yaml:"-"`
	Retry     retry.Policy     `yaml:"-"`
	Batch     batch.Policy     `yaml:"-"`
}

type ExplorerSettings struct {
	BaseURL  string `yaml:"baseURL"`
	APIKey   string `yaml:"apiKey"`
	ChainID  int64  `yaml:"chainID"`
	PageSize int    `yaml:"pageSize"`
}

type ChainSettings struct {
	RPCURL       string `yaml:"rpcURL"`
	ChainID      int64  `yaml:"chainID"`
	TokenAddress string `yaml:"tokenAddress"`
	// PrivateKey is only read from the environment.
	PrivateKey string `yaml:"-"`
}

// yamlSettings mirrors Settings with policy sections whose fields may be left out.
type yamlSettings struct {
	Settings `yaml:",inline"`

	Queue struct {
		MaxConcurrent *int     `yaml:"maxConcurrent"`
		RatePerSecond *float64 `yaml:"ratePerSecond"`
	} `yaml:"queue"`

	Retry struct {
		MaxAttempts       *int           `yaml:"maxAttempts"`
		BaseDelay         *time.Duration `yaml:"baseDelay"`
		MaxDelay          *time.Duration `yaml:"maxDelay"`
		BackoffMultiplier *float64       `yaml:"backoffMultiplier"`
	} `yaml:"retry"`

	Batch struct {
		BatchSize           *int           `yaml:"batchSize"`
		GasMultiplier       *float64       `yaml:"gasMultiplier"`
		MaxRetries          *int           `yaml:"maxRetries"`
		RetryDelay          *time.Duration `yaml:"retryDelay"`
		TransferDelay       *time.Duration `yaml:"transferDelay"`
		BatchDelay          *time.Duration `yaml:"batchDelay"`
		RateLimitCooldown   *time.Duration `yaml:"rateLimitCooldown"`
		ConfirmationTimeout *time.Duration `yaml:"confirmationTimeout"`
	} `yaml:"batch"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	return Settings{
		Network:   "ethereum",
		OutputDir: "output",
		Explorer: ExplorerSettings{
			BaseURL:  etherscan.DefaultBaseURL,
			ChainID:  1,
			PageSize: 1000,
		},
		Queue: queue.DefaultPolicy(),
		Retry: retry.DefaultPolicy(),
		Batch: batch.DefaultPolicy(),
	}
}

// LoadEnvFiles loads each of the given dotenv files that exists. Variables already
// present in the environment are left alone.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		exists, err := ctsio.FileExists(path)
		if err != nil {
			return err
		}

		if !exists {
			continue
		}

		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load environment file '%s': %w", path, err)
		}
	}

	return nil
}

// Load reads the YAML file at path, if path is not empty, on top of the defaults
// and then applies environment overrides.
func Load(path string) (*Settings, error) {
	settings := Default()

	if path != "" {
		file, err := os.Open(path) //nolint:gosec
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer func() { _ = file.Close() }()

		if err := decodeYAML(file, &settings); err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
	}

	if err := applyEnv(&settings, os.LookupEnv); err != nil {
		return nil, err
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return &settings, nil
}

func decodeYAML(reader io.Reader, settings *Settings) error {
	parsed := yamlSettings{Settings: *settings}
	if err := yaml.NewDecoder(reader).Decode(&parsed); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	// the inline section decodes over the defaults; the policies are merged field by field
	merged := parsed.Settings
	merged.Queue, merged.Retry, merged.Batch = settings.Queue, settings.Retry, settings.Batch

	setIf(&merged.Queue.MaxConcurrent, parsed.Queue.MaxConcurrent)
	setIf(&merged.Queue.RatePerSecond, parsed.Queue.RatePerSecond)

	setIf(&merged.Retry.MaxAttempts, parsed.Retry.MaxAttempts)
	setIf(&merged.Retry.BaseDelay, parsed.Retry.BaseDelay)
	setIf(&merged.Retry.MaxDelay, parsed.Retry.MaxDelay)
	setIf(&merged.Retry.BackoffMultiplier, parsed.Retry.BackoffMultiplier)

	setIf(&merged.Batch.BatchSize, parsed.Batch.BatchSize)
	setIf(&merged.Batch.GasMultiplier, parsed.Batch.GasMultiplier)
	setIf(&merged.Batch.MaxRetries, parsed.Batch.MaxRetries)
	setIf(&merged.Batch.RetryDelay, parsed.Batch.RetryDelay)
	setIf(&merged.Batch.TransferDelay, parsed.Batch.TransferDelay)
	setIf(&merged.Batch.BatchDelay, parsed.Batch.BatchDelay)
	setIf(&merged.Batch.RateLimitCooldown, parsed.Batch.RateLimitCooldown)
	setIf(&merged.Batch.ConfirmationTimeout, parsed.Batch.ConfirmationTimeout)

	*settings = merged

	return nil
}

func setIf[T any](target *T, value *T) {
	if value != nil {
		*target = *value
	}
}

type lookupFunc func(key string) (string, bool)

func applyEnv(settings *Settings, lookup lookupFunc) error {
	env := envReader{lookup: lookup}

	env.string("NETWORK", &settings.Network)
	env.string("OUTPUT_DIR", &settings.OutputDir)

	env.string("EXPLORER_BASE_URL", &settings.Explorer.BaseURL)
	env.string("ETHERSCAN_API_KEY", &settings.Explorer.APIKey)
	env.int64("EXPLORER_CHAIN_ID", &settings.Explorer.ChainID)
	env.int("EXPLORER_PAGE_SIZE", &settings.Explorer.PageSize)

	env.string("RPC_URL", &settings.Chain.RPCURL)
	env.int64("CHAIN_ID", &settings.Chain.ChainID)
	env.string("TOKEN_ADDRESS", &settings.Chain.TokenAddress)
	env.string("PRIVATE_KEY", &settings.Chain.PrivateKey)

	env.int("QUEUE_MAX_CONCURRENT", &settings.Queue.MaxConcurrent)
	env.float("QUEUE_RATE_PER_SECOND", &settings.Queue.RatePerSecond)

	env.int("RETRY_MAX_ATTEMPTS", &settings.Retry.MaxAttempts)
	env.duration("RETRY_BASE_DELAY", &settings.Retry.BaseDelay)
	env.duration("RETRY_MAX_DELAY", &settings.Retry.MaxDelay)

	env.int("BATCH_SIZE", &settings.Batch.BatchSize)
	env.float("GAS_MULTIPLIER", &settings.Batch.GasMultiplier)
	env.int("MAX_RETRIES", &settings.Batch.MaxRetries)
	env.duration("RETRY_DELAY", &settings.Batch.RetryDelay)
	env.duration("TRANSFER_DELAY", &settings.Batch.TransferDelay)
	env.duration("BATCH_DELAY", &settings.Batch.BatchDelay)
	env.duration("RATE_LIMIT_COOLDOWN", &settings.Batch.RateLimitCooldown)
	env.duration("CONFIRMATION_TIMEOUT", &settings.Batch.ConfirmationTimeout)

	return errors.Join(env.errs...)
}

// envReader collects every malformed variable rather than stopping at the first.
type envReader struct {
	lookup lookupFunc
	errs   []error
}

func (r *envReader) value(key string) (string, bool) {
	value, ok := r.lookup(key)
	if !ok {
		return "", false
	}

	value = strings.TrimSpace(value)

	return value, value != ""
}

func (r *envReader) string(key string, target *string) {
	if value, ok := r.value(key); ok {
		*target = value
	}
}

func (r *envReader) int(key string, target *int) {
	if value, ok := r.value(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s must be an integer: %w", key, err))

			return
		}
		*target = parsed
	}
}

func (r *envReader) int64(key string, target *int64) {
	if value, ok := r.value(key); ok {
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s must be an integer: %w", key, err))

			return
		}
		*target = parsed
	}
}

func (r *envReader) float(key string, target *float64) {
	if value, ok := r.value(key); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s must be a number: %w", key, err))

			return
		}
		*target = parsed
	}
}

func (r *envReader) duration(key string, target *time.Duration) {
	if value, ok := r.value(key); ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			r.errs = append(r.errs, fmt.Errorf("%s must be a duration such as 1s: %w", key, err))

			return
		}
		*target = parsed
	}
}

// Validate checks the policies. Settings needed by only one command, such as the
// RPC URL, are checked by RequireChain.
func (s *Settings) Validate() error {
	var errs []error
	if err := s.Queue.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid queue settings: %w", err))
	}

	if err := s.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid retry settings: %w", err))
	}

	if err := s.Batch.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid batch settings: %w", err))
	}

	return errors.Join(errs...)
}

// RequireExplorer fails if the explorer cannot be queried with these settings.
func (s *Settings) RequireExplorer() error {
	if s.Explorer.APIKey == "" {
		return errors.New("an explorer API key is required; set ETHERSCAN_API_KEY")
	}

	return nil
}

// RequireChain fails if transfers cannot be sent with these settings.
func (s *Settings) RequireChain() error {
	var missing []string
	if s.Chain.RPCURL == "" {
		missing = append(missing, "RPC_URL")
	}

	if s.Chain.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}

	if s.Chain.TokenAddress == "" {
		missing = append(missing, "TOKEN_ADDRESS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	return nil
}

// ExplorerConfig is the explorer client configuration.
func (s *Settings) ExplorerConfig() etherscan.Config {
	return etherscan.Config{
		BaseURL: s.Explorer.BaseURL,
		APIKey:  s.Explorer.APIKey,
		ChainID: s.Explorer.ChainID,
	}
}
