package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// HTTPPortKey is the port the API listens on
	HTTPPortKey = "HTTP_PORT"
	// RPCURLKey is the Solana JSON-RPC endpoint
	RPCURLKey = "RPC_URL"
	// CommitmentKey is the commitment level for reads and preflight: processed, confirmed or finalized
	CommitmentKey = "COMMITMENT"
	// AuthClockSkewKey is the tolerated distance between a request timestamp and now
	AuthClockSkewKey = "AUTH_CLOCK_SKEW"
	// AuthDisabledKey trusts X-Wallet-Address without a signature. Never enable in production
	AuthDisabledKey = "AUTH_DISABLED"
	// IdempotencyWindowKey is how long a stored response is replayed
	IdempotencyWindowKey = "IDEMPOTENCY_WINDOW"
	// IdempotencyStoreKey selects the store: memory, file or postgres
	IdempotencyStoreKey = "IDEMPOTENCY_STORE"
	// IdempotencyStorePathKey is the file used by the file store
	IdempotencyStorePathKey = "IDEMPOTENCY_STORE_PATH"
	// PostgresDSNKey is the connection string used by the postgres store
	PostgresDSNKey = "POSTGRES_DSN"
	// RefreshIntervalKey is the period of the open offers scan; 0 disables it
	RefreshIntervalKey = "REFRESH_INTERVAL"
	// DerivationCacheSizeKey bounds each address derivation cache
	DerivationCacheSizeKey = "DERIVATION_CACHE_SIZE"
	// ComputeUnitPriceKey is the priority fee in micro-lamports per compute unit; 0 omits it
	ComputeUnitPriceKey = "COMPUTE_UNIT_PRICE"
	// ComputeUnitLimitKey caps compute units per transaction; 0 omits it
	ComputeUnitLimitKey = "COMPUTE_UNIT_LIMIT"
	// DLQPathKey is the directory failed relays are written to
	DLQPathKey = "DLQ_PATH"
	// LogLevelKey is a logrus level name or number
	LogLevelKey = "LOG_LEVEL"
	// KeypairPathKey is the solana-keygen file the CLI signs with
	KeypairPathKey = "KEYPAIR_PATH"
	// ConfigFileKey is an optional JSON, YAML or TOML file with any of the keys above
	ConfigFileKey = "CONFIG_FILE"

	envPrefix = "ESCROW"

	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// AppConfig is the typed view of the configuration.
type AppConfig struct {
	Service ServiceConfig
	Chain   ChainConfig
	Auth    AuthConfig
	Store   StoreConfig
}

type ServiceConfig struct {
	HTTPPort        int
	RefreshInterval time.Duration
	DLQPath         string
	LogLevel        log.Level
}

type ChainConfig struct {
	RPCURL              string
	Commitment          string
	DerivationCacheSize int
	ComputeUnitPrice    uint64
	ComputeUnitLimit    uint32
	KeypairPath         string
}

type AuthConfig struct {
	ClockSkew time.Duration
	Disabled  bool
}

type StoreConfig struct {
	Kind              string
	Path              string
	PostgresDSN       string
	IdempotencyWindow time.Duration
}

// New returns a viper instance with the ESCROW_ env prefix and every default
// set. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(HTTPPortKey, 3000)
	v.SetDefault(RPCURLKey, "http://127.0.0.1:8899")
	v.SetDefault(CommitmentKey, "confirmed")
	v.SetDefault(AuthClockSkewKey, time.Minute)
	v.SetDefault(AuthDisabledKey, false)
	v.SetDefault(IdempotencyWindowKey, 24*time.Hour)
	v.SetDefault(IdempotencyStoreKey, StoreFile)
	v.SetDefault(IdempotencyStorePathKey, filepath.Join(os.TempDir(), "anchor-escrow-idem.json"))
	v.SetDefault(RefreshIntervalKey, 30*time.Second)
	v.SetDefault(DerivationCacheSizeKey, 1024)
	v.SetDefault(ComputeUnitPriceKey, 0)
	v.SetDefault(ComputeUnitLimitKey, 0)
	v.SetDefault(DLQPathKey, filepath.Join(os.TempDir(), "anchor-escrow-dlq"))
	v.SetDefault(LogLevelKey, "info")
	v.SetDefault(KeypairPathKey, defaultKeypairPath())
	return v
}

// Load reads the environment and optional config file into an AppConfig.
func Load() (*AppConfig, error) {
	return LoadFrom(New())
}

func LoadFrom(v *viper.Viper) (*AppConfig, error) {
	if file := v.GetString(ConfigFileKey); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	level, err := parseLogLevel(v.GetString(LogLevelKey))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", LogLevelKey, err)
	}

	cfg := &AppConfig{
		Service: ServiceConfig{
			HTTPPort:        v.GetInt(HTTPPortKey),
			RefreshInterval: v.GetDuration(RefreshIntervalKey),
			DLQPath:         v.GetString(DLQPathKey),
			LogLevel:        level,
		},
		Chain: ChainConfig{
			RPCURL:              v.GetString(RPCURLKey),
			Commitment:          v.GetString(CommitmentKey),
			DerivationCacheSize: v.GetInt(DerivationCacheSizeKey),
			ComputeUnitPrice:    v.GetUint64(ComputeUnitPriceKey),
			ComputeUnitLimit:    v.GetUint32(ComputeUnitLimitKey),
			KeypairPath:         v.GetString(KeypairPathKey),
		},
		Auth: AuthConfig{
			ClockSkew: v.GetDuration(AuthClockSkewKey),
			Disabled:  v.GetBool(AuthDisabledKey),
		},
		Store: StoreConfig{
			Kind:              strings.ToLower(v.GetString(IdempotencyStoreKey)),
			Path:              v.GetString(IdempotencyStorePathKey),
			PostgresDSN:       v.GetString(PostgresDSNKey),
			IdempotencyWindow: v.GetDuration(IdempotencyWindowKey),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("error while validating config: %w", err)
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Service.HTTPPort <= 0 || c.Service.HTTPPort > 65535 {
		return fmt.Errorf("%s must be a valid port", HTTPPortKey)
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("missing %s", RPCURLKey)
	}
	switch c.Chain.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%s must be processed, confirmed or finalized", CommitmentKey)
	}
	switch c.Store.Kind {
	case StoreMemory, StoreFile:
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("%s is required with the postgres store", PostgresDSNKey)
		}
	default:
		return fmt.Errorf("unknown %s %q", IdempotencyStoreKey, c.Store.Kind)
	}
	if c.Store.IdempotencyWindow <= 0 {
		return fmt.Errorf("%s must be positive", IdempotencyWindowKey)
	}
	if c.Service.RefreshInterval < 0 {
		return fmt.Errorf("%s must not be negative", RefreshIntervalKey)
	}
	return nil
}

func parseLogLevel(s string) (log.Level, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(log.PanicLevel) || n > int(log.TraceLevel) {
			return 0, fmt.Errorf("level %d out of range", n)
		}
		return log.Level(n), nil
	}
	return log.ParseLevel(s)
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}
