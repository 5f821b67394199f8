package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Ethernal-Tech/starkex-infrastructure/codec"
	"github.com/Ethernal-Tech/starkex-infrastructure/ethereum"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer/db"
	"github.com/Ethernal-Tech/starkex-infrastructure/logger"
	"github.com/Ethernal-Tech/starkex-infrastructure/statesync"
	"github.com/caarlos0/env/v11"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix = "STARKEX_"

	defaultDataDir       = "./data"
	defaultDatabaseFile  = "starkex.db"
	defaultLogLevel      = "info"
	defaultSyncBatchSize = 6000
	defaultRetryCount    = 5
	defaultRetryWaitTime = 2 * time.Second
	defaultRetryDelay    = time.Second
	defaultPollInterval  = 12 * time.Second
)

var ErrInvalidConfig = errors.New("invalid config")

type LoggerConfig struct {
	LogLevel            string                      `json:"logLevel" yaml:"logLevel" env:"LEVEL"`
	JSONLogFormat       bool                        `json:"jsonLogFormat" yaml:"jsonLogFormat" env:"JSON"`
	AppendFile          bool                        `json:"appendFile" yaml:"appendFile"`
	// LogDir holds one log file per component. Relative paths are resolved inside the data dir.
	LogDir              string                      `json:"logDir" yaml:"logDir" env:"DIR"`
	RotatingLogsEnabled bool                        `json:"rotatingLogsEnabled" yaml:"rotatingLogsEnabled"`
	RotatingLogerConfig logger.RotatingLoggerConfig `json:"rotatingLogerConfig" yaml:"rotatingLogerConfig"`
}

type BlockchainConfig struct {
	JSONRPCURL        string        `json:"jsonRpcUrl" yaml:"jsonRpcUrl" env:"JSON_RPC_URL"`
	ChainID           uint64        `json:"chainId" yaml:"chainId" env:"CHAIN_ID"`
	SafeBlockDistance uint64        `json:"safeBlockDistance" yaml:"safeBlockDistance" env:"SAFE_BLOCK_DISTANCE"`
	SyncBatchSize     uint64        `json:"syncBatchSize" yaml:"syncBatchSize" env:"SYNC_BATCH_SIZE"`
	MinBlockNumber    uint64        `json:"minBlockNumber" yaml:"minBlockNumber" env:"MIN_BLOCK_NUMBER"`
	MaxBlockNumber    uint64        `json:"maxBlockNumber" yaml:"maxBlockNumber" env:"MAX_BLOCK_NUMBER"`
	RetryCount        int           `json:"retryCount" yaml:"retryCount" env:"RETRY_COUNT"`
	RetryWaitTime     time.Duration `json:"retryWaitTime" yaml:"retryWaitTime" env:"RETRY_WAIT_TIME"`
	RetryDelay        time.Duration `json:"retryDelay" yaml:"retryDelay" env:"RETRY_DELAY"`
	PollInterval      time.Duration `json:"pollInterval" yaml:"pollInterval" env:"POLL_INTERVAL"`
}

type ContractsConfig struct {
	Perpetual string   `json:"perpetual" yaml:"perpetual" env:"PERPETUAL"`
	Registry  string   `json:"registry" yaml:"registry" env:"REGISTRY"`
	Verifiers []string `json:"verifiers" yaml:"verifiers" env:"VERIFIERS" envSeparator:","`
}

type AppConfig struct {
	DataDir         string                `json:"dataDir" yaml:"dataDir" env:"DATA_DIR"`
	Database        string                `json:"database" yaml:"database" env:"DATABASE"`
	Logger          LoggerConfig          `json:"logger" yaml:"logger" envPrefix:"LOGGER_"`
	Blockchain      BlockchainConfig      `json:"blockchain" yaml:"blockchain" envPrefix:"BLOCKCHAIN_"`
	Contracts       ContractsConfig       `json:"contracts" yaml:"contracts" envPrefix:"CONTRACTS_"`
	CollateralAsset codec.CollateralAsset `json:"collateralAsset" yaml:"collateralAsset"`
}

// LoadConfig reads a json or yaml config file and applies the STARKEX_ prefixed environment
// variables on top of it. Variables from a .env file in the working directory are used as well.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bytes, config)
	default:
		err = json.Unmarshal(bytes, config)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *AppConfig) SetDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}

	if c.Database == "" {
		c.Database = db.BBoltDatabaseName
	}

	if c.Logger.LogLevel == "" {
		c.Logger.LogLevel = defaultLogLevel
	}

	if c.Blockchain.SafeBlockDistance == 0 {
		c.Blockchain.SafeBlockDistance = indexer.DefaultSafeBlockDistance
	}

	if c.Blockchain.SyncBatchSize == 0 {
		c.Blockchain.SyncBatchSize = defaultSyncBatchSize
	}

	if c.Blockchain.RetryCount == 0 {
		c.Blockchain.RetryCount = defaultRetryCount
	}

	if c.Blockchain.RetryWaitTime == 0 {
		c.Blockchain.RetryWaitTime = defaultRetryWaitTime
	}

	if c.Blockchain.RetryDelay == 0 {
		c.Blockchain.RetryDelay = defaultRetryDelay
	}

	if c.Blockchain.PollInterval == 0 {
		c.Blockchain.PollInterval = defaultPollInterval
	}
}

// Validate reports every problem of the config at once
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Database != db.BBoltDatabaseName && c.Database != db.LevelDBDatabaseName {
		errs = append(errs, fmt.Errorf("unknown database: %s", c.Database))
	}

	if _, err := c.hclogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Blockchain.JSONRPCURL == "" {
		errs = append(errs, errors.New("missing blockchain json rpc url"))
	}

	if c.Blockchain.MaxBlockNumber != 0 && c.Blockchain.MaxBlockNumber < c.Blockchain.MinBlockNumber {
		errs = append(errs, fmt.Errorf("max block number %d is lower than min block number %d",
			c.Blockchain.MaxBlockNumber, c.Blockchain.MinBlockNumber))
	}

	errs = append(errs, validateAddress("perpetual", c.Contracts.Perpetual))
	errs = append(errs, validateAddress("registry", c.Contracts.Registry))

	if len(c.Contracts.Verifiers) == 0 {
		errs = append(errs, errors.New("missing verifier contracts"))
	}

	for i, verifier := range c.Contracts.Verifiers {
		errs = append(errs, validateAddress(fmt.Sprintf("verifier %d", i), verifier))
	}

	if (c.CollateralAsset.AssetID == "") != (c.CollateralAsset.AssetHash == "") {
		errs = append(errs, errors.New("collateral asset needs both asset id and asset hash"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

func (c *AppConfig) DatabaseFilePath() string {
	return filepath.Join(c.DataDir, defaultDatabaseFile)
}

// LoggerConfig is meant for logger.NewLoggerContainer, its LogFilePath is the log directory
func (c *AppConfig) LoggerConfig() (logger.LoggerConfig, error) {
	level, err := c.hclogLevel()
	if err != nil {
		return logger.LoggerConfig{}, err
	}

	logDir := c.Logger.LogDir
	if logDir != "" && !filepath.IsAbs(logDir) {
		logDir = filepath.Join(c.DataDir, logDir)
	}

	return logger.LoggerConfig{
		LogLevel:            level,
		JSONLogFormat:       c.Logger.JSONLogFormat,
		AppendFile:          c.Logger.AppendFile,
		LogFilePath:         logDir,
		Name:                "starkex",
		RotatingLogsEnabled: c.Logger.RotatingLogsEnabled,
		RotatingLogerConfig: c.Logger.RotatingLogerConfig,
	}, nil
}

func (c *AppConfig) ClientConfig() ethereum.ClientConfig {
	return ethereum.ClientConfig{
		JSONRPCURL:        c.Blockchain.JSONRPCURL,
		ChainID:           c.Blockchain.ChainID,
		SafeBlockDistance: c.Blockchain.SafeBlockDistance,
		RetryCount:        c.Blockchain.RetryCount,
		RetryWaitTime:     c.Blockchain.RetryWaitTime,
		PollInterval:      c.Blockchain.PollInterval,
	}
}

func (c *AppConfig) BlockDownloaderConfig() indexer.BlockDownloaderConfig {
	return indexer.BlockDownloaderConfig{
		SafeBlockDistance: c.Blockchain.SafeBlockDistance,
	}
}

func (c *AppConfig) SyncSchedulerConfig() indexer.SyncSchedulerConfig {
	return indexer.SyncSchedulerConfig{
		MaxBatchSize:   c.Blockchain.SyncBatchSize,
		EarliestBlock:  c.Blockchain.MinBlockNumber,
		MaxBlockNumber: c.Blockchain.MaxBlockNumber,
		RetryDelay:     c.Blockchain.RetryDelay,
	}
}

func (c *AppConfig) StateSyncConfig() statesync.ServiceConfig {
	config := statesync.ServiceConfig{
		Perpetual: c.Contracts.Perpetual,
		Registry:  c.Contracts.Registry,
		Verifiers: c.Contracts.Verifiers,
	}

	if c.CollateralAsset.AssetID != "" {
		collateral := c.CollateralAsset
		config.Collateral = &collateral
	}

	return config
}

func (c *AppConfig) hclogLevel() (hclog.Level, error) {
	level := hclog.LevelFromString(c.Logger.LogLevel)
	if level == hclog.NoLevel {
		return hclog.NoLevel, fmt.Errorf("unknown log level: %s", c.Logger.LogLevel)
	}

	return level, nil
}

func validateAddress(name, address string) error {
	if !ethcommon.IsHexAddress(address) {
		return fmt.Errorf("invalid %s contract address: %q", name, address)
	}

	return nil
}
