// Package config loads the earn agent configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/DevWeb3Jogja/batch-5-fe/vault"
)

// Config holds all application configuration.
type Config struct {
	Chain struct {
		RPCURL         string        `yaml:"rpc_url"`
		ChainID        int64         `yaml:"chain_id"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		ReadsPerSecond float64       `yaml:"reads_per_second"`
	} `yaml:"chain"`
	Contracts struct {
		Token string `yaml:"token"`
		Vault string `yaml:"vault"`
	} `yaml:"contracts"`
	Wallet struct {
		ExecutorURL string `yaml:"executor_url"`
		APIKey      string `yaml:"api_key"`
		Account     string `yaml:"account"`
		UserID      string `yaml:"user_id"`
		GasTier     string `yaml:"gas_tier"`
	} `yaml:"wallet"`
	Orchestrator struct {
		InclusionTimeout time.Duration `yaml:"inclusion_timeout"`
		AwaitTimeout     time.Duration `yaml:"await_timeout"`
		RefreshCron      string        `yaml:"refresh_cron"`
		BasisReset       bool          `yaml:"basis_reset"`
	} `yaml:"orchestrator"`
	Agent struct {
		AnthropicKey    string        `yaml:"anthropic_key"`
		Model           string        `yaml:"model"`
		MaxTokens       int64         `yaml:"max_tokens"`
		Stream          bool          `yaml:"stream"`
		ConfirmationTTL time.Duration `yaml:"confirmation_ttl"`
	} `yaml:"agent"`
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`
	Memory struct {
		Enabled    bool `yaml:"enabled"`
		MaxResults int  `yaml:"max_results"`
	} `yaml:"memory"`
	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Chain.RPCURL, "RPC_URL")
	setString(&c.Contracts.Token, "TOKEN_ADDRESS")
	setString(&c.Contracts.Vault, "VAULT_ADDRESS")
	setString(&c.Wallet.ExecutorURL, "EXECUTOR_BASE_URL")
	setString(&c.Wallet.APIKey, "EXECUTOR_API_KEY")
	setString(&c.Wallet.Account, "ACCOUNT_ADDRESS")
	setString(&c.Wallet.UserID, "WALLET_USER_ID")
	setString(&c.Wallet.GasTier, "GAS_TIER")
	setString(&c.Orchestrator.RefreshCron, "REFRESH_CRON")
	setString(&c.Agent.AnthropicKey, "ANTHROPIC_API_KEY")
	setString(&c.Agent.Model, "MODEL")
	setString(&c.Server.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CHAIN_ID: %w", err)
		}
		c.Chain.ChainID = id
	}
	if v := os.Getenv("INCLUSION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INCLUSION_TIMEOUT: %w", err)
		}
		c.Orchestrator.InclusionTimeout = d
	}
	if v := os.Getenv("MEMORY_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MEMORY_ENABLED: %w", err)
		}
		c.Memory.Enabled = enabled
	}
	if v := os.Getenv("BASIS_RESET"); v != "" {
		reset, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("BASIS_RESET: %w", err)
		}
		c.Orchestrator.BasisReset = reset
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 2 * time.Second
	}
	if c.Wallet.GasTier == "" {
		c.Wallet.GasTier = "standard"
	}
	if c.Wallet.UserID == "" {
		c.Wallet.UserID = c.Wallet.Account
	}
	if c.Orchestrator.RefreshCron == "" {
		c.Orchestrator.RefreshCron = "@every 15s"
	}
	if c.Orchestrator.AwaitTimeout == 0 {
		c.Orchestrator.AwaitTimeout = 3 * time.Minute
	}
	if c.Agent.Model == "" {
		c.Agent.Model = "claude-sonnet-4-20250514"
	}
	if c.Agent.MaxTokens == 0 {
		c.Agent.MaxTokens = 4096
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Memory.MaxResults == 0 {
		c.Memory.MaxResults = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	if c.Chain.ChainID <= 0 {
		return fmt.Errorf("chain.chain_id must be positive")
	}
	if !common.IsHexAddress(c.Contracts.Token) {
		return fmt.Errorf("contracts.token is not an address: %q", c.Contracts.Token)
	}
	if !common.IsHexAddress(c.Contracts.Vault) {
		return fmt.Errorf("contracts.vault is not an address: %q", c.Contracts.Vault)
	}
	if c.Wallet.ExecutorURL == "" {
		return fmt.Errorf("wallet.executor_url is required")
	}
	if !common.IsHexAddress(c.Wallet.Account) {
		return fmt.Errorf("wallet.account is not an address: %q", c.Wallet.Account)
	}
	if c.Agent.AnthropicKey == "" {
		return fmt.Errorf("agent.anthropic_key is required")
	}
	if c.Orchestrator.InclusionTimeout < 0 {
		return fmt.Errorf("orchestrator.inclusion_timeout must not be negative")
	}
	if _, err := cron.ParseStandard(c.Orchestrator.RefreshCron); err != nil {
		return fmt.Errorf("orchestrator.refresh_cron: %w", err)
	}
	return nil
}

// VaultContracts returns the configured token and vault addresses.
func (c *Config) VaultContracts() vault.Contracts {
	return vault.Contracts{
		Token: common.HexToAddress(c.Contracts.Token),
		Vault: common.HexToAddress(c.Contracts.Vault),
	}
}

// AccountAddress returns the managed wallet address.
func (c *Config) AccountAddress() common.Address {
	return common.HexToAddress(c.Wallet.Account)
}
