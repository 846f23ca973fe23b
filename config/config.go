// Package config defines the swarm agent configuration. Values layer in
// order: defaults, then the YAML file, then environment variables. Secrets
// (the wallet key, provider API keys) come from the environment only and are
// never written to or read from the YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level swarm configuration.
type Config struct {
	Chain     ChainConfig     `json:"chain" yaml:"chain"`
	Contracts ContractsConfig `json:"contracts" yaml:"contracts"`
	Providers ProvidersConfig `json:"providers" yaml:"providers"`
	DataDir   string          `json:"data_dir" yaml:"data_dir"`
	GuardFile string          `json:"guard_file" yaml:"guard_file"`
	LogLevel  string          `json:"log_level" yaml:"log_level"`

	// PrivateKey is the wallet's hex key. Environment only.
	PrivateKey string `json:"-" yaml:"-"`
}

// ChainConfig controls the RPC connection.
type ChainConfig struct {
	RPCURL string `json:"rpc_url" yaml:"rpc_url"`
}

// ContractsConfig holds the deployed contract addresses.
type ContractsConfig struct {
	Escrow   string `json:"escrow" yaml:"escrow"`
	Registry string `json:"registry" yaml:"registry"`
}

// ProvidersConfig selects AI judge models. API keys come from the
// environment, not from here.
type ProvidersConfig struct {
	AnthropicModel string `json:"anthropic_model,omitempty" yaml:"anthropic_model"`
	OpenAIModel    string `json:"openai_model,omitempty" yaml:"openai_model"`

	AnthropicKey string `json:"-" yaml:"-"`
	OpenAIKey    string `json:"-" yaml:"-"`
}

// DefaultConfig returns a config pointed at the Base mainnet deployment.
func DefaultConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			RPCURL: "https://mainnet.base.org",
		},
		Contracts: ContractsConfig{
			Escrow:   "0xE2b1D96dfbd4E363888c4c4f314A473E7cA24D2f",
			Registry: "0x22536E4C3A221dA3C42F02469DB3183E28fF7A74",
		},
		DataDir:   "./data",
		GuardFile: ".wallet-guard.yaml",
		LogLevel:  "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve builds the effective configuration: a .env file if present, then
// the YAML file at path (defaults when path is empty), then environment
// overrides.
func Resolve(path string) (*Config, error) {
	godotenv.Load() // best effort; absence of .env is normal

	cfg := DefaultConfig()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setenv(&c.Chain.RPCURL, "RPC_URL")
	setenv(&c.Contracts.Escrow, "ESCROW_ADDRESS")
	setenv(&c.Contracts.Registry, "VERIFICATION_REGISTRY")
	setenv(&c.PrivateKey, "PRIVATE_KEY")
	setenv(&c.Providers.AnthropicKey, "ANTHROPIC_API_KEY")
	setenv(&c.Providers.OpenAIKey, "OPENAI_API_KEY")
	setenv(&c.DataDir, "SWARM_DATA_DIR")
	setenv(&c.LogLevel, "SWARM_LOG_LEVEL")
}

func setenv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// SlogLevel maps the configured log level to a slog level, defaulting to
// info for unknown values.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
