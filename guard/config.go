package guard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Operating modes. Read-only signs nothing; spend-only signs transactions to
// known contracts only; full allows any target within the limits.
const (
	ModeFull      = "full"
	ModeReadOnly  = "read-only"
	ModeSpendOnly = "spend-only"
)

// Config holds the guardrails for one wallet. Amounts are human-readable
// USDC strings.
type Config struct {
	Mode string `yaml:"mode"`

	MaxPerTransaction      string `yaml:"maxPerTransaction"`
	MaxDailySpend          string `yaml:"maxDailySpend"`
	MaxDailyTransactions   int    `yaml:"maxDailyTransactions"`
	MaxTransactionsPerHour int    `yaml:"maxTransactionsPerHour"`

	// AllowedAddresses restricts transaction targets when non-empty; an
	// empty list allows any target within the spending limits.
	AllowedAddresses []string `yaml:"allowedAddresses"`

	// KnownContracts maps contract names to addresses. With
	// AutoApproveContracts set they bypass the allowlist (never the
	// spending limits).
	KnownContracts       map[string]string `yaml:"knownContracts"`
	AutoApproveContracts bool              `yaml:"autoApproveContracts"`
}

// DefaultConfig returns the conservative default guardrails.
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeFull,
		MaxPerTransaction:      "1.00",
		MaxDailySpend:          "10.00",
		MaxDailyTransactions:   50,
		MaxTransactionsPerHour: 10,
		KnownContracts: map[string]string{
			"TaskEscrow":           "0xE2b1D96dfbd4E363888c4c4f314A473E7cA24D2f",
			"VerificationRegistry": "0x22536E4C3A221dA3C42F02469DB3183E28fF7A74",
			"USDC":                 "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		},
		AutoApproveContracts: true,
	}
}

// LoadConfig reads the guard config at path, layered over the defaults. A
// missing file yields the defaults; an unreadable or malformed file is an
// error rather than a silent fallback to weaker limits.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read guard config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse guard config %s: %w", path, err)
	}
	switch cfg.Mode {
	case ModeFull, ModeReadOnly, ModeSpendOnly:
	default:
		return Config{}, fmt.Errorf("guard config %s: unknown mode %q", path, cfg.Mode)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode guard config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write guard config: %w", err)
	}
	return nil
}
