// Package guard wraps transaction signing with spending limits, target
// allowlists, rate limits, and an append-only audit log. Agents hold real
// funds; a compromised or confused agent must not be able to drain them.
// Every decision, approved or blocked, lands in the audit log, and the
// rolling usage windows are computed from that same log so limits survive
// restarts.
package guard

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoCodeAlone/swarm/chain"
)

// ErrBlocked wraps every authorization refusal.
var ErrBlocked = errors.New("wallet guard blocked transaction")

const (
	statusApproved = "approved"
	statusBlocked  = "blocked"

	dailyWindow  = 24 * time.Hour
	hourlyWindow = time.Hour
)

// Guard enforces a Config over outgoing transactions. It implements
// chain.Authorizer, so a Sender wired with a Guard cannot sign anything the
// guardrails refuse.
type Guard struct {
	mu        sync.Mutex
	cfg       Config
	auditPath string
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a guard enforcing cfg, auditing to auditPath.
func New(cfg Config, auditPath string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		cfg:       cfg,
		auditPath: auditPath,
		logger:    logger,
		now:       time.Now,
	}
}

type auditEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	To         string    `json:"to,omitempty"`
	USDCAmount string    `json:"usdcAmount,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
}

// Authorize checks req against the guardrails and records the decision. A
// refusal returns an error wrapping ErrBlocked with the reason.
func (g *Guard) Authorize(_ context.Context, req chain.TxRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry := auditEntry{
		Timestamp:  g.now().UTC(),
		Action:     req.Description,
		To:         strings.ToLower(req.To.Hex()),
		USDCAmount: req.TokenAmount,
	}

	if reason := g.check(req); reason != "" {
		entry.Status = statusBlocked
		entry.Reason = reason
		g.append(entry)
		g.logger.Warn("transaction blocked",
			"action", req.Description, "to", entry.To, "reason", reason)
		return fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	entry.Status = statusApproved
	g.append(entry)
	return nil
}

// check returns the refusal reason, empty when the transaction is allowed.
func (g *Guard) check(req chain.TxRequest) string {
	if g.cfg.Mode == ModeReadOnly {
		return "wallet is in read-only mode, no transactions allowed"
	}
	if g.cfg.Mode == ModeSpendOnly && !g.isKnownContract(req.To) {
		return fmt.Sprintf("spend-only mode allows known contracts only, %s is not one", strings.ToLower(req.To.Hex()))
	}
	if !g.addressAllowed(req.To) {
		return fmt.Sprintf("address %s is not in the allowlist", strings.ToLower(req.To.Hex()))
	}

	usage := g.recentUsage()
	if usage.HourlyTransactions >= g.cfg.MaxTransactionsPerHour {
		return fmt.Sprintf("hourly transaction limit reached (%d/hr)", g.cfg.MaxTransactionsPerHour)
	}
	if usage.DailyTransactions >= g.cfg.MaxDailyTransactions {
		return fmt.Sprintf("daily transaction limit reached (%d/day)", g.cfg.MaxDailyTransactions)
	}

	if req.TokenAmount != "" {
		amount, err := strconv.ParseFloat(req.TokenAmount, 64)
		if err != nil {
			return fmt.Sprintf("unparsable token amount %q", req.TokenAmount)
		}
		maxPerTx, _ := strconv.ParseFloat(g.cfg.MaxPerTransaction, 64)
		if amount > maxPerTx {
			return fmt.Sprintf("amount %s USDC exceeds per-transaction limit of %s USDC",
				req.TokenAmount, g.cfg.MaxPerTransaction)
		}
		maxDaily, _ := strconv.ParseFloat(g.cfg.MaxDailySpend, 64)
		if usage.dailySpent+amount > maxDaily {
			return fmt.Sprintf("would exceed daily spending limit of %s USDC (%.2f already spent)",
				g.cfg.MaxDailySpend, usage.dailySpent)
		}
	}
	return ""
}

func (g *Guard) isKnownContract(addr common.Address) bool {
	for _, hex := range g.cfg.KnownContracts {
		if common.HexToAddress(hex) == addr {
			return true
		}
	}
	return false
}

func (g *Guard) addressAllowed(addr common.Address) bool {
	if g.cfg.AutoApproveContracts && g.isKnownContract(addr) {
		return true
	}
	if len(g.cfg.AllowedAddresses) == 0 {
		return true
	}
	for _, hex := range g.cfg.AllowedAddresses {
		if common.HexToAddress(hex) == addr {
			return true
		}
	}
	return false
}

// Usage is the rolling-window activity derived from the audit log. Only
// approved entries count.
type Usage struct {
	DailySpent         string `json:"dailySpent"`
	DailyTransactions  int    `json:"dailyTransactions"`
	HourlyTransactions int    `json:"hourlyTransactions"`

	dailySpent float64
}

func (g *Guard) recentUsage() Usage {
	u := Usage{}
	f, err := os.Open(g.auditPath)
	if err != nil {
		u.DailySpent = "0.00"
		return u
	}
	defer f.Close()

	dailyCutoff := g.now().Add(-dailyWindow)
	hourlyCutoff := g.now().Add(-hourlyWindow)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry auditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}
		if entry.Status != statusApproved || entry.Timestamp.Before(dailyCutoff) {
			continue
		}
		u.DailyTransactions++
		if amt, err := strconv.ParseFloat(entry.USDCAmount, 64); err == nil {
			u.dailySpent += amt
		}
		if !entry.Timestamp.Before(hourlyCutoff) {
			u.HourlyTransactions++
		}
	}
	u.DailySpent = fmt.Sprintf("%.2f", u.dailySpent)
	return u
}

// append writes one audit line. Auditing is best effort: a failed write is
// logged, never fatal, because refusing to transact over a full disk would
// strand in-flight escrows.
func (g *Guard) append(entry auditEntry) {
	line, err := json.Marshal(entry)
	if err != nil {
		g.logger.Warn("audit entry encode failed", "error", err)
		return
	}
	f, err := os.OpenFile(g.auditPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		g.logger.Warn("audit log open failed", "path", g.auditPath, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		g.logger.Warn("audit log write failed", "path", g.auditPath, "error", err)
	}
}

// Status is the current guard posture for display.
type Status struct {
	Mode             string   `json:"mode"`
	Limits           Config   `json:"limits"`
	Usage            Usage    `json:"usage"`
	AllowedAddresses int      `json:"allowedAddresses"`
	KnownContracts   []string `json:"knownContracts"`
}

// Status reports the configured limits and current rolling usage.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.cfg.KnownContracts))
	for name := range g.cfg.KnownContracts {
		names = append(names, name)
	}
	slices.Sort(names)
	return Status{
		Mode:             g.cfg.Mode,
		Limits:           g.cfg,
		Usage:            g.recentUsage(),
		AllowedAddresses: len(g.cfg.AllowedAddresses),
		KnownContracts:   names,
	}
}

// Format renders the status for display.
func (s Status) Format() string {
	targets := "any"
	if s.AllowedAddresses > 0 {
		targets = strconv.Itoa(s.AllowedAddresses)
	}
	lines := []string{
		"wallet guard status",
		fmt.Sprintf("  mode: %s", s.Mode),
		fmt.Sprintf("  per-tx limit: %s USDC", s.Limits.MaxPerTransaction),
		fmt.Sprintf("  daily limit: %s USDC (spent %s)", s.Limits.MaxDailySpend, s.Usage.DailySpent),
		fmt.Sprintf("  daily txns: %d/%d", s.Usage.DailyTransactions, s.Limits.MaxDailyTransactions),
		fmt.Sprintf("  hourly txns: %d/%d", s.Usage.HourlyTransactions, s.Limits.MaxTransactionsPerHour),
		fmt.Sprintf("  allowed targets: %s", targets),
		fmt.Sprintf("  known contracts: %s", strings.Join(s.KnownContracts, ", ")),
	}
	return strings.Join(lines, "\n")
}
