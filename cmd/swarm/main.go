// Command swarm is the agent-swarm CLI: escrow, verification trail, and
// reputation operations against the on-chain protocol.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/GoCodeAlone/swarm/chain"
	"github.com/GoCodeAlone/swarm/config"
	"github.com/GoCodeAlone/swarm/escrow"
	"github.com/GoCodeAlone/swarm/guard"
	"github.com/GoCodeAlone/swarm/internal/version"
	"github.com/GoCodeAlone/swarm/protocol"
	"github.com/GoCodeAlone/swarm/provider"
	"github.com/GoCodeAlone/swarm/registry"
	"github.com/GoCodeAlone/swarm/reputation"
	"github.com/GoCodeAlone/swarm/state"
	"github.com/GoCodeAlone/swarm/verify"
)

const auditFile = ".wallet-audit.log"

func main() {
	var (
		configPath = flag.String("config", "", "path to swarm.yaml")
		logLevel   = flag.String("log-level", "", "override log level (debug, info, warn, error)")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Resolve(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	ctx := context.Background()

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "version":
		err = cmdVersion(rest)
	case "escrow":
		err = a.cmdEscrow(ctx, rest)
	case "criteria":
		err = a.cmdCriteria(ctx, rest)
	case "deliverable":
		err = a.cmdDeliverable(ctx, rest)
	case "trail":
		err = a.cmdTrail(ctx, rest)
	case "stats":
		err = a.cmdStats(ctx, rest)
	case "verify":
		err = a.cmdVerify(ctx, rest)
	case "reputation":
		err = a.cmdReputation(ctx, rest)
	case "msg":
		err = cmdMsg(rest)
	case "guard":
		err = a.cmdGuard(rest)
	case "dashboard":
		err = a.cmdDashboard(ctx, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `swarm — agent swarm CLI

Usage:
  swarm [flags] <command> [args]

Flags:
  --config     <path>  config file (default: built-in Base mainnet settings)
  --log-level  <lvl>   debug, info, warn, error

Commands:
  version                                        print version
  escrow create <task-id> <worker> <amount> [hours]   fund a task (deadline in hours, default 24)
  escrow release <task-id>                       pay the worker
  escrow dispute <task-id>                       freeze the escrow
  escrow resolve <task-id> <worker|requestor>    settle a dispute (arbitrator)
  escrow claim-timeout <task-id>                 refund after dispute timeout
  escrow refund <task-id>                        refund an active escrow (requestor)
  escrow status <task-id>                        read the escrow record
  criteria set <task-id> <file>                  commit acceptance criteria digest
  deliverable submit <task-id> <file>            commit deliverable digest
  trail <task-id>                                read the verification trail
  stats <worker-address>                         read a worker's registry stats
  verify run [-sandbox] <workdir> <criteria-file>     run the acceptance script
  verify judge <description> <criteria-file> <deliverable-file>  ask the AI judge
  verify record <task-id> <report-file> <passed|failed>  commit the verdict on chain
  reputation [-from-block N] <address>           build a trust profile from escrow history
  msg task <title> [budget]                      print a task posting envelope
  msg bid <task-id> <worker> <price>             print a bid envelope
  msg validate <file|->                          parse and validate an envelope
  guard status                                   show wallet guard limits and usage
  dashboard                                      print the activity snapshot as JSON
`)
}

func cmdVersion(_ []string) error {
	fmt.Printf("swarm %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.BuildDate)
	return nil
}

// app lazily builds chain clients from the resolved config.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (a *app) dial() (*ethclient.Client, error) {
	client, err := ethclient.Dial(a.cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", a.cfg.Chain.RPCURL, err)
	}
	return client, nil
}

func (a *app) sender() (*chain.Sender, error) {
	if a.cfg.PrivateKey == "" {
		return nil, errors.New("PRIVATE_KEY is not set")
	}
	wallet, err := chain.NewWallet(a.cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	client, err := a.dial()
	if err != nil {
		return nil, err
	}
	gcfg, err := guard.LoadConfig(a.cfg.GuardFile)
	if err != nil {
		return nil, err
	}
	g := guard.New(gcfg, auditFile, a.logger)
	return chain.NewSender(client, wallet, g), nil
}

func (a *app) escrowClient() (*escrow.Client, error) {
	s, err := a.sender()
	if err != nil {
		return nil, err
	}
	return escrow.NewClient(s, common.HexToAddress(a.cfg.Contracts.Escrow)), nil
}

func (a *app) registryClient() (*registry.Client, error) {
	s, err := a.sender()
	if err != nil {
		return nil, err
	}
	return registry.NewClient(s, common.HexToAddress(a.cfg.Contracts.Registry)), nil
}

// store opens the activity log. Logging is best effort: a nil store means
// the command proceeds without dashboard records.
func (a *app) store() *state.Store {
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		a.logger.Warn("data dir unavailable", "dir", a.cfg.DataDir, "error", err)
		return nil
	}
	st, err := state.Open(filepath.Join(a.cfg.DataDir, "swarm.db"))
	if err != nil {
		a.logger.Warn("activity log unavailable", "error", err)
		return nil
	}
	return st
}

// --- escrow ---

func (a *app) cmdEscrow(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: swarm escrow <create|release|dispute|resolve|claim-timeout|refund|status> <task-id> ...")
	}
	sub, taskID := args[0], args[1]
	rest := args[2:]

	if sub == "create" {
		return a.escrowCreate(ctx, taskID, rest)
	}
	if sub == "status" {
		cl, err := a.escrowClient()
		if err != nil {
			return err
		}
		info, err := cl.Status(ctx, taskID)
		if err != nil {
			return err
		}
		fmt.Printf("escrow %s\n  status:    %s\n  requestor: %s\n  worker:    %s\n  amount:    %s USDC\n  deadline:  %s\n",
			taskID, info.Status, info.Requestor, info.Worker, info.Amount,
			time.Unix(info.Deadline, 0).UTC().Format(time.RFC3339))
		return nil
	}

	cl, err := a.escrowClient()
	if err != nil {
		return err
	}
	var res *escrow.TxResult
	var newStatus string
	switch sub {
	case "release":
		res, err = cl.Release(ctx, taskID)
		newStatus = "released"
	case "dispute":
		res, err = cl.Dispute(ctx, taskID)
		newStatus = "disputed"
	case "resolve":
		if len(rest) < 1 || (rest[0] != "worker" && rest[0] != "requestor") {
			return errors.New("usage: swarm escrow resolve <task-id> <worker|requestor>")
		}
		res, err = cl.ResolveDispute(ctx, taskID, rest[0] == "worker")
		newStatus = "released"
		if rest[0] == "requestor" {
			newStatus = "refunded"
		}
	case "claim-timeout":
		res, err = cl.ClaimDisputeTimeout(ctx, taskID)
		newStatus = "refunded"
	case "refund":
		res, err = cl.Refund(ctx, taskID)
		newStatus = "refunded"
	default:
		return fmt.Errorf("unknown escrow subcommand: %s", sub)
	}
	if err != nil {
		return err
	}
	fmt.Printf("escrow %s %s\n  tx: %s\n", taskID, newStatus, res.TxHash)

	if st := a.store(); st != nil {
		defer st.Close()
		if err := st.UpdateEscrow(ctx, taskID, newStatus, res.TxHash.Hex()); err != nil {
			a.logger.Warn("activity log write failed", "error", err)
		}
	}
	return nil
}

func (a *app) escrowCreate(ctx context.Context, taskID string, rest []string) error {
	if len(rest) < 2 {
		return errors.New("usage: swarm escrow create <task-id> <worker> <amount> [deadline-hours]")
	}
	worker, amount := rest[0], rest[1]
	if !common.IsHexAddress(worker) {
		return fmt.Errorf("invalid worker address %q", worker)
	}
	hours := 24.0
	if len(rest) > 2 {
		h, err := strconv.ParseFloat(rest[2], 64)
		if err != nil || h <= 0 {
			return fmt.Errorf("invalid deadline hours %q", rest[2])
		}
		hours = h
	}
	deadline := time.Now().Add(time.Duration(hours * float64(time.Hour))).Unix()

	s, err := a.sender()
	if err != nil {
		return err
	}
	cl := escrow.NewClient(s, common.HexToAddress(a.cfg.Contracts.Escrow))
	res, err := cl.CreateEscrow(ctx, escrow.CreateParams{
		TaskID:   taskID,
		Worker:   common.HexToAddress(worker),
		Amount:   amount,
		Deadline: deadline,
	})
	if err != nil {
		return err
	}
	fmt.Printf("escrow created for %s\n  amount:    %s USDC\n  task hash: %s\n  tx:        %s\n",
		taskID, amount, res.TaskHash, res.TxHash)

	if st := a.store(); st != nil {
		defer st.Close()
		err := st.LogEscrow(ctx, state.EscrowRecord{
			TaskID:    taskID,
			Requestor: strings.ToLower(s.From().Hex()),
			Worker:    strings.ToLower(worker),
			Amount:    amount,
			Deadline:  deadline,
			TxHash:    res.TxHash.Hex(),
		})
		if err != nil {
			a.logger.Warn("activity log write failed", "error", err)
		}
	}
	return nil
}

// --- registry ---

func (a *app) cmdCriteria(ctx context.Context, args []string) error {
	if len(args) < 3 || args[0] != "set" {
		return errors.New("usage: swarm criteria set <task-id> <file>")
	}
	content, err := os.ReadFile(args[2])
	if err != nil {
		return err
	}
	cl, err := a.registryClient()
	if err != nil {
		return err
	}
	rec, err := cl.SetCriteria(ctx, args[1], content)
	if err != nil {
		return err
	}
	fmt.Printf("criteria set for %s\n  hash: %s\n  tx:   %s\n", args[1], rec.Hash, rec.TxHash)
	return nil
}

func (a *app) cmdDeliverable(ctx context.Context, args []string) error {
	if len(args) < 3 || args[0] != "submit" {
		return errors.New("usage: swarm deliverable submit <task-id> <file>")
	}
	content, err := os.ReadFile(args[2])
	if err != nil {
		return err
	}
	cl, err := a.registryClient()
	if err != nil {
		return err
	}
	rec, err := cl.SubmitDeliverable(ctx, args[1], content)
	if err != nil {
		return err
	}
	fmt.Printf("deliverable submitted for %s\n  hash: %s\n  tx:   %s\n", args[1], rec.Hash, rec.TxHash)
	return nil
}

func (a *app) cmdTrail(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: swarm trail <task-id>")
	}
	cl, err := a.registryClient()
	if err != nil {
		return err
	}
	tr, err := cl.Trail(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("verification trail for %s\n", args[0])
	fmt.Printf("  criteria:     %s\n", tr.CriteriaHash)
	fmt.Printf("  deliverable:  %s (worker %s)\n", tr.DeliverableHash, tr.Worker)
	if tr.Verified {
		verdict := "failed"
		if tr.Passed {
			verdict = "passed"
		}
		fmt.Printf("  verification: %s, %s (verifier %s)\n", tr.VerificationHash, verdict, tr.Verifier)
	} else {
		fmt.Println("  verification: none recorded")
	}
	return nil
}

func (a *app) cmdStats(ctx context.Context, args []string) error {
	if len(args) < 1 || !common.IsHexAddress(args[0]) {
		return errors.New("usage: swarm stats <worker-address>")
	}
	cl, err := a.registryClient()
	if err != nil {
		return err
	}
	st, err := cl.WorkerStats(ctx, common.HexToAddress(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("worker %s\n  submissions: %d\n  verified:    %d\n  passed:      %d\n  pass rate:   %s\n",
		args[0], st.Submissions, st.Verified, st.Passed, st.PassRate)
	return nil
}

// --- verify ---

func (a *app) cmdVerify(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: swarm verify <run|judge|record> ...")
	}
	switch args[0] {
	case "run":
		return a.verifyRun(ctx, args[1:])
	case "judge":
		return a.verifyJudge(ctx, args[1:])
	case "record":
		return a.verifyRecord(ctx, args[1:])
	}
	return fmt.Errorf("unknown verify subcommand: %s", args[0])
}

func (a *app) verifyRun(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("verify run", flag.ContinueOnError)
	sandboxed := fs.Bool("sandbox", false, "run inside a Docker container")
	image := fs.String("image", "", "sandbox image")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: swarm verify run [-sandbox] <workdir> <criteria-file>")
	}
	workDir := fs.Arg(0)
	criteria, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}

	var report *verify.Report
	if *sandboxed {
		sb := verify.NewSandbox(*image)
		defer sb.Close()
		if !sb.Available() {
			return errors.New("docker daemon unreachable, rerun without -sandbox or start docker")
		}
		report, err = sb.Run(ctx, workDir, string(criteria))
	} else {
		report, err = verify.RunScript(ctx, workDir, string(criteria))
	}
	if err != nil {
		return err
	}
	fmt.Printf("outcome: %s\n%s\n", report.Outcome, report.Summary)
	if report.Stdout != "" {
		fmt.Printf("--- stdout ---\n%s\n", report.Stdout)
	}
	if report.Stderr != "" {
		fmt.Printf("--- stderr ---\n%s\n", report.Stderr)
	}
	if report.Outcome != verify.Passed {
		os.Exit(2)
	}
	return nil
}

func (a *app) verifyJudge(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: swarm verify judge <description> <criteria-file> <deliverable-file>")
	}
	criteria, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	deliverable, err := os.ReadFile(args[2])
	if err != nil {
		return err
	}

	var providers []provider.Provider
	if a.cfg.Providers.AnthropicKey != "" {
		providers = append(providers, provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey: a.cfg.Providers.AnthropicKey,
			Model:  a.cfg.Providers.AnthropicModel,
		}))
	}
	if a.cfg.Providers.OpenAIKey != "" {
		providers = append(providers, provider.NewOpenAIProvider(provider.OpenAIConfig{
			APIKey: a.cfg.Providers.OpenAIKey,
			Model:  a.cfg.Providers.OpenAIModel,
		}))
	}
	if len(providers) == 0 {
		return errors.New("no provider API keys configured (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
	}

	judge := verify.NewJudge(a.logger, providers...)
	verdict, err := judge.Judge(ctx, args[0], string(criteria), string(deliverable))
	if err != nil {
		return err
	}
	fmt.Printf("outcome: %s (model %s)\n", verdict.Outcome, verdict.Model)
	if verdict.Outcome != verify.Inconclusive {
		fmt.Printf("score: %d/10 (completeness %d, correctness %d, relevance %d)\n",
			verdict.Score, verdict.Completeness, verdict.Correctness, verdict.Relevance)
		fmt.Println(verdict.Summary)
	}
	return nil
}

func (a *app) verifyRecord(ctx context.Context, args []string) error {
	if len(args) < 3 || (args[2] != "passed" && args[2] != "failed") {
		return errors.New("usage: swarm verify record <task-id> <report-file> <passed|failed>")
	}
	report, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	cl, err := a.registryClient()
	if err != nil {
		return err
	}
	rec, err := cl.RecordVerification(ctx, args[0], report, args[2] == "passed")
	if err != nil {
		return err
	}
	fmt.Printf("verification recorded for %s (%s)\n  hash: %s\n  tx:   %s\n", args[0], args[2], rec.Hash, rec.TxHash)
	return nil
}

// --- reputation ---

func (a *app) cmdReputation(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reputation", flag.ContinueOnError)
	fromBlock := fs.Uint64("from-block", 0, "first block to scan (default: contract deployment)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || !common.IsHexAddress(fs.Arg(0)) {
		return errors.New("usage: swarm reputation [-from-block N] <address>")
	}
	agent := common.HexToAddress(fs.Arg(0))

	client, err := a.dial()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	cache, err := reputation.NewSQLiteStore(filepath.Join(a.cfg.DataDir, "reputation.db"))
	if err != nil {
		return err
	}
	defer cache.Close()

	builder := reputation.NewBuilder(client, reputation.Config{
		Contract:  common.HexToAddress(a.cfg.Contracts.Escrow),
		FromBlock: *fromBlock,
		Store:     cache,
		Logger:    a.logger,
	})
	profile, err := builder.Build(ctx, agent)
	if err != nil {
		return err
	}
	fmt.Println(profile.Format())

	if st := a.store(); st != nil {
		defer st.Close()
		if err := st.LogReputation(ctx, strings.ToLower(agent.Hex()), profile.TrustScore); err != nil {
			a.logger.Warn("activity log write failed", "error", err)
		}
	}
	return nil
}

// --- msg ---

func cmdMsg(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: swarm msg <task|bid|validate> ...")
	}
	switch args[0] {
	case "task":
		if len(args) < 2 {
			return errors.New("usage: swarm msg task <title> [budget]")
		}
		budget := ""
		if len(args) > 2 {
			budget = args[2]
		}
		task := protocol.NewTask(protocol.TaskParams{
			ID:     "task-" + uuid.NewString(),
			Title:  args[1],
			Budget: budget,
		})
		return printEnvelope(task)
	case "bid":
		if len(args) < 4 {
			return errors.New("usage: swarm msg bid <task-id> <worker> <price>")
		}
		return printEnvelope(protocol.NewBid(args[1], args[2], args[3], ""))
	case "validate":
		if len(args) < 2 {
			return errors.New("usage: swarm msg validate <file|->")
		}
		var data []byte
		var err error
		if args[1] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[1])
		}
		if err != nil {
			return err
		}
		msg := protocol.ParseMessage(string(data))
		if msg == nil {
			return errors.New("not a protocol message")
		}
		if !msg.Valid() {
			return fmt.Errorf("malformed %s message", msg.MessageType())
		}
		fmt.Printf("valid %s message\n", msg.MessageType())
		return nil
	}
	return fmt.Errorf("unknown msg subcommand: %s", args[0])
}

func printEnvelope(m protocol.Message) error {
	if !m.Valid() {
		return errors.New("message fails validation, check the field limits")
	}
	s, err := protocol.Serialize(m)
	if err != nil {
		return err
	}
	fmt.Println(s)
	return nil
}

// --- guard ---

func (a *app) cmdGuard(args []string) error {
	if len(args) < 1 || args[0] != "status" {
		return errors.New("usage: swarm guard status")
	}
	gcfg, err := guard.LoadConfig(a.cfg.GuardFile)
	if err != nil {
		return err
	}
	g := guard.New(gcfg, auditFile, a.logger)
	fmt.Println(g.Status().Format())
	return nil
}

// --- dashboard ---

func (a *app) cmdDashboard(ctx context.Context, _ []string) error {
	st := a.store()
	if st == nil {
		return errors.New("activity log unavailable")
	}
	defer st.Close()
	snap, err := st.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
