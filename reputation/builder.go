package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GoCodeAlone/swarm/chain"
	"github.com/GoCodeAlone/swarm/escrow"
)

const (
	// DefaultFromBlock is the TaskEscrow deployment block on Base mainnet.
	DefaultFromBlock = 42_490_000

	// chunkSize keeps each log query under the common RPC provider range cap.
	chunkSize = 9999

	scanAttempts = 3
)

// Config tunes a Builder.
type Config struct {
	// Contract is the TaskEscrow address whose events are replayed.
	Contract common.Address
	// FromBlock is the first block ever scanned; defaults to the contract's
	// mainnet deployment block.
	FromBlock uint64
	// Store caches scan watermarks; defaults to an in-memory store.
	Store Store
	// RetryBase scales the linear backoff between chunk retries; defaults
	// to one second.
	RetryBase time.Duration
	Logger    *slog.Logger
}

// Builder replays escrow events into reputation profiles.
type Builder struct {
	backend   chain.Backend
	contract  common.Address
	fromBlock uint64
	store     Store
	retryBase time.Duration
	logger    *slog.Logger
}

// NewBuilder returns a builder over backend configured by cfg.
func NewBuilder(backend chain.Backend, cfg Config) *Builder {
	if cfg.FromBlock == 0 {
		cfg.FromBlock = DefaultFromBlock
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Builder{
		backend:   backend,
		contract:  cfg.Contract,
		fromBlock: cfg.FromBlock,
		store:     cfg.Store,
		retryBase: cfg.RetryBase,
		logger:    cfg.Logger,
	}
}

// Build replays escrow history and computes the profile for agent. Scans
// resume from the cached watermark; a cache read failure falls back to a
// full rescan rather than failing the query. A chunk that still fails after
// all retries aborts the build: stale numbers are never passed off as
// current.
func (b *Builder) Build(ctx context.Context, agent common.Address) (*Profile, error) {
	key := cacheKey(b.contract, agent)

	tasks := make(map[string]TaskRecord)
	start := b.fromBlock
	entry, err := b.store.Get(ctx, key)
	if err != nil {
		b.logger.Warn("reputation cache read failed, rescanning from genesis block",
			"key", key, "error", err)
		entry = nil
	}
	if entry != nil {
		start = entry.LastScannedBlock + 1
		for k, v := range entry.Tasks {
			tasks[k] = v
		}
	}

	current, err := b.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("current block: %w", err)
	}

	if start <= current {
		if err := b.scan(ctx, start, current, tasks); err != nil {
			return nil, err
		}
		if err := b.store.Put(ctx, key, &Entry{LastScannedBlock: current, Tasks: tasks}); err != nil {
			b.logger.Warn("reputation cache write failed", "key", key, "error", err)
		}
	}

	return b.profile(agent, tasks), nil
}

func cacheKey(contract, agent common.Address) string {
	return strings.ToLower(contract.Hex()) + ":" + strings.ToLower(agent.Hex())
}

var escrowEventIDs = struct {
	created  common.Hash
	released common.Hash
	disputed common.Hash
	refunded common.Hash
}{
	created:  escrow.ContractABI.Events["EscrowCreated"].ID,
	released: escrow.ContractABI.Events["EscrowReleased"].ID,
	disputed: escrow.ContractABI.Events["EscrowDisputed"].ID,
	refunded: escrow.ContractABI.Events["EscrowRefunded"].ID,
}

// scan replays all four escrow events over [start, end] into tasks, one
// chunk at a time. Each chunk gets scanAttempts tries with linear backoff.
func (b *Builder) scan(ctx context.Context, start, end uint64, tasks map[string]TaskRecord) error {
	for chunkStart := start; chunkStart <= end; chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize - 1
		if chunkEnd > end {
			chunkEnd = end
		}
		logs, err := b.queryChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			return fmt.Errorf("scan blocks %d-%d: %w", chunkStart, chunkEnd, err)
		}
		for _, lg := range logs {
			b.apply(lg, tasks)
		}
	}
	return nil
}

func (b *Builder) queryChunk(ctx context.Context, from, to uint64) ([]types.Log, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{b.contract},
		Topics: [][]common.Hash{{
			escrowEventIDs.created,
			escrowEventIDs.released,
			escrowEventIDs.disputed,
			escrowEventIDs.refunded,
		}},
	}
	var lastErr error
	for attempt := 0; attempt < scanAttempts; attempt++ {
		logs, err := b.backend.FilterLogs(ctx, q)
		if err == nil {
			return logs, nil
		}
		lastErr = err
		if attempt < scanAttempts-1 {
			b.logger.Debug("log query failed, retrying",
				"from", from, "to", to, "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.retryBase * time.Duration(attempt+1)):
			}
		}
	}
	return nil, lastErr
}

func (b *Builder) apply(lg types.Log, tasks map[string]TaskRecord) {
	if len(lg.Topics) < 2 {
		return
	}
	taskID := lg.Topics[1].Hex()

	switch lg.Topics[0] {
	case escrowEventIDs.created:
		vals, err := escrow.ContractABI.Events["EscrowCreated"].Inputs.NonIndexed().Unpack(lg.Data)
		if err != nil {
			b.logger.Warn("undecodable EscrowCreated event", "block", lg.BlockNumber, "error", err)
			return
		}
		tasks[taskID] = TaskRecord{
			Requestor: strings.ToLower(vals[0].(common.Address).Hex()),
			Worker:    strings.ToLower(vals[1].(common.Address).Hex()),
			Amount:    vals[2].(*big.Int).String(),
			Deadline:  vals[3].(*big.Int).Int64(),
			Status:    taskActive,
			Block:     lg.BlockNumber,
		}
	case escrowEventIDs.released:
		setStatus(tasks, taskID, taskReleased)
	case escrowEventIDs.disputed:
		setStatus(tasks, taskID, taskDisputed)
	case escrowEventIDs.refunded:
		setStatus(tasks, taskID, taskRefunded)
	}
}

func setStatus(tasks map[string]TaskRecord, taskID, status string) {
	if t, ok := tasks[taskID]; ok {
		t.Status = status
		tasks[taskID] = t
	}
}

func (b *Builder) profile(agent common.Address, tasks map[string]TaskRecord) *Profile {
	addr := strings.ToLower(agent.Hex())
	worker := tally{value: new(big.Int)}
	requestor := tally{value: new(big.Int)}

	for _, t := range tasks {
		amount, ok := new(big.Int).SetString(t.Amount, 10)
		if !ok {
			amount = new(big.Int)
		}
		if t.Worker == addr {
			switch t.Status {
			case taskReleased:
				worker.completed++
				worker.value.Add(worker.value, amount)
			case taskDisputed:
				worker.disputed++
			case taskRefunded:
				worker.refunded++
			default:
				worker.active++
			}
		}
		if t.Requestor == addr {
			switch t.Status {
			case taskReleased:
				requestor.completed++
				requestor.value.Add(requestor.value, amount)
			case taskDisputed:
				requestor.disputed++
			case taskRefunded:
				requestor.refunded++
			default:
				requestor.active++
			}
		}
	}

	return &Profile{
		Address: agent,
		Worker: WorkerSide{
			JobsCompleted:  worker.completed,
			JobsDisputed:   worker.disputed,
			JobsRefunded:   worker.refunded,
			JobsActive:     worker.active,
			TotalEarned:    chain.FormatUnits(worker.value, 6),
			CompletionRate: rate(worker.completed, worker.settled()),
			DisputeRate:    rate(worker.disputed, worker.settled()),
		},
		Requestor: RequestorSide{
			JobsPosted:     requestor.settled() + requestor.active,
			JobsCompleted:  requestor.completed,
			JobsDisputed:   requestor.disputed,
			TotalSpent:     chain.FormatUnits(requestor.value, 6),
			CompletionRate: rate(requestor.completed, requestor.settled()),
		},
		TrustScore:  trustScore(worker, requestor),
		LastUpdated: time.Now().UTC(),
	}
}
