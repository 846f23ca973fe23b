package reputation_test

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GoCodeAlone/swarm/chain"
	"github.com/GoCodeAlone/swarm/chain/chaintest"
	"github.com/GoCodeAlone/swarm/escrow"
	"github.com/GoCodeAlone/swarm/reputation"
)

var (
	tokenAddr  = common.HexToAddress("0x0000000000000000000000000000000000003001")
	escrowAddr = common.HexToAddress("0x0000000000000000000000000000000000003002")
)

type fixture struct {
	backend    *chaintest.Backend
	token      *chaintest.Token
	requestor  *escrow.Client
	worker     *escrow.Client
	arbitrator *escrow.Client
	reqAddr    common.Address
	workAddr   common.Address
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := chaintest.NewBackend()
	token := chaintest.NewToken(tokenAddr, 6)
	backend.Register(tokenAddr, token)

	reqWallet, err := chain.GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	workWallet, err := chain.GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	arbWallet, err := chain.GenerateWallet()
	if err != nil {
		t.Fatalf("generate wallet: %v", err)
	}
	backend.Register(escrowAddr, chaintest.NewEscrow(escrowAddr, tokenAddr, token, arbWallet.Address(), 3600))
	token.Mint(reqWallet.Address(), big.NewInt(100_000_000_000))

	return &fixture{
		backend:    backend,
		token:      token,
		requestor:  escrow.NewClient(chain.NewSender(backend, reqWallet, nil), escrowAddr),
		worker:     escrow.NewClient(chain.NewSender(backend, workWallet, nil), escrowAddr),
		arbitrator: escrow.NewClient(chain.NewSender(backend, arbWallet, nil), escrowAddr),
		reqAddr:    reqWallet.Address(),
		workAddr:   workWallet.Address(),
	}
}

func (f *fixture) builder(store reputation.Store) *reputation.Builder {
	return reputation.NewBuilder(f.backend, reputation.Config{
		Contract:  escrowAddr,
		FromBlock: 1,
		Store:     store,
		RetryBase: time.Millisecond,
	})
}

func (f *fixture) fundAndRelease(t *testing.T, taskID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.requestor.CreateEscrow(ctx, escrow.CreateParams{
		TaskID:   taskID,
		Worker:   f.workAddr,
		Amount:   "100",
		Deadline: f.backend.Now() + 86400,
	})
	if err != nil {
		t.Fatalf("CreateEscrow %s: %v", taskID, err)
	}
	if _, err := f.requestor.Release(ctx, taskID); err != nil {
		t.Fatalf("Release %s: %v", taskID, err)
	}
}

func TestBuild_NoHistory(t *testing.T) {
	f := newFixture(t)
	p, err := f.builder(nil).Build(context.Background(), f.workAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.TrustScore != 0 {
		t.Errorf("trust score = %d, want 0 with no history", p.TrustScore)
	}
	if p.Worker.CompletionRate != "n/a" {
		t.Errorf("completion rate = %q, want n/a", p.Worker.CompletionRate)
	}
	if p.Worker.TotalEarned != "0" {
		t.Errorf("total earned = %q, want 0", p.Worker.TotalEarned)
	}
}

func TestBuild_CleanWorkerHistory(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.fundAndRelease(t, fmt.Sprintf("task-%d", i))
	}

	p, err := f.builder(nil).Build(context.Background(), f.workAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Worker.JobsCompleted != 10 {
		t.Errorf("jobs completed = %d, want 10", p.Worker.JobsCompleted)
	}
	if p.Worker.TotalEarned != "1000" {
		t.Errorf("total earned = %q, want 1000", p.Worker.TotalEarned)
	}
	if p.Worker.CompletionRate != "100.0%" {
		t.Errorf("completion rate = %q", p.Worker.CompletionRate)
	}
	if p.TrustScore < 85 {
		t.Errorf("trust score = %d, want >= 85 for a clean record", p.TrustScore)
	}
}

func TestBuild_DisputeScarsButDoesNotZero(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 9; i++ {
		f.fundAndRelease(t, fmt.Sprintf("task-%d", i))
	}
	if _, err := f.requestor.CreateEscrow(ctx, escrow.CreateParams{
		TaskID: "task-disputed", Worker: f.workAddr, Amount: "100", Deadline: f.backend.Now() + 86400,
	}); err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	if _, err := f.requestor.Dispute(ctx, "task-disputed"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}

	p, err := f.builder(nil).Build(ctx, f.workAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Worker.JobsDisputed != 1 {
		t.Errorf("jobs disputed = %d, want 1", p.Worker.JobsDisputed)
	}
	if p.TrustScore == 0 {
		t.Error("one dispute zeroed the trust score")
	}
	if p.TrustScore >= 95 {
		t.Errorf("trust score = %d, dispute left no mark", p.TrustScore)
	}
	if p.Worker.DisputeRate != "10.0%" {
		t.Errorf("dispute rate = %q, want 10.0%%", p.Worker.DisputeRate)
	}
}

func TestBuild_RequestorSide(t *testing.T) {
	f := newFixture(t)
	f.fundAndRelease(t, "t1")

	p, err := f.builder(nil).Build(context.Background(), f.reqAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Requestor.JobsPosted != 1 || p.Requestor.JobsCompleted != 1 {
		t.Errorf("requestor side = %+v, want 1 posted 1 completed", p.Requestor)
	}
	if p.Requestor.TotalSpent != "100" {
		t.Errorf("total spent = %q, want 100", p.Requestor.TotalSpent)
	}
}

func TestBuild_IncrementalScanning(t *testing.T) {
	f := newFixture(t)
	store := reputation.NewMemoryStore()
	b := f.builder(store)
	ctx := context.Background()

	f.fundAndRelease(t, "t1")
	if _, err := b.Build(ctx, f.workAddr); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	firstQueries := len(f.backend.Queries)
	if firstQueries == 0 {
		t.Fatal("first build issued no log queries")
	}
	watermark, _ := f.backend.BlockNumber(ctx)

	// Nothing new on chain: the cached watermark covers everything.
	if _, err := b.Build(ctx, f.workAddr); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if got := len(f.backend.Queries); got != firstQueries {
		t.Errorf("up-to-date build issued %d extra queries", got-firstQueries)
	}

	// New activity: only blocks past the watermark get scanned.
	f.fundAndRelease(t, "t2")
	p, err := b.Build(ctx, f.workAddr)
	if err != nil {
		t.Fatalf("third Build: %v", err)
	}
	if p.Worker.JobsCompleted != 2 {
		t.Errorf("jobs completed = %d, want 2", p.Worker.JobsCompleted)
	}
	for _, q := range f.backend.Queries[firstQueries:] {
		if q.FromBlock.Uint64() <= watermark {
			t.Errorf("rescanned covered range: query from block %s, watermark %d", q.FromBlock, watermark)
		}
	}
}

func TestBuild_LateStatusForCachedTask(t *testing.T) {
	f := newFixture(t)
	store := reputation.NewMemoryStore()
	b := f.builder(store)
	ctx := context.Background()

	// Escrow created before the first scan, released after it. The release
	// event lands past the watermark but must still settle the cached task.
	if _, err := f.requestor.CreateEscrow(ctx, escrow.CreateParams{
		TaskID: "t1", Worker: f.workAddr, Amount: "100", Deadline: f.backend.Now() + 86400,
	}); err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	p, err := b.Build(ctx, f.workAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Worker.JobsActive != 1 {
		t.Fatalf("jobs active = %d, want 1", p.Worker.JobsActive)
	}

	if _, err := f.requestor.Release(ctx, "t1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	p, err = b.Build(ctx, f.workAddr)
	if err != nil {
		t.Fatalf("Build after release: %v", err)
	}
	if p.Worker.JobsCompleted != 1 || p.Worker.JobsActive != 0 {
		t.Errorf("profile = %+v, want the cached task settled", p.Worker)
	}
}

func TestBuild_ChunksLongRanges(t *testing.T) {
	f := newFixture(t)
	f.fundAndRelease(t, "t1")
	f.backend.AdvanceBlocks(25_000)

	if _, err := f.builder(nil).Build(context.Background(), f.workAddr); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(f.backend.Queries) < 3 {
		t.Fatalf("queries = %d, want the range split into chunks", len(f.backend.Queries))
	}
	var prevEnd uint64
	for i, q := range f.backend.Queries {
		from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
		if to-from+1 > 9999 {
			t.Errorf("chunk %d spans %d blocks, want at most 9999", i, to-from+1)
		}
		if i > 0 && from != prevEnd+1 {
			t.Errorf("chunk %d starts at %d, want contiguous after %d", i, from, prevEnd)
		}
		prevEnd = to
	}
}

// flakyBackend fails FilterLogs a set number of times before delegating.
type flakyBackend struct {
	chain.Backend
	failures int
	calls    int
}

func (f *flakyBackend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("rpc overloaded")
	}
	return f.Backend.FilterLogs(ctx, q)
}

func TestBuild_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t)
	f.fundAndRelease(t, "t1")

	flaky := &flakyBackend{Backend: f.backend, failures: 2}
	b := reputation.NewBuilder(flaky, reputation.Config{
		Contract: escrowAddr, FromBlock: 1, RetryBase: time.Millisecond,
	})
	p, err := b.Build(context.Background(), f.workAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Worker.JobsCompleted != 1 {
		t.Errorf("jobs completed = %d, want 1 after retries", p.Worker.JobsCompleted)
	}
}

func TestBuild_AbortsOnExhaustedRetries(t *testing.T) {
	f := newFixture(t)
	f.fundAndRelease(t, "t1")

	flaky := &flakyBackend{Backend: f.backend, failures: 1000}
	b := reputation.NewBuilder(flaky, reputation.Config{
		Contract: escrowAddr, FromBlock: 1, RetryBase: time.Millisecond,
	})
	if _, err := b.Build(context.Background(), f.workAddr); err == nil {
		t.Fatal("expected error when every retry fails")
	}
	if flaky.calls != 3 {
		t.Errorf("filter calls = %d, want exactly 3 attempts", flaky.calls)
	}
}

// failingStore errors on read to exercise the rescan fallback.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (*reputation.Entry, error) {
	return nil, errors.New("cache corrupt")
}
func (failingStore) Put(context.Context, string, *reputation.Entry) error { return nil }

func TestBuild_CacheReadFailureFallsBackToFullScan(t *testing.T) {
	f := newFixture(t)
	f.fundAndRelease(t, "t1")

	b := reputation.NewBuilder(f.backend, reputation.Config{
		Contract: escrowAddr, FromBlock: 1, Store: failingStore{}, RetryBase: time.Millisecond,
	})
	p, err := b.Build(context.Background(), f.workAddr)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if p.Worker.JobsCompleted != 1 {
		t.Errorf("jobs completed = %d, want full scan despite cache failure", p.Worker.JobsCompleted)
	}
}

func TestSQLiteStore_RoundTripAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rep.db")
	store, err := reputation.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()

	if e, err := store.Get(ctx, "missing"); err != nil || e != nil {
		t.Fatalf("Get(missing) = %v, %v; want nil, nil", e, err)
	}

	entry := &reputation.Entry{
		LastScannedBlock: 42,
		Tasks: map[string]reputation.TaskRecord{
			"0xabc": {Requestor: "0x1", Worker: "0x2", Amount: "100000000", Status: "released", Block: 40},
		},
	}
	if err := store.Put(ctx, "contract:addr", entry); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := reputation.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get(ctx, "contract:addr")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got == nil || got.LastScannedBlock != 42 {
		t.Fatalf("entry = %+v, want watermark 42", got)
	}
	if got.Tasks["0xabc"].Status != "released" {
		t.Errorf("task record = %+v", got.Tasks["0xabc"])
	}

	// Last writer wins.
	if err := reopened.Put(ctx, "contract:addr", &reputation.Entry{LastScannedBlock: 99, Tasks: map[string]reputation.TaskRecord{}}); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, _ = reopened.Get(ctx, "contract:addr")
	if got.LastScannedBlock != 99 {
		t.Errorf("watermark = %d, want 99 after overwrite", got.LastScannedBlock)
	}
}
