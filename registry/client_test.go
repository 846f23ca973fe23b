package registry_test

import (
	"context"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoCodeAlone/swarm/chain"
	"github.com/GoCodeAlone/swarm/chain/chaintest"
	"github.com/GoCodeAlone/swarm/escrow"
	"github.com/GoCodeAlone/swarm/registry"
)

var (
	tokenAddr    = common.HexToAddress("0x0000000000000000000000000000000000002001")
	escrowAddr   = common.HexToAddress("0x0000000000000000000000000000000000002002")
	registryAddr = common.HexToAddress("0x0000000000000000000000000000000000002003")
)

type fixture struct {
	backend   *chaintest.Backend
	token     *chaintest.Token
	requestor *registry.Client
	worker    *registry.Client
	escrowReq *escrow.Client
	reqAddr   common.Address
	workAddr  common.Address
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

	backend.Register(escrowAddr, chaintest.NewEscrow(escrowAddr, tokenAddr, token, reqWallet.Address(), 3600))
	backend.Register(registryAddr, chaintest.NewRegistry(registryAddr))
	token.Mint(reqWallet.Address(), big.NewInt(1_000_000_000))

	reqSender := chain.NewSender(backend, reqWallet, nil)
	workSender := chain.NewSender(backend, workWallet, nil)
	return &fixture{
		backend:   backend,
		token:     token,
		requestor: registry.NewClient(reqSender, registryAddr),
		worker:    registry.NewClient(workSender, registryAddr),
		escrowReq: escrow.NewClient(reqSender, escrowAddr),
		reqAddr:   reqWallet.Address(),
		workAddr:  workWallet.Address(),
	}
}

func TestHashContent(t *testing.T) {
	want := common.Hash(sha256.Sum256([]byte("hello world")))
	if got := registry.HashContent([]byte("hello world")); got != want {
		t.Errorf("HashContent = %s, want sha256 digest", got)
	}
	if registry.HashContent([]byte("a")) == registry.HashContent([]byte("b")) {
		t.Error("distinct content collides")
	}
}

func TestVerificationTrail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	criteria := []byte("output must contain hello")
	deliverable := []byte("hello world")
	report := []byte("checked: contains hello")

	cr, err := f.requestor.SetCriteria(ctx, "t1", criteria)
	if err != nil {
		t.Fatalf("SetCriteria: %v", err)
	}
	if cr.Hash != registry.HashContent(criteria) {
		t.Errorf("criteria hash = %s, want local sha256", cr.Hash)
	}

	sub, err := f.worker.SubmitDeliverable(ctx, "t1", deliverable)
	if err != nil {
		t.Fatalf("SubmitDeliverable: %v", err)
	}

	rec, err := f.requestor.RecordVerification(ctx, "t1", report, true)
	if err != nil {
		t.Fatalf("RecordVerification: %v", err)
	}

	trail, err := f.requestor.Trail(ctx, "t1")
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if trail.CriteriaHash != cr.Hash {
		t.Errorf("trail criteria hash = %s, want %s", trail.CriteriaHash, cr.Hash)
	}
	if trail.DeliverableHash != sub.Hash {
		t.Errorf("trail deliverable hash = %s, want %s", trail.DeliverableHash, sub.Hash)
	}
	if trail.VerificationHash != rec.Hash {
		t.Errorf("trail verification hash = %s, want %s", trail.VerificationHash, rec.Hash)
	}
	if trail.Worker != f.workAddr {
		t.Errorf("trail worker = %s, want %s", trail.Worker, f.workAddr)
	}
	if trail.Verifier != f.reqAddr {
		t.Errorf("trail verifier = %s, want %s", trail.Verifier, f.reqAddr)
	}
	if !trail.Verified || !trail.Passed {
		t.Errorf("trail verified/passed = %v/%v, want true/true", trail.Verified, trail.Passed)
	}
	if trail.SubmittedAt == 0 || trail.VerifiedAt < trail.SubmittedAt {
		t.Errorf("timestamps out of order: submitted %d, verified %d", trail.SubmittedAt, trail.VerifiedAt)
	}
}

func TestRecordVerification_RequiresDeliverable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.requestor.RecordVerification(context.Background(), "t1", []byte("report"), true); err == nil {
		t.Fatal("verification recorded with no deliverable on file")
	}
}

func TestWorkerStats_NoHistory(t *testing.T) {
	f := newFixture(t)
	stats, err := f.requestor.WorkerStats(context.Background(), f.workAddr)
	if err != nil {
		t.Fatalf("WorkerStats: %v", err)
	}
	if stats.Submissions != 0 || stats.Verified != 0 || stats.Passed != 0 {
		t.Errorf("stats = %+v, want zeros", stats)
	}
	if stats.PassRate != "N/A" {
		t.Errorf("pass rate = %q, want N/A", stats.PassRate)
	}
}

func TestWorkerStats_PassRate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i, passed := range []bool{true, true, false} {
		taskID := string(rune('a' + i))
		if _, err := f.worker.SubmitDeliverable(ctx, taskID, []byte("work "+taskID)); err != nil {
			t.Fatalf("SubmitDeliverable: %v", err)
		}
		if _, err := f.requestor.RecordVerification(ctx, taskID, []byte("report "+taskID), passed); err != nil {
			t.Fatalf("RecordVerification: %v", err)
		}
	}

	stats, err := f.requestor.WorkerStats(ctx, f.workAddr)
	if err != nil {
		t.Fatalf("WorkerStats: %v", err)
	}
	if stats.Submissions != 3 || stats.Verified != 3 || stats.Passed != 2 {
		t.Errorf("stats = %+v, want 3/3/2", stats)
	}
	if stats.PassRate != "66.7%" {
		t.Errorf("pass rate = %q, want 66.7%%", stats.PassRate)
	}
}

// Full happy path across escrow and registry: fund, set criteria, submit,
// verify, release, then check the trail and stats line up.
func TestEndToEndTaskLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	deliverable := []byte("hello world")

	created, err := f.escrowReq.CreateEscrow(ctx, escrow.CreateParams{
		TaskID:   "t1",
		Worker:   f.workAddr,
		Amount:   "100",
		Deadline: f.backend.Now() + 86400,
	})
	if err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}

	if _, err := f.requestor.SetCriteria(ctx, "t1", []byte("must greet the world")); err != nil {
		t.Fatalf("SetCriteria: %v", err)
	}
	if _, err := f.worker.SubmitDeliverable(ctx, "t1", deliverable); err != nil {
		t.Fatalf("SubmitDeliverable: %v", err)
	}
	if _, err := f.requestor.RecordVerification(ctx, "t1", []byte("all criteria met"), true); err != nil {
		t.Fatalf("RecordVerification: %v", err)
	}
	if _, err := f.escrowReq.Release(ctx, "t1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	info, err := f.escrowReq.Status(ctx, "t1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != escrow.StatusReleased {
		t.Errorf("escrow status = %s, want Released", info.Status)
	}
	if got := f.token.BalanceOf(f.workAddr); got.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Errorf("worker payout = %s, want 100 at 6 decimals", got)
	}

	trail, err := f.requestor.Trail(ctx, "t1")
	if err != nil {
		t.Fatalf("Trail: %v", err)
	}
	if trail.DeliverableHash != registry.HashContent(deliverable) {
		t.Errorf("deliverable hash mismatch")
	}
	if !trail.Passed {
		t.Error("trail shows failed verification")
	}

	stats, err := f.requestor.WorkerStats(ctx, f.workAddr)
	if err != nil {
		t.Fatalf("WorkerStats: %v", err)
	}
	if stats.Submissions != 1 || stats.Verified != 1 || stats.Passed != 1 {
		t.Errorf("stats = %+v, want 1/1/1", stats)
	}
	if stats.PassRate != "100.0%" {
		t.Errorf("pass rate = %q, want 100.0%%", stats.PassRate)
	}

	// The escrow keyed the deposit under the same digest the registry uses.
	if created.TaskHash != chain.HashTaskID("t1") {
		t.Errorf("task digest mismatch: %s", created.TaskHash)
	}
}
