package escrow_test

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoCodeAlone/swarm/chain"
	"github.com/GoCodeAlone/swarm/chain/chaintest"
	"github.com/GoCodeAlone/swarm/escrow"
)

var (
	tokenAddr  = common.HexToAddress("0x0000000000000000000000000000000000001001")
	escrowAddr = common.HexToAddress("0x0000000000000000000000000000000000001002")
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

	esc := chaintest.NewEscrow(escrowAddr, tokenAddr, token, arbWallet.Address(), 3600)
	backend.Register(escrowAddr, esc)

	token.Mint(reqWallet.Address(), big.NewInt(1_000_000_000)) // 1000 units at 6 decimals

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

func (f *fixture) create(t *testing.T, taskID, amount string) *escrow.CreateResult {
	t.Helper()
	res, err := f.requestor.CreateEscrow(context.Background(), escrow.CreateParams{
		TaskID:   taskID,
		Worker:   f.workAddr,
		Amount:   amount,
		Deadline: f.backend.Now() + 86400,
	})
	if err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}
	return res
}

func TestCreateEscrow(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, "t1", "100")

	if res.TaskHash != chain.HashTaskID("t1") {
		t.Errorf("task hash = %s, want keccak of task id", res.TaskHash)
	}
	info, err := f.requestor.Status(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != escrow.StatusActive {
		t.Errorf("status = %s, want Active", info.Status)
	}
	if info.Amount != "100" {
		t.Errorf("amount = %s, want 100", info.Amount)
	}
	if info.Worker != f.workAddr {
		t.Errorf("worker = %s, want %s", info.Worker, f.workAddr)
	}

	// Exactly one approval for the exact amount, never unlimited.
	if len(f.token.Approvals) != 1 {
		t.Fatalf("approvals = %d, want 1", len(f.token.Approvals))
	}
	if f.token.Approvals[0].Amount.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Errorf("approved %s, want exact escrow amount", f.token.Approvals[0].Amount)
	}
}

func TestCreateEscrow_ResetsStaleAllowance(t *testing.T) {
	f := newFixture(t)
	f.token.ForceApprove(f.reqAddr, escrowAddr, big.NewInt(5_000_000))

	f.create(t, "t1", "100")

	if len(f.token.Approvals) != 2 {
		t.Fatalf("approvals = %d, want reset then exact", len(f.token.Approvals))
	}
	if f.token.Approvals[0].Amount.Sign() != 0 {
		t.Errorf("first approval = %s, want 0 reset", f.token.Approvals[0].Amount)
	}
	if f.token.Approvals[1].Amount.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Errorf("second approval = %s, want exact amount", f.token.Approvals[1].Amount)
	}
}

func TestCreateEscrow_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.requestor.CreateEscrow(context.Background(), escrow.CreateParams{
		TaskID:   "t1",
		Worker:   f.workAddr,
		Amount:   "5000",
		Deadline: f.backend.Now() + 86400,
	})
	if err == nil {
		t.Fatal("expected revert for underfunded requestor")
	}
	if !strings.Contains(err.Error(), "exceeds balance") {
		t.Errorf("error = %v, want balance revert", err)
	}
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")

	if _, err := f.requestor.Release(context.Background(), "t1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	info, err := f.requestor.Status(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != escrow.StatusReleased {
		t.Errorf("status = %s, want Released", info.Status)
	}
	if got := f.token.BalanceOf(f.workAddr); got.Cmp(big.NewInt(100_000_000)) != 0 {
		t.Errorf("worker balance = %s, want full escrow amount", got)
	}
}

func TestRelease_OnlyRequestor(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")

	if _, err := f.worker.Release(context.Background(), "t1"); err == nil {
		t.Fatal("worker released its own escrow")
	}
	info, _ := f.requestor.Status(context.Background(), "t1")
	if info.Status != escrow.StatusActive {
		t.Errorf("status = %s after rejected release, want Active", info.Status)
	}
}

func TestDisputeAndResolveToRequestor(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")

	if _, err := f.worker.Dispute(context.Background(), "t1"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	info, _ := f.requestor.Status(context.Background(), "t1")
	if info.Status != escrow.StatusDisputed {
		t.Fatalf("status = %s, want Disputed", info.Status)
	}

	if _, err := f.arbitrator.ResolveDispute(context.Background(), "t1", false); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	info, _ = f.requestor.Status(context.Background(), "t1")
	if info.Status != escrow.StatusRefunded {
		t.Errorf("status = %s, want Refunded", info.Status)
	}
	if got := f.token.BalanceOf(f.reqAddr); got.Cmp(big.NewInt(1_000_000_000)) != 0 {
		t.Errorf("requestor balance = %s, want full refund", got)
	}
}

func TestResolveDispute_OnlyArbitrator(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")
	if _, err := f.worker.Dispute(context.Background(), "t1"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if _, err := f.requestor.ResolveDispute(context.Background(), "t1", false); err == nil {
		t.Fatal("requestor resolved its own dispute")
	}
}

func TestClaimDisputeTimeout(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")
	if _, err := f.requestor.Dispute(context.Background(), "t1"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}

	if _, err := f.worker.ClaimDisputeTimeout(context.Background(), "t1"); err == nil {
		t.Fatal("claimed before the dispute timeout elapsed")
	}

	f.backend.AdvanceTime(3600)
	if _, err := f.worker.ClaimDisputeTimeout(context.Background(), "t1"); err != nil {
		t.Fatalf("ClaimDisputeTimeout: %v", err)
	}
	info, _ := f.requestor.Status(context.Background(), "t1")
	if info.Status != escrow.StatusRefunded {
		t.Errorf("status = %s, want Refunded", info.Status)
	}
}

func TestReleaseAfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")

	if _, err := f.worker.ReleaseAfterDeadline(context.Background(), "t1"); err == nil {
		t.Fatal("released before deadline")
	}

	f.backend.AdvanceTime(86400 + 1)
	if _, err := f.worker.ReleaseAfterDeadline(context.Background(), "t1"); err != nil {
		t.Fatalf("ReleaseAfterDeadline: %v", err)
	}
	info, _ := f.requestor.Status(context.Background(), "t1")
	if info.Status != escrow.StatusReleased {
		t.Errorf("status = %s, want Released", info.Status)
	}
}

func TestTerminalStateRejectsFurtherOps(t *testing.T) {
	f := newFixture(t)
	f.create(t, "t1", "100")
	if _, err := f.requestor.Release(context.Background(), "t1"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := f.requestor.Dispute(context.Background(), "t1"); err == nil {
		t.Error("disputed a released escrow")
	}
	if _, err := f.requestor.Release(context.Background(), "t1"); err == nil {
		t.Error("double release")
	}
	if _, err := f.requestor.Refund(context.Background(), "t1"); err == nil {
		t.Error("refunded a released escrow")
	}
}

func TestStatus_UnfundedTask(t *testing.T) {
	f := newFixture(t)
	info, err := f.requestor.Status(context.Background(), "never-funded")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if info.Status != escrow.StatusNone {
		t.Errorf("status = %s, want None", info.Status)
	}
	if info.Amount != "0" {
		t.Errorf("amount = %s, want 0", info.Amount)
	}
}

func TestStatusName_BeyondRange(t *testing.T) {
	if got := escrow.StatusName(9); got != escrow.StatusUnknown {
		t.Errorf("StatusName(9) = %s, want Unknown", got)
	}
}
