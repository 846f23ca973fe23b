package chaintest

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GoCodeAlone/swarm/escrow"
)

const (
	statusNone uint8 = iota
	statusActive
	statusReleased
	statusDisputed
	statusRefunded
)

type escrowRecord struct {
	requestor common.Address
	worker    common.Address
	amount    *big.Int
	deadline  int64
	status    uint8
}

// Escrow mirrors the TaskEscrow contract's state machine: deposits walk
// None -> Active -> {Released, Disputed, Refunded}, funds sit on the token
// ledger under the contract's own address while Active.
type Escrow struct {
	mu             sync.Mutex
	addr           common.Address
	tokenAddr      common.Address
	token          *Token
	arbitrator     common.Address
	disputeTimeout int64
	records        map[common.Hash]*escrowRecord
	disputedAt     map[common.Hash]int64
}

// NewEscrow returns an escrow contract at addr settling in token.
func NewEscrow(addr, tokenAddr common.Address, token *Token, arbitrator common.Address, disputeTimeout int64) *Escrow {
	return &Escrow{
		addr:           addr,
		tokenAddr:      tokenAddr,
		token:          token,
		arbitrator:     arbitrator,
		disputeTimeout: disputeTimeout,
		records:        make(map[common.Hash]*escrowRecord),
		disputedAt:     make(map[common.Hash]int64),
	}
}

func (e *Escrow) Run(call Call) ([]byte, []types.Log, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(call.Data) < 4 {
		return nil, nil, revert("missing selector")
	}
	method, err := escrow.ContractABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, nil, revert("unknown selector")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, nil, revert("malformed calldata")
	}

	switch method.Name {
	case "createEscrow":
		return e.createEscrow(call, args)
	case "releaseEscrow":
		return e.releaseEscrow(call, taskArg(args))
	case "dispute":
		return e.dispute(call, taskArg(args))
	case "resolveDispute":
		return e.resolveDispute(call, common.Hash(args[0].([32]byte)), args[1].(bool))
	case "claimDisputeTimeout":
		return e.claimDisputeTimeout(call, taskArg(args))
	case "releaseAfterDeadline":
		return e.releaseAfterDeadline(call, taskArg(args))
	case "refund":
		return e.refund(call, taskArg(args))
	case "escrows":
		rec := e.record(taskArg(args))
		ret, err := method.Outputs.Pack(rec.requestor, rec.worker, rec.amount, big.NewInt(rec.deadline), rec.status)
		return ret, nil, err
	case "disputeTimestamps":
		ret, err := method.Outputs.Pack(big.NewInt(e.disputedAt[taskArg(args)]))
		return ret, nil, err
	case "disputeTimeout":
		ret, err := method.Outputs.Pack(big.NewInt(e.disputeTimeout))
		return ret, nil, err
	case "arbitrator":
		ret, err := method.Outputs.Pack(e.arbitrator)
		return ret, nil, err
	case "usdc":
		ret, err := method.Outputs.Pack(e.tokenAddr)
		return ret, nil, err
	}
	return nil, nil, revert("unknown method %s", method.Name)
}

func taskArg(args []any) common.Hash {
	return common.Hash(args[0].([32]byte))
}

func (e *Escrow) record(taskID common.Hash) escrowRecord {
	if rec, ok := e.records[taskID]; ok {
		return *rec
	}
	return escrowRecord{amount: new(big.Int)}
}

func (e *Escrow) createEscrow(call Call, args []any) ([]byte, []types.Log, error) {
	taskID := taskArg(args)
	worker := args[1].(common.Address)
	amount := args[2].(*big.Int)
	deadline := args[3].(*big.Int)

	if rec, ok := e.records[taskID]; ok && rec.status != statusNone {
		return nil, nil, revert("escrow already exists")
	}
	if amount.Sign() <= 0 {
		return nil, nil, revert("zero amount")
	}
	if worker == (common.Address{}) {
		return nil, nil, revert("zero worker")
	}
	if err := e.token.spendFrom(e.addr, call.From, e.addr, amount, call.Commit); err != nil {
		return nil, nil, err
	}
	if !call.Commit {
		return nil, nil, nil
	}
	e.records[taskID] = &escrowRecord{
		requestor: call.From,
		worker:    worker,
		amount:    new(big.Int).Set(amount),
		deadline:  deadline.Int64(),
		status:    statusActive,
	}
	lg := eventLog(escrow.ContractABI, e.addr, "EscrowCreated",
		[]common.Hash{taskID}, call.From, worker, amount, deadline)
	return nil, []types.Log{lg}, nil
}

func (e *Escrow) releaseEscrow(call Call, taskID common.Hash) ([]byte, []types.Log, error) {
	rec, ok := e.records[taskID]
	if !ok || rec.status != statusActive {
		return nil, nil, revert("escrow not active")
	}
	if call.From != rec.requestor {
		return nil, nil, revert("only requestor")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	return e.payWorker(taskID, rec)
}

func (e *Escrow) dispute(call Call, taskID common.Hash) ([]byte, []types.Log, error) {
	rec, ok := e.records[taskID]
	if !ok || rec.status != statusActive {
		return nil, nil, revert("escrow not active")
	}
	if call.From != rec.requestor && call.From != rec.worker {
		return nil, nil, revert("only party")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	rec.status = statusDisputed
	e.disputedAt[taskID] = call.Time
	lg := eventLog(escrow.ContractABI, e.addr, "EscrowDisputed",
		[]common.Hash{taskID}, call.From)
	return nil, []types.Log{lg}, nil
}

func (e *Escrow) resolveDispute(call Call, taskID common.Hash, releaseToWorker bool) ([]byte, []types.Log, error) {
	rec, ok := e.records[taskID]
	if !ok || rec.status != statusDisputed {
		return nil, nil, revert("escrow not disputed")
	}
	if call.From != e.arbitrator {
		return nil, nil, revert("only arbitrator")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	if releaseToWorker {
		return e.payWorker(taskID, rec)
	}
	return e.refundRequestor(taskID, rec)
}

func (e *Escrow) claimDisputeTimeout(call Call, taskID common.Hash) ([]byte, []types.Log, error) {
	rec, ok := e.records[taskID]
	if !ok || rec.status != statusDisputed {
		return nil, nil, revert("escrow not disputed")
	}
	if call.Time < e.disputedAt[taskID]+e.disputeTimeout {
		return nil, nil, revert("dispute timeout not reached")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	return e.refundRequestor(taskID, rec)
}

func (e *Escrow) releaseAfterDeadline(call Call, taskID common.Hash) ([]byte, []types.Log, error) {
	rec, ok := e.records[taskID]
	if !ok || rec.status != statusActive {
		return nil, nil, revert("escrow not active")
	}
	if call.Time < rec.deadline {
		return nil, nil, revert("deadline not reached")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	return e.payWorker(taskID, rec)
}

func (e *Escrow) refund(call Call, taskID common.Hash) ([]byte, []types.Log, error) {
	rec, ok := e.records[taskID]
	if !ok || rec.status != statusActive {
		return nil, nil, revert("escrow not active")
	}
	if call.From != rec.requestor {
		return nil, nil, revert("only requestor")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	return e.refundRequestor(taskID, rec)
}

func (e *Escrow) payWorker(taskID common.Hash, rec *escrowRecord) ([]byte, []types.Log, error) {
	if err := e.token.pay(e.addr, rec.worker, rec.amount); err != nil {
		return nil, nil, err
	}
	rec.status = statusReleased
	lg := eventLog(escrow.ContractABI, e.addr, "EscrowReleased",
		[]common.Hash{taskID}, rec.worker, rec.amount)
	return nil, []types.Log{lg}, nil
}

func (e *Escrow) refundRequestor(taskID common.Hash, rec *escrowRecord) ([]byte, []types.Log, error) {
	if err := e.token.pay(e.addr, rec.requestor, rec.amount); err != nil {
		return nil, nil, err
	}
	rec.status = statusRefunded
	lg := eventLog(escrow.ContractABI, e.addr, "EscrowRefunded",
		[]common.Hash{taskID}, rec.requestor, rec.amount)
	return nil, []types.Log{lg}, nil
}

// eventLog encodes an event the way a node would report it: topic 0 is the
// event signature, indexed args follow, the rest is ABI-packed data.
func eventLog(contract abi.ABI, addr common.Address, name string, indexed []common.Hash, data ...any) types.Log {
	event, ok := contract.Events[name]
	if !ok {
		panic("unknown event " + name)
	}
	packed, err := event.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address: addr,
		Topics:  append([]common.Hash{event.ID}, indexed...),
		Data:    packed,
	}
}
