package chaintest

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GoCodeAlone/swarm/registry"
)

type trailRecord struct {
	deliverableHash  common.Hash
	criteriaHash     common.Hash
	verificationHash common.Hash
	worker           common.Address
	verifier         common.Address
	submittedAt      int64
	verifiedAt       int64
	verified         bool
	passed           bool
}

type workerCounters struct {
	submissions int64
	verified    int64
	passed      int64
}

// Registry mirrors the VerificationRegistry contract: one append-only trail
// per task, running counters per worker. Deliverables are submitted once and
// verified once.
type Registry struct {
	mu      sync.Mutex
	addr    common.Address
	records map[common.Hash]*trailRecord
	stats   map[common.Address]*workerCounters
}

// NewRegistry returns a registry contract at addr.
func NewRegistry(addr common.Address) *Registry {
	return &Registry{
		addr:    addr,
		records: make(map[common.Hash]*trailRecord),
		stats:   make(map[common.Address]*workerCounters),
	}
}

func (r *Registry) Run(call Call) ([]byte, []types.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(call.Data) < 4 {
		return nil, nil, revert("missing selector")
	}
	method, err := registry.ContractABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, nil, revert("unknown selector")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, nil, revert("malformed calldata")
	}

	switch method.Name {
	case "setCriteria":
		return r.setCriteria(call, taskArg(args), common.Hash(args[1].([32]byte)))
	case "submitDeliverable":
		return r.submitDeliverable(call, taskArg(args), common.Hash(args[1].([32]byte)))
	case "recordVerification":
		return r.recordVerification(call, taskArg(args), common.Hash(args[1].([32]byte)), args[2].(bool))
	case "getDeliverable":
		rec := r.record(taskArg(args))
		ret, err := method.Outputs.Pack(
			[32]byte(rec.deliverableHash), [32]byte(rec.criteriaHash), [32]byte(rec.verificationHash),
			rec.worker, rec.verifier,
			big.NewInt(rec.submittedAt), big.NewInt(rec.verifiedAt),
			rec.verified, rec.passed)
		return ret, nil, err
	case "getWorkerStats":
		s := r.stats[args[0].(common.Address)]
		if s == nil {
			s = &workerCounters{}
		}
		ret, err := method.Outputs.Pack(big.NewInt(s.submissions), big.NewInt(s.verified), big.NewInt(s.passed))
		return ret, nil, err
	}
	return nil, nil, revert("unknown method %s", method.Name)
}

func (r *Registry) record(taskID common.Hash) trailRecord {
	if rec, ok := r.records[taskID]; ok {
		return *rec
	}
	return trailRecord{}
}

func (r *Registry) setCriteria(call Call, taskID, criteriaHash common.Hash) ([]byte, []types.Log, error) {
	if !call.Commit {
		return nil, nil, nil
	}
	rec := r.ensure(taskID)
	rec.criteriaHash = criteriaHash
	lg := eventLog(registry.ContractABI, r.addr, "CriteriaSet",
		[]common.Hash{taskID, addressTopic(call.From)}, [32]byte(criteriaHash))
	return nil, []types.Log{lg}, nil
}

func (r *Registry) submitDeliverable(call Call, taskID, deliverableHash common.Hash) ([]byte, []types.Log, error) {
	rec := r.ensure(taskID)
	if rec.deliverableHash != (common.Hash{}) {
		return nil, nil, revert("deliverable already submitted")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	rec.deliverableHash = deliverableHash
	rec.worker = call.From
	rec.submittedAt = call.Time
	r.counters(call.From).submissions++
	lg := eventLog(registry.ContractABI, r.addr, "DeliverableSubmitted",
		[]common.Hash{taskID, addressTopic(call.From)}, [32]byte(deliverableHash))
	return nil, []types.Log{lg}, nil
}

func (r *Registry) recordVerification(call Call, taskID, verificationHash common.Hash, passed bool) ([]byte, []types.Log, error) {
	rec, ok := r.records[taskID]
	if !ok || rec.deliverableHash == (common.Hash{}) {
		return nil, nil, revert("no deliverable")
	}
	if rec.verified {
		return nil, nil, revert("already verified")
	}
	if !call.Commit {
		return nil, nil, nil
	}
	rec.verificationHash = verificationHash
	rec.verifier = call.From
	rec.verifiedAt = call.Time
	rec.verified = true
	rec.passed = passed
	counters := r.counters(rec.worker)
	counters.verified++
	if passed {
		counters.passed++
	}
	lg := eventLog(registry.ContractABI, r.addr, "VerificationRecorded",
		[]common.Hash{taskID, addressTopic(call.From)}, [32]byte(verificationHash), passed)
	return nil, []types.Log{lg}, nil
}

func (r *Registry) ensure(taskID common.Hash) *trailRecord {
	rec, ok := r.records[taskID]
	if !ok {
		rec = &trailRecord{}
		r.records[taskID] = rec
	}
	return rec
}

func (r *Registry) counters(worker common.Address) *workerCounters {
	s, ok := r.stats[worker]
	if !ok {
		s = &workerCounters{}
		r.stats[worker] = s
	}
	return s
}

func addressTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}
