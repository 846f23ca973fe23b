// Package registry commits verification trails to the on-chain
// VerificationRegistry. Content stays on the messaging transport; only
// SHA-256 digests touch the chain, so the trail proves what was agreed and
// delivered without publishing any of it.
package registry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoCodeAlone/swarm/chain"
)

// HashContent digests deliverable or criteria content for on-chain storage.
// SHA-256, not keccak: keccak is reserved for task identifiers.
func HashContent(content []byte) common.Hash {
	return common.Hash(sha256.Sum256(content))
}

// Client operates one VerificationRegistry deployment on behalf of one wallet.
type Client struct {
	sender   *chain.Sender
	contract common.Address
}

// NewClient returns a client for the registry contract at addr.
func NewClient(sender *chain.Sender, addr common.Address) *Client {
	return &Client{sender: sender, contract: addr}
}

// Contract returns the registry contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// Record reports one registry write: the transaction and the content digest
// it committed.
type Record struct {
	TxHash common.Hash
	Hash   common.Hash
}

// Trail is the full on-chain verification record for a task.
type Trail struct {
	DeliverableHash  common.Hash
	CriteriaHash     common.Hash
	VerificationHash common.Hash
	Worker           common.Address
	Verifier         common.Address
	SubmittedAt      int64
	VerifiedAt       int64
	Verified         bool
	Passed           bool
}

// Stats summarizes a worker's registry history. PassRate is a display
// string: "N/A" with no submissions, otherwise one decimal and a percent
// sign ("100.0%").
type Stats struct {
	Submissions int64
	Verified    int64
	Passed      int64
	PassRate    string
}

// SetCriteria commits the acceptance criteria digest for a task. The
// requestor calls this; ordering relative to escrow creation is convention,
// not enforced here.
func (c *Client) SetCriteria(ctx context.Context, taskID string, criteria []byte) (*Record, error) {
	return c.write(ctx, "setCriteria", taskID, HashContent(criteria))
}

// SubmitDeliverable commits the deliverable digest for a task. Worker calls
// this once the work is done.
func (c *Client) SubmitDeliverable(ctx context.Context, taskID string, deliverable []byte) (*Record, error) {
	return c.write(ctx, "submitDeliverable", taskID, HashContent(deliverable))
}

// RecordVerification commits the verification report digest and its verdict.
// Any party may verify; the contract records who.
func (c *Client) RecordVerification(ctx context.Context, taskID string, report []byte, passed bool) (*Record, error) {
	hash := HashContent(report)
	data, err := ContractABI.Pack("recordVerification", chain.HashTaskID(taskID), hash, passed)
	if err != nil {
		return nil, fmt.Errorf("pack recordVerification: %w", err)
	}
	receipt, err := c.sender.Send(ctx, chain.TxRequest{
		To:          c.contract,
		Data:        data,
		Description: "recordVerification",
	})
	if err != nil {
		return nil, err
	}
	return &Record{TxHash: receipt.TxHash, Hash: hash}, nil
}

// Trail reads the verification record for a task. A task with no registry
// activity comes back zero-valued, not as an error.
func (c *Client) Trail(ctx context.Context, taskID string) (*Trail, error) {
	out, err := c.call(ctx, "getDeliverable", chain.HashTaskID(taskID))
	if err != nil {
		return nil, err
	}
	return &Trail{
		DeliverableHash:  common.Hash(out[0].([32]byte)),
		CriteriaHash:     common.Hash(out[1].([32]byte)),
		VerificationHash: common.Hash(out[2].([32]byte)),
		Worker:           out[3].(common.Address),
		Verifier:         out[4].(common.Address),
		SubmittedAt:      out[5].(*big.Int).Int64(),
		VerifiedAt:       out[6].(*big.Int).Int64(),
		Verified:         out[7].(bool),
		Passed:           out[8].(bool),
	}, nil
}

// WorkerStats reads a worker's submission counters and derives the pass rate.
func (c *Client) WorkerStats(ctx context.Context, worker common.Address) (*Stats, error) {
	out, err := c.call(ctx, "getWorkerStats", worker)
	if err != nil {
		return nil, err
	}
	s := &Stats{
		Submissions: out[0].(*big.Int).Int64(),
		Verified:    out[1].(*big.Int).Int64(),
		Passed:      out[2].(*big.Int).Int64(),
	}
	if s.Submissions > 0 {
		s.PassRate = fmt.Sprintf("%.1f%%", float64(s.Passed)/float64(s.Submissions)*100)
	} else {
		s.PassRate = "N/A"
	}
	return s, nil
}

func (c *Client) write(ctx context.Context, method, taskID string, hash common.Hash) (*Record, error) {
	data, err := ContractABI.Pack(method, chain.HashTaskID(taskID), hash)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	receipt, err := c.sender.Send(ctx, chain.TxRequest{
		To:          c.contract,
		Data:        data,
		Description: method,
	})
	if err != nil {
		return nil, err
	}
	return &Record{TxHash: receipt.TxHash, Hash: hash}, nil
}

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := ContractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	ret, err := c.sender.Call(ctx, c.contract, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := ContractABI.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return out, nil
}
