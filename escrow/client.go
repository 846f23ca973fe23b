// Package escrow drives the TaskEscrow contract: funding a task, releasing
// or disputing it, and reading its state. The contract is the authority on
// every precondition; this client packs calldata, submits, and surfaces
// reverts unchanged rather than second-guessing the chain.
package escrow

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/GoCodeAlone/swarm/chain"
)

// Escrow status names as stored by the contract. Amounts are always
// reported at 6 decimals (USDC).
const (
	StatusNone     = "None"
	StatusActive   = "Active"
	StatusReleased = "Released"
	StatusDisputed = "Disputed"
	StatusRefunded = "Refunded"
	StatusUnknown  = "Unknown"
)

var statusNames = []string{StatusNone, StatusActive, StatusReleased, StatusDisputed, StatusRefunded}

// StatusName maps the contract's status code to its name. Codes beyond the
// known range come back as Unknown rather than an error, so a contract
// upgrade that adds states does not break status reads.
func StatusName(code uint8) string {
	if int(code) < len(statusNames) {
		return statusNames[code]
	}
	return StatusUnknown
}

// Client operates one TaskEscrow deployment on behalf of one wallet.
type Client struct {
	sender   *chain.Sender
	contract common.Address
}

// NewClient returns a client for the escrow contract at addr.
func NewClient(sender *chain.Sender, addr common.Address) *Client {
	return &Client{sender: sender, contract: addr}
}

// Contract returns the escrow contract address.
func (c *Client) Contract() common.Address {
	return c.contract
}

// CreateParams describes a new escrow. Amount is the human-readable token
// amount ("25.50"); Deadline is a unix timestamp after which anyone may
// trigger auto-release to the worker.
type CreateParams struct {
	TaskID   string
	Worker   common.Address
	Amount   string
	Deadline int64
}

// CreateResult reports the createEscrow transaction and the task digest the
// contract keys the escrow under.
type CreateResult struct {
	TxHash   common.Hash
	TaskHash common.Hash
}

// TxResult reports a single awaited state-changing transaction.
type TxResult struct {
	TxHash common.Hash
}

// Info is the decoded escrow record for one task.
type Info struct {
	Requestor common.Address
	Worker    common.Address
	Amount    string
	Deadline  int64
	Status    string
}

// CreateEscrow approves the token spend and deposits funds for a task. The
// approval is always for the exact amount, never unlimited: a stale nonzero
// allowance is reset to zero first, then the exact amount approved, then the
// deposit submitted. Three transactions worst case, each awaited in order.
func (c *Client) CreateEscrow(ctx context.Context, p CreateParams) (*CreateResult, error) {
	token, err := c.TokenAddress(ctx)
	if err != nil {
		return nil, err
	}
	decimals, err := c.tokenDecimals(ctx, token)
	if err != nil {
		return nil, err
	}
	amountRaw, err := chain.ParseUnits(p.Amount, int(decimals))
	if err != nil {
		return nil, fmt.Errorf("escrow amount: %w", err)
	}
	taskHash := chain.HashTaskID(p.TaskID)

	allowance, err := c.allowance(ctx, token)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(amountRaw) < 0 {
		if allowance.Sign() > 0 {
			if err := c.approve(ctx, token, new(big.Int)); err != nil {
				return nil, fmt.Errorf("reset allowance: %w", err)
			}
		}
		if err := c.approve(ctx, token, amountRaw); err != nil {
			return nil, fmt.Errorf("approve escrow amount: %w", err)
		}
	}

	data, err := ContractABI.Pack("createEscrow", taskHash, p.Worker, amountRaw, big.NewInt(p.Deadline))
	if err != nil {
		return nil, fmt.Errorf("pack createEscrow: %w", err)
	}
	receipt, err := c.sender.Send(ctx, chain.TxRequest{
		To:          c.contract,
		Data:        data,
		Description: "createEscrow",
		TokenAmount: p.Amount,
	})
	if err != nil {
		return nil, err
	}
	return &CreateResult{TxHash: receipt.TxHash, TaskHash: taskHash}, nil
}

// Release pays out an active escrow to the worker. Requestor only; the
// contract reverts otherwise.
func (c *Client) Release(ctx context.Context, taskID string) (*TxResult, error) {
	return c.invokeTask(ctx, "releaseEscrow", taskID)
}

// Dispute flags an active escrow. Either party may call; funds freeze until
// the arbitrator resolves or the dispute times out.
func (c *Client) Dispute(ctx context.Context, taskID string) (*TxResult, error) {
	return c.invokeTask(ctx, "dispute", taskID)
}

// ReleaseAfterDeadline triggers auto-release to the worker once the deadline
// has passed. Anyone may call.
func (c *Client) ReleaseAfterDeadline(ctx context.Context, taskID string) (*TxResult, error) {
	return c.invokeTask(ctx, "releaseAfterDeadline", taskID)
}

// ResolveDispute settles a disputed escrow. Arbitrator only: releaseToWorker
// pays the worker, otherwise the requestor is refunded.
func (c *Client) ResolveDispute(ctx context.Context, taskID string, releaseToWorker bool) (*TxResult, error) {
	txHash, err := c.invoke(ctx, "resolveDispute", chain.HashTaskID(taskID), releaseToWorker)
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: txHash}, nil
}

// ClaimDisputeTimeout refunds the requestor after an unresolved dispute
// outlives the contract's dispute timeout. Anyone may call.
func (c *Client) ClaimDisputeTimeout(ctx context.Context, taskID string) (*TxResult, error) {
	return c.invokeTask(ctx, "claimDisputeTimeout", taskID)
}

// Refund returns an active escrow's funds to the requestor. Requestor only.
func (c *Client) Refund(ctx context.Context, taskID string) (*TxResult, error) {
	return c.invokeTask(ctx, "refund", taskID)
}

// Status reads the escrow record for a task. A task that was never funded
// comes back with status None and zero fields, not an error.
func (c *Client) Status(ctx context.Context, taskID string) (*Info, error) {
	out, err := c.call(ctx, c.contract, ContractABI, "escrows", chain.HashTaskID(taskID))
	if err != nil {
		return nil, err
	}
	amount := out[2].(*big.Int)
	deadline := out[3].(*big.Int)
	return &Info{
		Requestor: out[0].(common.Address),
		Worker:    out[1].(common.Address),
		Amount:    chain.FormatUnits(amount, 6),
		Deadline:  deadline.Int64(),
		Status:    StatusName(out[4].(uint8)),
	}, nil
}

// TokenAddress reads the payment token the contract settles in.
func (c *Client) TokenAddress(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, c.contract, ContractABI, "usdc")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// Arbitrator reads the dispute arbitrator address.
func (c *Client) Arbitrator(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, c.contract, ContractABI, "arbitrator")
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// DisputeTimeout reads the contract's dispute timeout in seconds.
func (c *Client) DisputeTimeout(ctx context.Context) (int64, error) {
	out, err := c.call(ctx, c.contract, ContractABI, "disputeTimeout")
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Int64(), nil
}

// DisputeTimestamp reads when a task's dispute was raised, zero if none.
func (c *Client) DisputeTimestamp(ctx context.Context, taskID string) (int64, error) {
	out, err := c.call(ctx, c.contract, ContractABI, "disputeTimestamps", chain.HashTaskID(taskID))
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Int64(), nil
}

func (c *Client) invokeTask(ctx context.Context, method, taskID string) (*TxResult, error) {
	txHash, err := c.invoke(ctx, method, chain.HashTaskID(taskID))
	if err != nil {
		return nil, err
	}
	return &TxResult{TxHash: txHash}, nil
}

func (c *Client) invoke(ctx context.Context, method string, args ...any) (common.Hash, error) {
	data, err := ContractABI.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}
	receipt, err := c.sender.Send(ctx, chain.TxRequest{
		To:          c.contract,
		Data:        data,
		Description: method,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return receipt.TxHash, nil
}

func (c *Client) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := c.call(ctx, token, ERC20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	return out[0].(uint8), nil
}

func (c *Client) allowance(ctx context.Context, token common.Address) (*big.Int, error) {
	out, err := c.call(ctx, token, ERC20ABI, "allowance", c.sender.From(), c.contract)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

func (c *Client) approve(ctx context.Context, token common.Address, amount *big.Int) error {
	data, err := ERC20ABI.Pack("approve", c.contract, amount)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	_, err = c.sender.Send(ctx, chain.TxRequest{
		To:          token,
		Data:        data,
		Description: "approve",
	})
	return err
}

func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	ret, err := c.sender.Call(ctx, to, data)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contract.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return out, nil
}
