// Package chaintest provides an in-memory chain backend for tests. It mines
// transactions synchronously, keeps receipts and event logs, and dispatches
// calldata to registered mock contracts that enforce the same state machines
// as the deployed ones. Reverts surface through gas estimation, exactly as a
// real node reports them.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Call carries everything a mock contract needs to execute calldata. Commit
// is false for eth_call and gas estimation: state checks still run, state
// changes do not.
type Call struct {
	From   common.Address
	Value  *big.Int
	Data   []byte
	Commit bool
	Block  uint64
	Time   int64
}

// Contract executes calldata against in-memory state. Returned logs are
// only recorded when Commit is true.
type Contract interface {
	Run(call Call) ([]byte, []types.Log, error)
}

// Backend implements chain.Backend over registered mock contracts.
type Backend struct {
	mu        sync.Mutex
	chainID   *big.Int
	block     uint64
	now       int64
	nonces    map[common.Address]uint64
	receipts  map[common.Hash]*types.Receipt
	logs      []types.Log
	contracts map[common.Address]Contract

	// Queries records every FilterLogs call so tests can assert which
	// block ranges were scanned.
	Queries []ethereum.FilterQuery
}

// NewBackend returns an empty backend at block 1.
func NewBackend() *Backend {
	return &Backend{
		chainID:   big.NewInt(1337),
		block:     1,
		now:       1_700_000_000,
		nonces:    make(map[common.Address]uint64),
		receipts:  make(map[common.Hash]*types.Receipt),
		contracts: make(map[common.Address]Contract),
	}
}

// Register deploys a mock contract at addr.
func (b *Backend) Register(addr common.Address, c Contract) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contracts[addr] = c
}

// AdvanceBlocks mines n empty blocks.
func (b *Backend) AdvanceBlocks(n uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.block += n
	b.now += int64(n) * 2
}

// AdvanceTime moves the chain clock forward without mining.
func (b *Backend) AdvanceTime(seconds int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now += seconds
}

// Now returns the chain clock.
func (b *Backend) Now() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.block, nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// EstimateGas dry-runs the call. A contract revert fails estimation with the
// revert error, so nothing reverting ever reaches SendTransaction.
func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if call.To == nil {
		return 0, fmt.Errorf("contract creation not supported")
	}
	contract, ok := b.contracts[*call.To]
	if !ok {
		return 21000, nil
	}
	_, _, err := contract.Run(Call{
		From:  call.From,
		Value: call.Value,
		Data:  call.Data,
		Block: b.block,
		Time:  b.now,
	})
	if err != nil {
		return 0, err
	}
	return 100_000, nil
}

func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if call.To == nil {
		return nil, fmt.Errorf("contract creation not supported")
	}
	contract, ok := b.contracts[*call.To]
	if !ok {
		return nil, fmt.Errorf("no contract at %s", call.To)
	}
	ret, _, err := contract.Run(Call{
		From:  call.From,
		Value: call.Value,
		Data:  call.Data,
		Block: b.block,
		Time:  b.now,
	})
	return ret, err
}

// SendTransaction mines the transaction into its own block immediately.
func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	signer := types.LatestSignerForChainID(b.chainID)
	from, err := types.Sender(signer, tx)
	if err != nil {
		return fmt.Errorf("recover sender: %w", err)
	}
	if tx.Nonce() != b.nonces[from] {
		return fmt.Errorf("invalid nonce %d, want %d", tx.Nonce(), b.nonces[from])
	}
	b.nonces[from]++
	b.block++
	b.now += 2

	status := types.ReceiptStatusSuccessful
	var minedLogs []*types.Log
	if tx.To() != nil {
		if contract, ok := b.contracts[*tx.To()]; ok {
			_, logs, err := contract.Run(Call{
				From:   from,
				Value:  tx.Value(),
				Data:   tx.Data(),
				Commit: true,
				Block:  b.block,
				Time:   b.now,
			})
			if err != nil {
				status = types.ReceiptStatusFailed
			}
			for i := range logs {
				logs[i].BlockNumber = b.block
				logs[i].TxHash = tx.Hash()
				logs[i].Index = uint(len(b.logs))
				b.logs = append(b.logs, logs[i])
				minedLogs = append(minedLogs, &b.logs[len(b.logs)-1])
			}
		}
	}

	b.receipts[tx.Hash()] = &types.Receipt{
		Type:        tx.Type(),
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(b.block),
		GasUsed:     21000,
		Logs:        minedLogs,
	}
	return nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

// FilterLogs matches recorded logs against q and remembers the query.
func (b *Backend) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Queries = append(b.Queries, q)

	from := uint64(0)
	if q.FromBlock != nil {
		from = q.FromBlock.Uint64()
	}
	to := b.block
	if q.ToBlock != nil {
		to = q.ToBlock.Uint64()
	}

	var out []types.Log
	for _, lg := range b.logs {
		if lg.BlockNumber < from || lg.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, lg.Address) {
			continue
		}
		if !topicsMatch(q.Topics, lg.Topics) {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func containsAddress(addrs []common.Address, a common.Address) bool {
	for _, addr := range addrs {
		if addr == a {
			return true
		}
	}
	return false
}

func topicsMatch(want [][]common.Hash, got []common.Hash) bool {
	if len(want) > len(got) {
		return false
	}
	for i, alternatives := range want {
		if len(alternatives) == 0 {
			continue
		}
		matched := false
		for _, h := range alternatives {
			if got[i] == h {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
