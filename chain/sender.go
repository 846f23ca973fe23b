package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxRequest describes an outgoing transaction for authorization. The
// description is a short human label ("createEscrow", "approve") used in
// audit logs, not anything consulted by the chain. TokenAmount carries the
// human-readable token amount the transaction moves, empty when it moves
// none; authorizers use it for spend-limit checks.
type TxRequest struct {
	To          common.Address
	Value       *big.Int
	Data        []byte
	Description string
	TokenAmount string
}

// Authorizer is consulted before every transaction is signed. A non-nil
// error blocks the send and is returned to the caller unchanged.
type Authorizer interface {
	Authorize(ctx context.Context, req TxRequest) error
}

// ErrTxFailed is returned when a mined transaction carries a failed status.
var ErrTxFailed = errors.New("transaction reverted on chain")

// Sender builds, signs, submits, and waits for transactions on behalf of a
// single wallet. Gas estimation runs before signing, so a call that would
// revert fails here with the node's revert error and nothing hits the chain.
type Sender struct {
	backend      Backend
	wallet       *Wallet
	authorizer   Authorizer
	pollInterval time.Duration

	chainID *big.Int
}

// NewSender returns a sender for wallet over backend. authorizer may be nil,
// in which case every transaction is allowed.
func NewSender(backend Backend, wallet *Wallet, authorizer Authorizer) *Sender {
	return &Sender{
		backend:      backend,
		wallet:       wallet,
		authorizer:   authorizer,
		pollInterval: 500 * time.Millisecond,
	}
}

// From returns the sending address.
func (s *Sender) From() common.Address {
	return s.wallet.Address()
}

// Call performs a read-only contract call against the latest block.
func (s *Sender) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.backend.CallContract(ctx, ethereum.CallMsg{
		From: s.wallet.Address(),
		To:   &to,
		Data: data,
	}, nil)
}

// Send submits a transaction and waits for it to be mined. The returned
// receipt always has a successful status; a mined-but-failed transaction
// yields ErrTxFailed.
func (s *Sender) Send(ctx context.Context, req TxRequest) (*types.Receipt, error) {
	if s.chainID == nil {
		id, err := s.backend.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("chain id: %w", err)
		}
		s.chainID = id
	}

	from := s.wallet.Address()
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &req.To,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return nil, err
	}

	if s.authorizer != nil {
		if err := s.authorizer.Authorize(ctx, req); err != nil {
			return nil, err
		}
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := s.wallet.SignTx(tx, s.chainID)
	if err != nil {
		return nil, err
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTxFailed, signed.Hash())
	}
	return receipt, nil
}

func (s *Sender) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("transaction receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
