package chaintest

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/GoCodeAlone/swarm/escrow"
)

// Approval records one committed approve call.
type Approval struct {
	Owner   common.Address
	Spender common.Address
	Amount  *big.Int
}

// Token is a minimal ERC-20 with 6 decimals by default. It keeps every
// committed approval in order so tests can assert the reset-then-exact
// allowance pattern.
type Token struct {
	mu         sync.Mutex
	addr       common.Address
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int

	Approvals []Approval
}

// NewToken returns a token at addr with the given decimals.
func NewToken(addr common.Address, decimals uint8) *Token {
	return &Token{
		addr:       addr,
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits account with amount out of thin air.
func (t *Token) Mint(account common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(account, amount)
}

// ForceApprove seeds an allowance directly, bypassing calldata. Tests use
// it to stage a stale allowance.
func (t *Token) ForceApprove(owner, spender common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowance(owner, spender, amount)
}

// BalanceOf returns the current balance of account.
func (t *Token) BalanceOf(account common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(account))
}

// Allowance returns what spender may currently move from owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.allowanceOf(owner, spender))
}

func (t *Token) Run(call Call) ([]byte, []types.Log, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(call.Data) < 4 {
		return nil, nil, revert("missing selector")
	}
	method, err := escrow.ERC20ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, nil, revert("unknown selector")
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, nil, revert("malformed calldata")
	}

	switch method.Name {
	case "decimals":
		ret, err := method.Outputs.Pack(t.decimals)
		return ret, nil, err
	case "balanceOf":
		ret, err := method.Outputs.Pack(t.balance(args[0].(common.Address)))
		return ret, nil, err
	case "allowance":
		ret, err := method.Outputs.Pack(t.allowanceOf(args[0].(common.Address), args[1].(common.Address)))
		return ret, nil, err
	case "approve":
		spender := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if call.Commit {
			t.setAllowance(call.From, spender, amount)
			t.Approvals = append(t.Approvals, Approval{
				Owner:   call.From,
				Spender: spender,
				Amount:  new(big.Int).Set(amount),
			})
		}
		ret, err := method.Outputs.Pack(true)
		return ret, nil, err
	case "transfer":
		to := args[0].(common.Address)
		amount := args[1].(*big.Int)
		if t.balance(call.From).Cmp(amount) < 0 {
			return nil, nil, revert("transfer amount exceeds balance")
		}
		if call.Commit {
			t.move(call.From, to, amount)
		}
		ret, err := method.Outputs.Pack(true)
		return ret, nil, err
	}
	return nil, nil, revert("unknown method %s", method.Name)
}

// spendFrom moves amount from owner to recipient against owner's allowance
// for spender. Called by the escrow contract, not via calldata.
func (t *Token) spendFrom(spender, owner, recipient common.Address, amount *big.Int, commit bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowanceOf(owner, spender).Cmp(amount) < 0 {
		return revert("insufficient allowance")
	}
	if t.balance(owner).Cmp(amount) < 0 {
		return revert("transfer amount exceeds balance")
	}
	if commit {
		t.allowances[owner][spender].Sub(t.allowances[owner][spender], amount)
		t.move(owner, recipient, amount)
	}
	return nil
}

// pay moves amount between accounts with no allowance involved. Called by
// the escrow contract when releasing or refunding.
func (t *Token) pay(from, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balance(from).Cmp(amount) < 0 {
		return revert("transfer amount exceeds balance")
	}
	t.move(from, to, amount)
	return nil
}

func (t *Token) balance(account common.Address) *big.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(big.Int)
}

func (t *Token) credit(account common.Address, amount *big.Int) {
	if _, ok := t.balances[account]; !ok {
		t.balances[account] = new(big.Int)
	}
	t.balances[account].Add(t.balances[account], amount)
}

func (t *Token) move(from, to common.Address, amount *big.Int) {
	t.balances[from].Sub(t.balances[from], amount)
	t.credit(to, amount)
}

func (t *Token) allowanceOf(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return a
		}
	}
	return new(big.Int)
}

func (t *Token) setAllowance(owner, spender common.Address, amount *big.Int) {
	if _, ok := t.allowances[owner]; !ok {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func revert(format string, args ...any) error {
	return fmt.Errorf("execution reverted: "+format, args...)
}
