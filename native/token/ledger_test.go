package token

import (
	"errors"
	"math"
	"testing"

	"netyield/core/types"
	"netyield/crypto"
	nativecommon "netyield/native/common"
)

type fakeState struct {
	accounts map[string]*types.TokenAccount
}

func newFakeState() *fakeState {
	return &fakeState{accounts: make(map[string]*types.TokenAccount)}
}

func (s *fakeState) TokenAccount(addr crypto.Address) (*types.TokenAccount, error) {
	if account, ok := s.accounts[string(addr.Bytes())]; ok {
		cloned := *account
		cloned.Allowances = append([]types.Allowance(nil), account.Allowances...)
		return &cloned, nil
	}
	return &types.TokenAccount{}, nil
}

func (s *fakeState) PutTokenAccount(addr crypto.Address, account *types.TokenAccount) error {
	s.accounts[string(addr.Bytes())] = account
	return nil
}

func addr(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[0] = b
	return crypto.MustNewAddress(crypto.AccountPrefix, raw)
}

func newLedger() (*Ledger, *fakeState) {
	st := newFakeState()
	ledger := NewLedger("NYA")
	ledger.SetState(st)
	return ledger, st
}

func TestMintAndBalance(t *testing.T) {
	ledger, _ := newLedger()
	holder := addr(1)

	if err := ledger.Mint(holder, 500); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := ledger.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balanceOf: %v", err)
	}
	if balance != 500 {
		t.Fatalf("unexpected balance: %d", balance)
	}

	if err := ledger.Mint(crypto.Address{}, 1); err == nil {
		t.Fatalf("mint to zero address must fail")
	}
	if err := ledger.Mint(holder, 0); err == nil {
		t.Fatalf("mint of zero must fail")
	}
}

func TestMintOverflow(t *testing.T) {
	ledger, _ := newLedger()
	holder := addr(1)

	if err := ledger.Mint(holder, math.MaxUint64); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Mint(holder, 1); !errors.Is(err, nativecommon.ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestBurn(t *testing.T) {
	ledger, _ := newLedger()
	holder := addr(1)
	if err := ledger.Mint(holder, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.Burn(holder, 40); err != nil {
		t.Fatalf("burn: %v", err)
	}
	balance, _ := ledger.BalanceOf(holder)
	if balance != 60 {
		t.Fatalf("unexpected balance after burn: %d", balance)
	}

	if err := ledger.Burn(holder, 61); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestTransfer(t *testing.T) {
	ledger, _ := newLedger()
	from := addr(1)
	to := addr(2)
	if err := ledger.Mint(from, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.Transfer(from, to, 30); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	fromBalance, _ := ledger.BalanceOf(from)
	toBalance, _ := ledger.BalanceOf(to)
	if fromBalance != 70 || toBalance != 30 {
		t.Fatalf("unexpected balances: %d %d", fromBalance, toBalance)
	}

	if err := ledger.Transfer(from, to, 71); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	// Self transfer is a no-op.
	if err := ledger.Transfer(from, from, 10); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	fromBalance, _ = ledger.BalanceOf(from)
	if fromBalance != 70 {
		t.Fatalf("self transfer changed balance: %d", fromBalance)
	}
}

func TestTransferFrom(t *testing.T) {
	ledger, _ := newLedger()
	owner := addr(1)
	spender := addr(2)
	recipient := addr(3)
	if err := ledger.Mint(owner, 100); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ledger.TransferFrom(spender, owner, recipient, 10); !errors.Is(err, ErrInsufficientApproval) {
		t.Fatalf("expected ErrInsufficientApproval, got %v", err)
	}

	if err := ledger.Approve(owner, spender, 50); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := ledger.TransferFrom(spender, owner, recipient, 30); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	ownerBalance, _ := ledger.BalanceOf(owner)
	recipientBalance, _ := ledger.BalanceOf(recipient)
	if ownerBalance != 70 || recipientBalance != 30 {
		t.Fatalf("unexpected balances: %d %d", ownerBalance, recipientBalance)
	}

	// Remaining allowance is 20.
	if err := ledger.TransferFrom(spender, owner, recipient, 21); !errors.Is(err, ErrInsufficientApproval) {
		t.Fatalf("expected allowance exhaustion, got %v", err)
	}
}

func TestPausedLedgerRejectsMutations(t *testing.T) {
	ledger, _ := newLedger()
	ledger.SetPauses(pausedView{})
	if err := ledger.Mint(addr(1), 10); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

type pausedView struct{}

func (pausedView) IsPaused(module string) bool { return module == ModuleName }
