package token

import (
	"errors"

	"netyield/core/types"
	"netyield/crypto"
	nativecommon "netyield/native/common"
)

// ModuleName identifies this module to the pause collaborator.
const ModuleName = "token"

var (
	errNilState             = errors.New("token ledger: state not configured")
	errZeroAddress          = errors.New("token ledger: zero address")
	errZeroAmount           = errors.New("token ledger: zero amount")
	errInsufficientBalance  = errors.New("token ledger: insufficient balance")
	errInsufficientApproval = errors.New("token ledger: insufficient allowance")
)

// Sentinel accessors so callers outside the package can branch on failures.
var (
	ErrInsufficientBalance  = errInsufficientBalance
	ErrInsufficientApproval = errInsufficientApproval
)

type ledgerState interface {
	TokenAccount(addr crypto.Address) (*types.TokenAccount, error)
	PutTokenAccount(addr crypto.Address, account *types.TokenAccount) error
}

// Ledger implements the fungible asset collaborator: balances, mint, burn and
// transfers over 64-bit amounts with checked arithmetic.
type Ledger struct {
	state  ledgerState
	symbol string
	pauses nativecommon.PauseView
}

// NewLedger constructs a token ledger for the given display symbol.
func NewLedger(symbol string) *Ledger {
	return &Ledger{symbol: symbol}
}

// SetState wires the ledger to the persistence layer.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPauses wires the pause collaborator.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// Symbol returns the display symbol of the asset.
func (l *Ledger) Symbol() string {
	if l == nil {
		return ""
	}
	return l.symbol
}

func (l *Ledger) checkEntry(addr crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, ModuleName); err != nil {
		return err
	}
	if addr.IsZero() {
		return errZeroAddress
	}
	if amount == 0 {
		return errZeroAmount
	}
	return nil
}

// Mint creates amount units in the recipient's balance.
func (l *Ledger) Mint(to crypto.Address, amount uint64) error {
	if err := l.checkEntry(to, amount); err != nil {
		return err
	}
	account, err := l.state.TokenAccount(to)
	if err != nil {
		return err
	}
	balance, err := nativecommon.AddUint64(account.Balance, amount)
	if err != nil {
		return err
	}
	account.Balance = balance
	return l.state.PutTokenAccount(to, account)
}

// Burn destroys amount units from the holder's balance.
func (l *Ledger) Burn(from crypto.Address, amount uint64) error {
	if err := l.checkEntry(from, amount); err != nil {
		return err
	}
	account, err := l.state.TokenAccount(from)
	if err != nil {
		return err
	}
	if account.Balance < amount {
		return errInsufficientBalance
	}
	account.Balance -= amount
	return l.state.PutTokenAccount(from, account)
}

// Transfer moves amount units from one account to another.
func (l *Ledger) Transfer(from, to crypto.Address, amount uint64) error {
	if err := l.checkEntry(to, amount); err != nil {
		return err
	}
	if from.IsZero() {
		return errZeroAddress
	}
	sender, err := l.state.TokenAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return errInsufficientBalance
	}
	if from.Equal(to) {
		return nil
	}
	recipient, err := l.state.TokenAccount(to)
	if err != nil {
		return err
	}
	balance, err := nativecommon.AddUint64(recipient.Balance, amount)
	if err != nil {
		return err
	}
	sender.Balance -= amount
	recipient.Balance = balance
	if err := l.state.PutTokenAccount(from, sender); err != nil {
		return err
	}
	return l.state.PutTokenAccount(to, recipient)
}

// Approve grants spender the right to move up to amount units out of the
// owner's balance via TransferFrom. A zero amount clears the grant.
func (l *Ledger) Approve(owner, spender crypto.Address, amount uint64) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, ModuleName); err != nil {
		return err
	}
	if owner.IsZero() || spender.IsZero() {
		return errZeroAddress
	}
	account, err := l.state.TokenAccount(owner)
	if err != nil {
		return err
	}
	account.SetAllowance(spender.Bytes(), amount)
	return l.state.PutTokenAccount(owner, account)
}

// TransferFrom moves amount units from owner to recipient, consuming the
// spender's allowance.
func (l *Ledger) TransferFrom(spender, owner, to crypto.Address, amount uint64) error {
	if err := l.checkEntry(to, amount); err != nil {
		return err
	}
	if spender.IsZero() || owner.IsZero() {
		return errZeroAddress
	}
	ownerAccount, err := l.state.TokenAccount(owner)
	if err != nil {
		return err
	}
	allowance := ownerAccount.AllowanceFor(spender.Bytes())
	if allowance < amount {
		return errInsufficientApproval
	}
	if ownerAccount.Balance < amount {
		return errInsufficientBalance
	}
	ownerAccount.SetAllowance(spender.Bytes(), allowance-amount)
	if owner.Equal(to) {
		return l.state.PutTokenAccount(owner, ownerAccount)
	}
	recipient, err := l.state.TokenAccount(to)
	if err != nil {
		return err
	}
	balance, err := nativecommon.AddUint64(recipient.Balance, amount)
	if err != nil {
		return err
	}
	ownerAccount.Balance -= amount
	recipient.Balance = balance
	if err := l.state.PutTokenAccount(owner, ownerAccount); err != nil {
		return err
	}
	return l.state.PutTokenAccount(to, recipient)
}

// BalanceOf reads the current balance for an address. Unknown accounts read
// as zero.
func (l *Ledger) BalanceOf(addr crypto.Address) (uint64, error) {
	if l == nil || l.state == nil {
		return 0, errNilState
	}
	account, err := l.state.TokenAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}
