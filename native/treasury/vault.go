package treasury

import (
	"errors"
	"sync"

	"netyield/crypto"
)

// Domain is the compliance probe answer a genuine treasury returns. The yield
// engine rejects candidates answering anything else.
const Domain = "netyield.treasury.v1"

var (
	errNilToken    = errors.New("treasury: asset collaborator not configured")
	errZeroAddress = errors.New("treasury: zero address")
	errZeroAmount  = errors.New("treasury: zero amount")
)

// TokenTransferer is the slice of the asset collaborator the vault needs to
// move funds out of its custody.
type TokenTransferer interface {
	Transfer(from, to crypto.Address, amount uint64) error
	BalanceOf(addr crypto.Address) (uint64, error)
}

// Vault is a compliant treasury collaborator. It holds custody of underlying
// asset units at a fixed address and releases them on demand to fund
// reductions.
type Vault struct {
	addr  crypto.Address
	asset crypto.Address
	token TokenTransferer
}

// NewVault constructs a treasury over the given custody address and asset.
func NewVault(addr, asset crypto.Address, token TokenTransferer) *Vault {
	return &Vault{addr: addr, asset: asset, token: token}
}

// Address returns the vault's custody address.
func (v *Vault) Address() crypto.Address { return v.addr }

// Withdraw moves amount units from treasury custody to the recipient.
func (v *Vault) Withdraw(to crypto.Address, amount uint64) error {
	if v == nil || v.token == nil {
		return errNilToken
	}
	if to.IsZero() {
		return errZeroAddress
	}
	if amount == 0 {
		return errZeroAmount
	}
	return v.token.Transfer(v.addr, to, amount)
}

// UnderlyingToken returns the asset this treasury funds reductions in.
func (v *Vault) UnderlyingToken() crypto.Address { return v.asset }

// TreasuryDomain answers the compliance probe.
func (v *Vault) TreasuryDomain() string { return Domain }

// Balance reads the vault's current custody balance.
func (v *Vault) Balance() (uint64, error) {
	if v == nil || v.token == nil {
		return 0, errNilToken
	}
	return v.token.BalanceOf(v.addr)
}

// Registry resolves treasury references to collaborator instances. Candidates
// are registered as opaque values; the yield engine's compliance probe decides
// whether a candidate is trustworthy. Safe for concurrent use: the daemon's
// admin surface registers vaults while mutations resolve them.
type Registry struct {
	mu      sync.RWMutex
	entries map[[crypto.AddressLength]byte]any
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[[crypto.AddressLength]byte]any)}
}

// Register associates a candidate collaborator with its reference address.
func (r *Registry) Register(ref crypto.Address, candidate any) {
	if r == nil || ref.IsZero() {
		return
	}
	var key [crypto.AddressLength]byte
	copy(key[:], ref.Bytes())
	r.mu.Lock()
	r.entries[key] = candidate
	r.mu.Unlock()
}

// ResolveTreasury returns the candidate registered under ref.
func (r *Registry) ResolveTreasury(ref crypto.Address) (any, bool) {
	if r == nil || ref.IsZero() {
		return nil, false
	}
	var key [crypto.AddressLength]byte
	copy(key[:], ref.Bytes())
	r.mu.RLock()
	candidate, ok := r.entries[key]
	r.mu.RUnlock()
	return candidate, ok
}
