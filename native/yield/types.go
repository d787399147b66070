package yield

import "netyield/crypto"

// ModuleName identifies this module to the pause collaborator.
const ModuleName = "yield"

// Capabilities checked before each mutating entry point.
const (
	RoleOwner   = "ROLE_OWNER"
	RoleMinter  = "MINTER_NYL"
	RoleManager = "MANAGER_NYL"
)

// LedgerState is the singleton bookkeeping record for the yield ledger. It is
// created by Initialize and mutated by every operation thereafter.
type LedgerState struct {
	// UnderlyingAsset identifies the fungible asset collaborator. Immutable
	// after initialization.
	UnderlyingAsset crypto.Address
	// Treasury identifies the collaborator funding reductions, or the null
	// identifier when detached.
	Treasury crypto.Address
	// TotalSupply is the accounting supply currently minted net of burns.
	TotalSupply uint64
	// TotalAdvanced is the sum of all outstanding advanced balances.
	TotalAdvanced uint64
	// CumulativeReduced is the lifetime sum of all reductions. Monotone.
	CumulativeReduced uint64
}

// Clone returns a copy safe for the caller to mutate.
func (s *LedgerState) Clone() *LedgerState {
	if s == nil {
		return nil
	}
	cloned := *s
	return &cloned
}

// AccountRecord tracks one account's outstanding advance and lifetime
// reductions. Records are created lazily on first advance; an absent record
// reads as all-zero.
type AccountRecord struct {
	Address           crypto.Address
	Advanced          uint64
	CumulativeReduced uint64
}

// Clone returns a copy safe for the caller to mutate.
func (r *AccountRecord) Clone() *AccountRecord {
	if r == nil {
		return nil
	}
	cloned := *r
	return &cloned
}
