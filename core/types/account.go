package types

// Allowance records a spending grant from a token account owner to a spender.
// Kept as a slice entry rather than a map so records stay RLP-encodable.
type Allowance struct {
	Spender []byte
	Amount  uint64
}

// TokenAccount is the persistent record backing the fungible asset ledger.
// Balances are bounded to 64 bits across the whole system.
type TokenAccount struct {
	Balance    uint64
	Allowances []Allowance
}

// AllowanceFor returns the amount the owner has granted to spender.
func (a *TokenAccount) AllowanceFor(spender []byte) uint64 {
	if a == nil {
		return 0
	}
	for _, grant := range a.Allowances {
		if string(grant.Spender) == string(spender) {
			return grant.Amount
		}
	}
	return 0
}

// SetAllowance overwrites the grant for spender, removing the entry when the
// amount is zero.
func (a *TokenAccount) SetAllowance(spender []byte, amount uint64) {
	if a == nil {
		return
	}
	for i, grant := range a.Allowances {
		if string(grant.Spender) == string(spender) {
			if amount == 0 {
				a.Allowances = append(a.Allowances[:i], a.Allowances[i+1:]...)
				return
			}
			a.Allowances[i].Amount = amount
			return
		}
	}
	if amount == 0 {
		return
	}
	a.Allowances = append(a.Allowances, Allowance{Spender: append([]byte(nil), spender...), Amount: amount})
}
