package yield

import (
	"netyield/core/events"
	"netyield/crypto"
	nativecommon "netyield/native/common"
)

// complianceDomain is the answer a treasury candidate's probe must return
// before the engine will trust it to fund reductions.
const complianceDomain = "netyield.treasury.v1"

// UpgradeDomain is the answer an upgrade candidate's probe must return before
// the upgrade-lifecycle collaborator may swap implementations.
const UpgradeDomain = "netyield.ledger.v1"

// engineState is the slice of the persistence layer the engine mutates. All
// writes issued through it during one operation are applied atomically by the
// owning service: a returned error discards every write of the same call.
type engineState interface {
	YieldLedger() (*LedgerState, error)
	PutYieldLedger(*LedgerState) error
	YieldAccount(addr crypto.Address) (*AccountRecord, error)
	PutYieldAccount(*AccountRecord) error
}

// Token is the fungible asset collaborator. Mint and burn act on the ledger's
// own custody; transfers move custody funds to advanced accounts.
type Token interface {
	Mint(to crypto.Address, amount uint64) error
	Burn(from crypto.Address, amount uint64) error
	Transfer(from, to crypto.Address, amount uint64) error
}

// Treasury is the shape a compliant treasury collaborator must present.
// TreasuryDomain is the compliance probe; candidates that cannot answer it, or
// answer with the wrong domain, are rejected.
type Treasury interface {
	Withdraw(to crypto.Address, amount uint64) error
	UnderlyingToken() crypto.Address
	TreasuryDomain() string
}

// TreasuryLookup resolves treasury references to candidate collaborators.
type TreasuryLookup interface {
	ResolveTreasury(ref crypto.Address) (any, bool)
}

// UpgradeTarget is the compliance probe an upgrade candidate must answer.
type UpgradeTarget interface {
	LedgerDomain() string
}

// Engine owns the yield ledger's state transitions: supply mint/burn, batched
// advances to accounts, batched reductions settled against the treasury, and
// treasury configuration.
type Engine struct {
	state      engineState
	token      Token
	treasuries TreasuryLookup
	roles      nativecommon.RoleView
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	custody    crypto.Address
}

// NewEngine constructs an engine with a no-op emitter and the default module
// custody address. Collaborators are wired via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		custody: crypto.ModuleAddress("yield/custody"),
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetToken wires the fungible asset collaborator.
func (e *Engine) SetToken(token Token) { e.token = token }

// SetTreasuryLookup wires the registry used to resolve treasury references.
func (e *Engine) SetTreasuryLookup(lookup TreasuryLookup) {
	if e == nil {
		return
	}
	e.treasuries = lookup
}

// SetRoles wires the access-control collaborator.
func (e *Engine) SetRoles(roles nativecommon.RoleView) {
	if e == nil {
		return
	}
	e.roles = roles
}

// SetPauses wires the pause collaborator.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// Custody returns the address holding the ledger's own token custody.
func (e *Engine) Custody() crypto.Address { return e.custody }

func (e *Engine) flush(pending []events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	for _, evt := range pending {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) guardEntry(caller crypto.Address, role string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return err
	}
	return nativecommon.RequireRole(e.roles, role, caller)
}

func (e *Engine) ledger() (*LedgerState, error) {
	state, err := e.state.YieldLedger()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, ErrNotInitialized
	}
	return state, nil
}

// Initialize binds the ledger to its underlying asset and zeroes all
// counters. It is callable exactly once per instance lifetime.
func (e *Engine) Initialize(underlyingAsset crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if underlyingAsset.IsZero() {
		return ErrInvalidConfig
	}
	existing, err := e.state.YieldLedger()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	return e.state.PutYieldLedger(&LedgerState{UnderlyingAsset: underlyingAsset})
}

// probeTreasury resolves and validates a treasury reference against the
// configured underlying asset.
func (e *Engine) probeTreasury(ref crypto.Address, underlying crypto.Address) (Treasury, error) {
	if e.treasuries == nil {
		return nil, ErrInvalidTreasury
	}
	candidate, ok := e.treasuries.ResolveTreasury(ref)
	if !ok {
		return nil, ErrInvalidTreasury
	}
	vault, ok := candidate.(Treasury)
	if !ok || vault.TreasuryDomain() != complianceDomain {
		return nil, ErrInvalidTreasury
	}
	if !vault.UnderlyingToken().Equal(underlying) {
		return nil, ErrTreasuryAssetMismatch
	}
	return vault, nil
}

// ConfigureTreasury rotates the treasury collaborator funding reductions.
// Setting the null identifier detaches the treasury; any other candidate must
// answer the compliance probe with a matching underlying asset. No token
// movement occurs here.
func (e *Engine) ConfigureTreasury(caller crypto.Address, newTreasury crypto.Address) error {
	if err := e.guardEntry(caller, RoleOwner); err != nil {
		return err
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	if newTreasury.Equal(ledger.Treasury) {
		return ErrTreasuryUnchanged
	}
	if !newTreasury.IsZero() {
		if _, err := e.probeTreasury(newTreasury, ledger.UnderlyingAsset); err != nil {
			return err
		}
	}
	old := ledger.Treasury
	ledger.Treasury = newTreasury
	if err := e.state.PutYieldLedger(ledger); err != nil {
		return err
	}
	e.flush([]events.Event{events.TreasuryConfigured{New: newTreasury, Old: old}})
	return nil
}

// MintSupply mints amount units of the accounting asset into ledger custody
// and grows the recorded total supply.
func (e *Engine) MintSupply(caller crypto.Address, amount uint64) error {
	if err := e.guardEntry(caller, RoleMinter); err != nil {
		return err
	}
	if e.token == nil {
		return ErrNilToken
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	total, err := nativecommon.AddUint64(ledger.TotalSupply, amount)
	if err != nil {
		return err
	}
	if err := e.token.Mint(e.custody, amount); err != nil {
		return err
	}
	ledger.TotalSupply = total
	if err := e.state.PutYieldLedger(ledger); err != nil {
		return err
	}
	e.flush([]events.Event{events.AssetSupplyMinted{Amount: amount, Total: total}})
	return nil
}

// BurnSupply burns amount units from ledger custody and shrinks the recorded
// total supply. The recorded supply bounds the subtraction; the external burn
// independently fails when actual custody is short. After decrementing, the
// outstanding-advances invariant is re-validated to catch custody drift
// introduced outside this ledger.
func (e *Engine) BurnSupply(caller crypto.Address, amount uint64) error {
	if err := e.guardEntry(caller, RoleMinter); err != nil {
		return err
	}
	if e.token == nil {
		return ErrNilToken
	}
	if amount == 0 {
		return ErrZeroAmount
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	if amount > ledger.TotalSupply {
		return ErrInsufficientSupply
	}
	if err := e.token.Burn(e.custody, amount); err != nil {
		return err
	}
	ledger.TotalSupply -= amount
	if ledger.TotalAdvanced > ledger.TotalSupply {
		return ErrAdvancedExceedsSupply
	}
	if err := e.state.PutYieldLedger(ledger); err != nil {
		return err
	}
	e.flush([]events.Event{events.AssetSupplyBurned{Amount: amount, Total: ledger.TotalSupply}})
	return nil
}

func validateBatch(accounts []crypto.Address, amounts []uint64) error {
	if len(accounts) != len(amounts) {
		return ErrLengthMismatch
	}
	if len(accounts) == 0 {
		return ErrEmptyBatch
	}
	return nil
}

// Advance pushes net yield to each paired account: custody funds move to the
// account and its outstanding advanced balance grows. Pairs are applied in
// array order with no deduplication; a repeated account accumulates. Any
// failure aborts the whole batch.
func (e *Engine) Advance(caller crypto.Address, accounts []crypto.Address, amounts []uint64) error {
	if err := e.guardEntry(caller, RoleManager); err != nil {
		return err
	}
	if e.token == nil {
		return ErrNilToken
	}
	if err := validateBatch(accounts, amounts); err != nil {
		return err
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	pending := make([]events.Event, 0, len(accounts))
	for i, account := range accounts {
		amount := amounts[i]
		if account.IsZero() {
			return ErrZeroAddress
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		record, err := e.state.YieldAccount(account)
		if err != nil {
			return err
		}
		advanced, err := nativecommon.AddUint64(record.Advanced, amount)
		if err != nil {
			return err
		}
		totalAdvanced, err := nativecommon.AddUint64(ledger.TotalAdvanced, amount)
		if err != nil {
			return err
		}
		record.Advanced = advanced
		ledger.TotalAdvanced = totalAdvanced
		if err := e.state.PutYieldAccount(record); err != nil {
			return err
		}
		pending = append(pending, events.NetYieldAdvanced{Account: account, Amount: amount})
		if err := e.token.Transfer(e.custody, account, amount); err != nil {
			return err
		}
	}
	if ledger.TotalAdvanced > ledger.TotalSupply {
		return ErrAdvancedExceedsSupply
	}
	if err := e.state.PutYieldLedger(ledger); err != nil {
		return err
	}
	e.flush(pending)
	return nil
}

// Reduce claws back outstanding advances: each paired account's advanced
// balance shrinks, and the batch total is pulled from the treasury into
// custody and burned in a single settlement. Any failure aborts the whole
// batch.
func (e *Engine) Reduce(caller crypto.Address, accounts []crypto.Address, amounts []uint64) error {
	if err := e.guardEntry(caller, RoleManager); err != nil {
		return err
	}
	if e.token == nil {
		return ErrNilToken
	}
	if err := validateBatch(accounts, amounts); err != nil {
		return err
	}
	ledger, err := e.ledger()
	if err != nil {
		return err
	}
	var batchTotal uint64
	pending := make([]events.Event, 0, len(accounts))
	for i, account := range accounts {
		amount := amounts[i]
		if account.IsZero() {
			return ErrZeroAddress
		}
		if amount == 0 {
			return ErrZeroAmount
		}
		record, err := e.state.YieldAccount(account)
		if err != nil {
			return err
		}
		if amount > record.Advanced {
			return ErrInsufficientAdvanced
		}
		cumulative, err := nativecommon.AddUint64(record.CumulativeReduced, amount)
		if err != nil {
			return err
		}
		total, err := nativecommon.AddUint64(batchTotal, amount)
		if err != nil {
			return err
		}
		record.Advanced -= amount
		record.CumulativeReduced = cumulative
		batchTotal = total
		if err := e.state.PutYieldAccount(record); err != nil {
			return err
		}
		pending = append(pending, events.AdvancedNetYieldReduced{Account: account, Amount: amount})
	}
	totalAdvanced, err := nativecommon.SubUint64(ledger.TotalAdvanced, batchTotal)
	if err != nil {
		return ErrInsufficientAdvanced
	}
	cumulativeReduced, err := nativecommon.AddUint64(ledger.CumulativeReduced, batchTotal)
	if err != nil {
		return err
	}
	if batchTotal > ledger.TotalSupply {
		return ErrInsufficientSupply
	}
	ledger.TotalAdvanced = totalAdvanced
	ledger.CumulativeReduced = cumulativeReduced
	ledger.TotalSupply -= batchTotal
	if ledger.Treasury.IsZero() {
		return ErrTreasuryNotConfigured
	}
	vault, err := e.probeTreasury(ledger.Treasury, ledger.UnderlyingAsset)
	if err != nil {
		return err
	}
	if err := vault.Withdraw(e.custody, batchTotal); err != nil {
		return err
	}
	if err := e.token.Burn(e.custody, batchTotal); err != nil {
		return err
	}
	if err := e.state.PutYieldLedger(ledger); err != nil {
		return err
	}
	e.flush(pending)
	return nil
}

// ValidateUpgradeTarget is the hook the upgrade-lifecycle collaborator invokes
// before swapping implementations. The candidate must answer the ledger
// compliance probe.
func (e *Engine) ValidateUpgradeTarget(candidate any) error {
	target, ok := candidate.(UpgradeTarget)
	if !ok || target.LedgerDomain() != UpgradeDomain {
		return ErrInvalidImplementation
	}
	return nil
}

// --- Read accessors ---

// AdvancedOf reads the account's outstanding advanced balance. Unknown
// accounts read as zero.
func (e *Engine) AdvancedOf(account crypto.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	record, err := e.state.YieldAccount(account)
	if err != nil {
		return 0, err
	}
	return record.Advanced, nil
}

// CumulativeReducedOf reads the account's lifetime reduction total.
func (e *Engine) CumulativeReducedOf(account crypto.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, ErrNilState
	}
	record, err := e.state.YieldAccount(account)
	if err != nil {
		return 0, err
	}
	return record.CumulativeReduced, nil
}

// TotalSupply reads the accounting supply currently minted net of burns.
func (e *Engine) TotalSupply() (uint64, error) {
	state, err := e.readLedger()
	if err != nil {
		return 0, err
	}
	return state.TotalSupply, nil
}

// TotalAdvanced reads the sum of all outstanding advanced balances.
func (e *Engine) TotalAdvanced() (uint64, error) {
	state, err := e.readLedger()
	if err != nil {
		return 0, err
	}
	return state.TotalAdvanced, nil
}

// CumulativeReduced reads the lifetime sum of all reductions.
func (e *Engine) CumulativeReduced() (uint64, error) {
	state, err := e.readLedger()
	if err != nil {
		return 0, err
	}
	return state.CumulativeReduced, nil
}

// UnderlyingAsset reads the configured asset collaborator reference.
func (e *Engine) UnderlyingAsset() (crypto.Address, error) {
	state, err := e.readLedger()
	if err != nil {
		return crypto.Address{}, err
	}
	return state.UnderlyingAsset, nil
}

// Treasury reads the configured treasury reference, or the null identifier
// when detached.
func (e *Engine) Treasury() (crypto.Address, error) {
	state, err := e.readLedger()
	if err != nil {
		return crypto.Address{}, err
	}
	return state.Treasury, nil
}

// readLedger returns the stored ledger state, or a zero-valued state when the
// ledger has not been initialized so accessors never fail on fresh instances.
func (e *Engine) readLedger() (*LedgerState, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	state, err := e.state.YieldLedger()
	if err != nil {
		return nil, err
	}
	if state == nil {
		return &LedgerState{}, nil
	}
	return state, nil
}
