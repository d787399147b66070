package state

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"netyield/core/types"
	"netyield/crypto"
	"netyield/native/yield"
	"netyield/storage"
)

const (
	prefixYieldLedger  = "yield/ledger"
	prefixYieldAccount = "yield/acct/"
	prefixTokenAccount = "token/acct/"
	prefixRole         = "roles/"
	prefixPause        = "pause/"
)

// Manager persists ledger records over a key-value database. Writes issued
// between Begin and Commit are staged in an overlay; Discard drops them. A
// failed batch therefore leaves the store untouched, which is what gives the
// mutating operations their whole-batch atomicity.
//
// Manager methods are not safe for concurrent use; the owning service
// serializes operations, matching the strictly serialized execution model the
// ledger assumes.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

// NewManager wraps the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a staging overlay. Calling Begin with an overlay already open
// discards the previous stage.
func (m *Manager) Begin() {
	m.overlay = make(map[string][]byte)
}

// Commit flushes all staged writes to the database as one atomic batch and
// closes the overlay. Keys are staged in deterministic order.
func (m *Manager) Commit() error {
	if m.overlay == nil {
		return nil
	}
	keys := make([]string, 0, len(m.overlay))
	for k := range m.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(storage.Batch)
	for _, k := range keys {
		batch.Put([]byte(k), m.overlay[k])
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.overlay = nil
	return nil
}

// Discard drops every staged write and closes the overlay.
func (m *Manager) Discard() {
	m.overlay = nil
}

func storageKey(parts ...string) []byte {
	return ethcrypto.Keccak256([]byte("netyield/" + strings.Join(parts, "")))
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if m.overlay != nil {
		if value, ok := m.overlay[string(key)]; ok {
			return value, nil
		}
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) put(key, value []byte) error {
	if m.overlay != nil {
		m.overlay[string(key)] = value
		return nil
	}
	return m.db.Put(key, value)
}

// --- Yield ledger records ---

type ledgerStateRLP struct {
	UnderlyingAsset []byte
	Treasury        []byte
	TotalSupply     uint64
	TotalAdvanced   uint64
	CumulativeRed   uint64
}

// YieldLedger loads the singleton ledger state, or nil when the ledger has not
// been initialized.
func (m *Manager) YieldLedger() (*yield.LedgerState, error) {
	data, err := m.get(storageKey(prefixYieldLedger))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var stored ledgerStateRLP
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode yield ledger: %w", err)
	}
	state := &yield.LedgerState{
		TotalSupply:       stored.TotalSupply,
		TotalAdvanced:     stored.TotalAdvanced,
		CumulativeReduced: stored.CumulativeRed,
	}
	if len(stored.UnderlyingAsset) == crypto.AddressLength {
		state.UnderlyingAsset = crypto.MustNewAddress(crypto.AccountPrefix, stored.UnderlyingAsset)
	}
	if len(stored.Treasury) == crypto.AddressLength {
		state.Treasury = crypto.MustNewAddress(crypto.TreasuryPrefix, stored.Treasury)
	}
	return state, nil
}

// PutYieldLedger stores the singleton ledger state.
func (m *Manager) PutYieldLedger(state *yield.LedgerState) error {
	if state == nil {
		return fmt.Errorf("state: nil yield ledger")
	}
	stored := ledgerStateRLP{
		TotalSupply:   state.TotalSupply,
		TotalAdvanced: state.TotalAdvanced,
		CumulativeRed: state.CumulativeReduced,
	}
	if !state.UnderlyingAsset.IsZero() {
		stored.UnderlyingAsset = state.UnderlyingAsset.Bytes()
	}
	if !state.Treasury.IsZero() {
		stored.Treasury = state.Treasury.Bytes()
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return fmt.Errorf("state: encode yield ledger: %w", err)
	}
	return m.put(storageKey(prefixYieldLedger), encoded)
}

type accountRecordRLP struct {
	Advanced      uint64
	CumulativeRed uint64
}

// YieldAccount loads the advance record for an account. Unknown accounts read
// as all-zero.
func (m *Manager) YieldAccount(addr crypto.Address) (*yield.AccountRecord, error) {
	record := &yield.AccountRecord{Address: addr}
	data, err := m.get(storageKey(prefixYieldAccount, hex.EncodeToString(addr.Bytes())))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return record, nil
	}
	var stored accountRecordRLP
	if err := rlp.DecodeBytes(data, &stored); err != nil {
		return nil, fmt.Errorf("state: decode yield account: %w", err)
	}
	record.Advanced = stored.Advanced
	record.CumulativeReduced = stored.CumulativeRed
	return record, nil
}

// PutYieldAccount stores the advance record for an account.
func (m *Manager) PutYieldAccount(record *yield.AccountRecord) error {
	if record == nil {
		return fmt.Errorf("state: nil yield account record")
	}
	encoded, err := rlp.EncodeToBytes(accountRecordRLP{
		Advanced:      record.Advanced,
		CumulativeRed: record.CumulativeReduced,
	})
	if err != nil {
		return fmt.Errorf("state: encode yield account: %w", err)
	}
	return m.put(storageKey(prefixYieldAccount, hex.EncodeToString(record.Address.Bytes())), encoded)
}

// --- Token accounts ---

// TokenAccount loads the fungible asset balance record for an address. Unknown
// accounts read as zero-balance.
func (m *Manager) TokenAccount(addr crypto.Address) (*types.TokenAccount, error) {
	data, err := m.get(storageKey(prefixTokenAccount, hex.EncodeToString(addr.Bytes())))
	if err != nil {
		return nil, err
	}
	account := &types.TokenAccount{}
	if len(data) == 0 {
		return account, nil
	}
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("state: decode token account: %w", err)
	}
	return account, nil
}

// PutTokenAccount stores the fungible asset balance record for an address.
func (m *Manager) PutTokenAccount(addr crypto.Address, account *types.TokenAccount) error {
	if account == nil {
		return fmt.Errorf("state: nil token account")
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("state: encode token account: %w", err)
	}
	return m.put(storageKey(prefixTokenAccount, hex.EncodeToString(addr.Bytes())), encoded)
}

// --- Role membership ---

func roleKey(role string) []byte {
	return storageKey(prefixRole, strings.ToUpper(strings.TrimSpace(role)))
}

func (m *Manager) roleMembers(role string) ([][]byte, error) {
	data, err := m.get(roleKey(role))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return [][]byte{}, nil
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, fmt.Errorf("state: decode role members: %w", err)
	}
	return members, nil
}

// SetRole grants the capability to the address. Idempotent.
func (m *Manager) SetRole(role string, addr []byte) error {
	if len(addr) != crypto.AddressLength {
		return fmt.Errorf("state: role member must be %d bytes", crypto.AddressLength)
	}
	members, err := m.roleMembers(role)
	if err != nil {
		return err
	}
	for _, existing := range members {
		if bytes.Equal(existing, addr) {
			return nil
		}
	}
	members = append(members, append([]byte(nil), addr...))
	sort.Slice(members, func(i, j int) bool {
		return hex.EncodeToString(members[i]) < hex.EncodeToString(members[j])
	})
	encoded, err := rlp.EncodeToBytes(members)
	if err != nil {
		return err
	}
	return m.put(roleKey(role), encoded)
}

// UnsetRole revokes the capability from the address. Revoking an absent member
// is a no-op.
func (m *Manager) UnsetRole(role string, addr []byte) error {
	members, err := m.roleMembers(role)
	if err != nil {
		return err
	}
	filtered := members[:0]
	for _, existing := range members {
		if !bytes.Equal(existing, addr) {
			filtered = append(filtered, existing)
		}
	}
	encoded, err := rlp.EncodeToBytes(filtered)
	if err != nil {
		return err
	}
	return m.put(roleKey(role), encoded)
}

// RoleMembers returns all addresses holding the capability, sorted.
func (m *Manager) RoleMembers(role string) ([][]byte, error) {
	return m.roleMembers(role)
}

// HasRole reports whether the address holds the capability. Read errors report
// false, matching the best-effort semantics the guard callers expect.
func (m *Manager) HasRole(role string, addr []byte) bool {
	if len(addr) == 0 {
		return false
	}
	members, err := m.roleMembers(role)
	if err != nil {
		return false
	}
	for _, member := range members {
		if bytes.Equal(member, addr) {
			return true
		}
	}
	return false
}

// --- Pause flags ---

// SetPaused toggles the pause flag for a module.
func (m *Manager) SetPaused(module string, paused bool) error {
	value := []byte{0}
	if paused {
		value = []byte{1}
	}
	return m.put(storageKey(prefixPause, strings.TrimSpace(module)), value)
}

// IsPaused reports whether the module is halted. Read errors report unpaused.
func (m *Manager) IsPaused(module string) bool {
	data, err := m.get(storageKey(prefixPause, strings.TrimSpace(module)))
	if err != nil {
		return false
	}
	return len(data) == 1 && data[0] == 1
}
