package events

import (
	"strconv"

	"netyield/core/types"
	"netyield/crypto"
)

const (
	// TypeTreasuryConfigured is emitted when the reduction treasury changes.
	TypeTreasuryConfigured = "yield.treasury.configured"
	// TypeAssetSupplyMinted is emitted when accounting supply is minted into
	// ledger custody.
	TypeAssetSupplyMinted = "yield.supply.minted"
	// TypeAssetSupplyBurned is emitted when accounting supply is burned from
	// ledger custody.
	TypeAssetSupplyBurned = "yield.supply.burned"
	// TypeNetYieldAdvanced is emitted once per batch entry when net yield is
	// advanced to an account.
	TypeNetYieldAdvanced = "yield.advanced"
	// TypeAdvancedNetYieldReduced is emitted once per batch entry when an
	// outstanding advance is clawed back.
	TypeAdvancedNetYieldReduced = "yield.reduced"
)

// TreasuryConfigured captures a treasury rotation, including detachment to the
// null identifier.
type TreasuryConfigured struct {
	New crypto.Address
	Old crypto.Address
}

func (TreasuryConfigured) EventType() string { return TypeTreasuryConfigured }

// Event renders the structured record for downstream consumers.
func (e TreasuryConfigured) Event() *types.Event {
	return &types.Event{
		Type: TypeTreasuryConfigured,
		Attributes: map[string]string{
			"new": renderAddress(e.New),
			"old": renderAddress(e.Old),
		},
	}
}

// AssetSupplyMinted captures a supply increase.
type AssetSupplyMinted struct {
	Amount uint64
	Total  uint64
}

func (AssetSupplyMinted) EventType() string { return TypeAssetSupplyMinted }

func (e AssetSupplyMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetSupplyMinted,
		Attributes: map[string]string{
			"amount": strconv.FormatUint(e.Amount, 10),
			"total":  strconv.FormatUint(e.Total, 10),
		},
	}
}

// AssetSupplyBurned captures a supply decrease.
type AssetSupplyBurned struct {
	Amount uint64
	Total  uint64
}

func (AssetSupplyBurned) EventType() string { return TypeAssetSupplyBurned }

func (e AssetSupplyBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeAssetSupplyBurned,
		Attributes: map[string]string{
			"amount": strconv.FormatUint(e.Amount, 10),
			"total":  strconv.FormatUint(e.Total, 10),
		},
	}
}

// NetYieldAdvanced captures one advance batch entry.
type NetYieldAdvanced struct {
	Account crypto.Address
	Amount  uint64
}

func (NetYieldAdvanced) EventType() string { return TypeNetYieldAdvanced }

func (e NetYieldAdvanced) Event() *types.Event {
	return &types.Event{
		Type: TypeNetYieldAdvanced,
		Attributes: map[string]string{
			"account": renderAddress(e.Account),
			"amount":  strconv.FormatUint(e.Amount, 10),
		},
	}
}

// AdvancedNetYieldReduced captures one reduce batch entry.
type AdvancedNetYieldReduced struct {
	Account crypto.Address
	Amount  uint64
}

func (AdvancedNetYieldReduced) EventType() string { return TypeAdvancedNetYieldReduced }

func (e AdvancedNetYieldReduced) Event() *types.Event {
	return &types.Event{
		Type: TypeAdvancedNetYieldReduced,
		Attributes: map[string]string{
			"account": renderAddress(e.Account),
			"amount":  strconv.FormatUint(e.Amount, 10),
		},
	}
}

func renderAddress(addr crypto.Address) string {
	if addr.IsZero() {
		return ""
	}
	return addr.String()
}
