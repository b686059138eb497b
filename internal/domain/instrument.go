package domain

import (
	"github.com/samber/lo"
)

// InstrumentKind classifies yield instruments.
type InstrumentKind string

const (
	KindVault       InstrumentKind = "vault"
	KindStakingPool InstrumentKind = "stakingPool"
)

// Instrument describes one yield-bearing contract the dashboard knows about.
// DeclaredAprBps of 0 means the APR is read live from the contract.
type Instrument struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Symbol         string         `json:"symbol"`
	Address        string         `json:"address"`
	TokenAddress   string         `json:"tokenAddress"`
	Decimals       int            `json:"decimals"`
	DeclaredAprBps int64          `json:"declaredAprBps,omitempty"`
	Kind           InstrumentKind `json:"kind"`
}

// InstrumentRegistry holds all instruments served by the dashboard.
// Loaded at process start, never mutated at runtime; all tokens use 18 decimals.
var InstrumentRegistry = []Instrument{
	{
		ID:             "hy-fixed-vault",
		Name:           "HashYield Fixed Vault",
		Symbol:         "HYF",
		Address:        "0x4a3b2c1d0e9f8a7b6c5d4e3f2a1b0c9d8e7f6a5b",
		TokenAddress:   "0x00000000000000000000000000000000004d2e61",
		Decimals:       18,
		DeclaredAprBps: 1250,
		Kind:           KindVault,
	},
	{
		ID:           "hy-flex-vault",
		Name:         "HashYield Flex Vault",
		Symbol:       "HYX",
		Address:      "0x7f6e5d4c3b2a190807f6e5d4c3b2a19080706f5e",
		TokenAddress: "0x00000000000000000000000000000000004d2e61",
		Decimals:     18,
		Kind:         KindVault,
	},
	{
		ID:             "hgn-staking",
		Name:           "Hashgain Staking Pool",
		Symbol:         "HGN",
		Address:        "0x1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d",
		TokenAddress:   "0x00000000000000000000000000000000005e1a22",
		Decimals:       18,
		DeclaredAprBps: 800,
		Kind:           KindStakingPool,
	},
	{
		ID:           "hgn-boost-pool",
		Name:         "Hashgain Boost Pool",
		Symbol:       "HGB",
		Address:      "0x9c8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d",
		TokenAddress: "0x00000000000000000000000000000000005e1a22",
		Decimals:     18,
		Kind:         KindStakingPool,
	},
}

// InstrumentByID looks up a registered instrument by its ID.
func InstrumentByID(id string) (Instrument, bool) {
	return lo.Find(InstrumentRegistry, func(i Instrument) bool {
		return i.ID == id
	})
}

// Vaults returns all registered fixed-term vaults.
func Vaults() []Instrument {
	return lo.Filter(InstrumentRegistry, func(i Instrument, _ int) bool {
		return i.Kind == KindVault
	})
}

// Pools returns all registered staking pools.
func Pools() []Instrument {
	return lo.Filter(InstrumentRegistry, func(i Instrument, _ int) bool {
		return i.Kind == KindStakingPool
	})
}

// LiveRateInstruments returns instruments whose APR is read from the contract.
func LiveRateInstruments() []Instrument {
	return lo.Filter(InstrumentRegistry, func(i Instrument, _ int) bool {
		return i.DeclaredAprBps == 0
	})
}
