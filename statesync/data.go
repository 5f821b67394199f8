package statesync

import (
	"github.com/Ethernal-Tech/starkex-infrastructure/codec"
	"github.com/Ethernal-Tech/starkex-infrastructure/indexer"
)

// PageRecord is a continuous memory page registered in the memory page fact registry
type PageRecord struct {
	BlockNumber uint64       `cbor:"1,keyasint"`
	PageHash    indexer.Hash `cbor:"2,keyasint"`
	// Data is the hex encoded page content, 32 bytes per value
	Data string `cbor:"3,keyasint"`
}

// PageMappingRecord assigns a memory page to a position of the pages of a fact
type PageMappingRecord struct {
	BlockNumber uint64       `cbor:"1,keyasint"`
	FactHash    indexer.Hash `cbor:"2,keyasint"`
	PageIndex   uint64       `cbor:"3,keyasint"`
	PageHash    indexer.Hash `cbor:"4,keyasint"`
}

type StateTransitionRecord struct {
	BlockNumber uint64       `cbor:"1,keyasint"`
	LogIndex    uint64       `cbor:"2,keyasint"`
	FactHash    indexer.Hash `cbor:"3,keyasint"`
}

// ForcedActionRecord holds exactly one forced action
type ForcedActionRecord struct {
	Withdrawal *codec.ForcedWithdrawal `cbor:"1,keyasint,omitempty"`
	Trade      *codec.ForcedTrade      `cbor:"2,keyasint,omitempty"`
}

type StateUpdateRecord struct {
	ID            uint64                 `cbor:"1,keyasint"`
	BlockNumber   uint64                 `cbor:"2,keyasint"`
	FactHash      indexer.Hash           `cbor:"3,keyasint"`
	Timestamp     uint64                 `cbor:"4,keyasint"`
	PositionRoot  codec.PedersenHash     `cbor:"5,keyasint"`
	OrderRoot     codec.PedersenHash     `cbor:"6,keyasint"`
	Positions     []codec.PositionUpdate `cbor:"7,keyasint"`
	Prices        []codec.OraclePrice    `cbor:"8,keyasint"`
	ForcedActions []ForcedActionRecord   `cbor:"9,keyasint"`
}

func newForcedActionRecord(action codec.ForcedAction) ForcedActionRecord {
	switch a := action.(type) {
	case *codec.ForcedWithdrawal:
		return ForcedActionRecord{Withdrawal: a}
	case *codec.ForcedTrade:
		return ForcedActionRecord{Trade: a}
	}

	return ForcedActionRecord{}
}

// Action returns the stored forced action or nil
func (r ForcedActionRecord) Action() codec.ForcedAction {
	switch {
	case r.Withdrawal != nil:
		return r.Withdrawal
	case r.Trade != nil:
		return r.Trade
	}

	return nil
}
