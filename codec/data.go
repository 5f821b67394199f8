package codec

import "math/big"

// AssetID is a short ASCII asset identifier such as "ETH-9"
type AssetID string

// StarkKey is a 0x prefixed 32 byte stark public key
type StarkKey string

// PedersenHash is a 0x prefixed 32 byte pedersen hash
type PedersenHash string

// Hash256 is a 0x prefixed 32 byte hash
type Hash256 string

// Timestamp is in seconds
type Timestamp uint64

// CollateralAsset describes a venue whose collateral asset is stored on chain as an opaque
// numeric id instead of the packed ASCII form.
type CollateralAsset struct {
	AssetID   AssetID `json:"assetId" yaml:"assetId"`
	AssetHash string  `json:"assetHash" yaml:"assetHash"`
}

type AssetConfigHash struct {
	AssetID AssetID
	Hash    PedersenHash
}

type FundingIndex struct {
	AssetID AssetID
	Value   *big.Int
}

type OraclePrice struct {
	AssetID AssetID
	Price   *big.Int
}

type State struct {
	PositionRoot   PedersenHash
	PositionHeight uint64
	OrderRoot      PedersenHash
	OrderHeight    uint64
	Indices        []FundingIndex
	Timestamp      Timestamp
	OraclePrices   []OraclePrice
	SystemTime     Timestamp
}

type Modification struct {
	StarkKey   StarkKey
	PositionID *big.Int
	Difference *big.Int
}

type ForcedActionType uint64

const (
	ForcedActionWithdrawal ForcedActionType = 0
	ForcedActionTrade      ForcedActionType = 1
)

// ForcedAction is either *ForcedWithdrawal or *ForcedTrade
type ForcedAction interface {
	Type() ForcedActionType
}

type ForcedWithdrawal struct {
	StarkKey   StarkKey
	PositionID *big.Int
	Amount     *big.Int
}

func (fw *ForcedWithdrawal) Type() ForcedActionType {
	return ForcedActionWithdrawal
}

type ForcedTrade struct {
	StarkKeyA          StarkKey
	StarkKeyB          StarkKey
	PositionIDA        *big.Int
	PositionIDB        *big.Int
	SyntheticAssetID   AssetID
	CollateralAmount   *big.Int
	SyntheticAmount    *big.Int
	IsABuyingSynthetic bool
	Nonce              *big.Int
}

func (ft *ForcedTrade) Type() ForcedActionType {
	return ForcedActionTrade
}

// OnChainDataTrailer is present in the program output of rollup (data availability) venues
type OnChainDataTrailer struct {
	Hash Hash256
	Size uint64
}

type ProgramOutput struct {
	ConfigurationHash          Hash256
	AssetConfigHashes          []AssetConfigHash
	OldState                   State
	NewState                   State
	MinimumExpirationTimestamp *big.Int
	Modifications              []Modification
	ForcedActions              []ForcedAction
	Conditions                 []PedersenHash
	OnChainData                *OnChainDataTrailer
}

type FundingEntry struct {
	Indices   []FundingIndex
	Timestamp Timestamp
}

type AssetBalance struct {
	AssetID AssetID
	Balance int64
}

type PositionUpdate struct {
	PositionID        *big.Int
	StarkKey          StarkKey
	CollateralBalance *big.Int
	FundingTimestamp  Timestamp
	Balances          []AssetBalance
}

type Updates struct {
	Funding   []FundingEntry
	Positions []PositionUpdate
}

// OnChainData is the program output followed by the updates region
type OnChainData struct {
	ProgramOutput
	Updates
}
