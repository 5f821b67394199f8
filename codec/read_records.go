package codec

import (
	"math/big"
)

var (
	// minInt is added to the raw value of signed 32 byte fields and 8 byte balances
	minInt = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 63))
	// modificationBias is added to the raw value of modification deltas
	modificationBias = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 64))
)

func readSigned(reader *ByteReader, length int, bias *big.Int) (*big.Int, error) {
	raw, err := reader.ReadBigInt(length)
	if err != nil {
		return nil, err
	}

	return normalizeBigInt(raw.Add(raw, bias)), nil
}

func readCount(reader *ByteReader) (int, error) {
	count, err := reader.ReadNumber(32)

	return int(count), err
}

func readAssetConfigHashes(reader *ByteReader, collateral *CollateralAsset) ([]AssetConfigHash, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]AssetConfigHash, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		assetID, err := readAssetID(reader, 17, collateral)
		if err != nil {
			return nil, err
		}

		hash, err := reader.ReadHex(32)
		if err != nil {
			return nil, err
		}

		result = append(result, AssetConfigHash{AssetID: assetID, Hash: PedersenHash(hash)})
	}

	return result, nil
}

func readFundingIndices(reader *ByteReader, collateral *CollateralAsset) ([]FundingIndex, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]FundingIndex, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		assetID, err := readAssetID(reader, 17, collateral)
		if err != nil {
			return nil, err
		}

		value, err := readSigned(reader, 32, minInt)
		if err != nil {
			return nil, err
		}

		result = append(result, FundingIndex{AssetID: assetID, Value: value})
	}

	return result, nil
}

func readOraclePrices(reader *ByteReader, collateral *CollateralAsset) ([]OraclePrice, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]OraclePrice, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		assetID, err := readAssetID(reader, 17, collateral)
		if err != nil {
			return nil, err
		}

		price, err := reader.ReadBigInt(32)
		if err != nil {
			return nil, err
		}

		result = append(result, OraclePrice{AssetID: assetID, Price: price})
	}

	return result, nil
}

func readModifications(reader *ByteReader) ([]Modification, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]Modification, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		starkKey, err := reader.ReadHex(32)
		if err != nil {
			return nil, err
		}

		positionID, err := reader.ReadBigInt(32)
		if err != nil {
			return nil, err
		}

		difference, err := readSigned(reader, 32, modificationBias)
		if err != nil {
			return nil, err
		}

		result = append(result, Modification{
			StarkKey:   StarkKey(starkKey),
			PositionID: positionID,
			Difference: difference,
		})
	}

	return result, nil
}

func readForcedActions(reader *ByteReader, collateral *CollateralAsset) ([]ForcedAction, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]ForcedAction, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		actionType, err := reader.ReadBigInt(32)
		if err != nil {
			return nil, err
		}

		var action ForcedAction

		switch {
		case actionType.Cmp(big.NewInt(int64(ForcedActionWithdrawal))) == 0:
			action, err = readForcedWithdrawal(reader)
		case actionType.Cmp(big.NewInt(int64(ForcedActionTrade))) == 0:
			action, err = readForcedTrade(reader, collateral)
		default:
			return nil, newDecodingError("unknown forced action type %s", actionType)
		}

		if err != nil {
			return nil, err
		}

		result = append(result, action)
	}

	return result, nil
}

func readForcedWithdrawal(reader *ByteReader) (*ForcedWithdrawal, error) {
	starkKey, err := reader.ReadHex(32)
	if err != nil {
		return nil, err
	}

	positionID, err := reader.ReadBigInt(32)
	if err != nil {
		return nil, err
	}

	amount, err := reader.ReadBigInt(32)
	if err != nil {
		return nil, err
	}

	return &ForcedWithdrawal{
		StarkKey:   StarkKey(starkKey),
		PositionID: positionID,
		Amount:     amount,
	}, nil
}

func readForcedTrade(reader *ByteReader, collateral *CollateralAsset) (*ForcedTrade, error) {
	var (
		trade ForcedTrade
		err   error
		keyA  string
		keyB  string
	)

	if keyA, err = reader.ReadHex(32); err != nil {
		return nil, err
	}

	if keyB, err = reader.ReadHex(32); err != nil {
		return nil, err
	}

	trade.StarkKeyA, trade.StarkKeyB = StarkKey(keyA), StarkKey(keyB)

	if trade.PositionIDA, err = reader.ReadBigInt(32); err != nil {
		return nil, err
	}

	if trade.PositionIDB, err = reader.ReadBigInt(32); err != nil {
		return nil, err
	}

	if trade.SyntheticAssetID, err = readAssetID(reader, 17, collateral); err != nil {
		return nil, err
	}

	if trade.CollateralAmount, err = reader.ReadBigInt(32); err != nil {
		return nil, err
	}

	if trade.SyntheticAmount, err = reader.ReadBigInt(32); err != nil {
		return nil, err
	}

	isABuyingSynthetic, err := reader.ReadBigInt(32)
	if err != nil {
		return nil, err
	}

	trade.IsABuyingSynthetic = isABuyingSynthetic.Sign() != 0

	if trade.Nonce, err = reader.ReadBigInt(32); err != nil {
		return nil, err
	}

	return &trade, nil
}

func readConditions(reader *ByteReader) ([]PedersenHash, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]PedersenHash, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		hash, err := reader.ReadHex(32)
		if err != nil {
			return nil, err
		}

		result = append(result, PedersenHash(hash))
	}

	return result, nil
}

// readState reads a length prefixed state. The length is in 32 byte words and must match exactly.
func readState(reader *ByteReader, collateral *CollateralAsset) (state State, err error) {
	length, err := readCount(reader)
	if err != nil {
		return state, err
	}

	body, err := reader.Read(length * 32)
	if err != nil {
		return state, err
	}

	sub, err := NewByteReader(body)
	if err != nil {
		return state, err
	}

	positionRoot, err := sub.ReadHex(32)
	if err != nil {
		return state, err
	}

	if state.PositionHeight, err = sub.ReadNumber(32); err != nil {
		return state, err
	}

	orderRoot, err := sub.ReadHex(32)
	if err != nil {
		return state, err
	}

	if state.OrderHeight, err = sub.ReadNumber(32); err != nil {
		return state, err
	}

	if state.Indices, err = readFundingIndices(sub, collateral); err != nil {
		return state, err
	}

	timestamp, err := sub.ReadNumber(32)
	if err != nil {
		return state, err
	}

	if state.OraclePrices, err = readOraclePrices(sub, collateral); err != nil {
		return state, err
	}

	systemTime, err := sub.ReadNumber(32)
	if err != nil {
		return state, err
	}

	if err := sub.AssertEnd(); err != nil {
		return state, err
	}

	state.PositionRoot = PedersenHash(positionRoot)
	state.OrderRoot = PedersenHash(orderRoot)
	state.Timestamp = Timestamp(timestamp)
	state.SystemTime = Timestamp(systemTime)

	return state, nil
}

func readFundingEntries(reader *ByteReader, collateral *CollateralAsset) ([]FundingEntry, error) {
	count, err := readCount(reader)
	if err != nil {
		return nil, err
	}

	result := make([]FundingEntry, 0, min(count, reader.remainingWords()))

	for i := 0; i < count; i++ {
		indices, err := readFundingIndices(reader, collateral)
		if err != nil {
			return nil, err
		}

		timestamp, err := reader.ReadNumber(32)
		if err != nil {
			return nil, err
		}

		result = append(result, FundingEntry{Indices: indices, Timestamp: Timestamp(timestamp)})
	}

	return result, nil
}

// readPositionUpdates reads position updates until the end of the data
func readPositionUpdates(reader *ByteReader, collateral *CollateralAsset) ([]PositionUpdate, error) {
	result := []PositionUpdate{}

	for !reader.IsAtEnd() {
		wordCount, err := readCount(reader)
		if err != nil {
			return nil, err
		}

		if wordCount < 4 {
			return nil, newDecodingError("invalid position update length %d", wordCount)
		}

		update := PositionUpdate{}

		if update.PositionID, err = reader.ReadBigInt(32); err != nil {
			return nil, err
		}

		starkKey, err := reader.ReadHex(32)
		if err != nil {
			return nil, err
		}

		update.StarkKey = StarkKey(starkKey)

		if update.CollateralBalance, err = readSigned(reader, 32, minInt); err != nil {
			return nil, err
		}

		fundingTimestamp, err := reader.ReadNumber(32)
		if err != nil {
			return nil, err
		}

		update.FundingTimestamp = Timestamp(fundingTimestamp)
		update.Balances = make([]AssetBalance, 0, min(wordCount-4, reader.remainingWords()))

		for j := 0; j < wordCount-4; j++ {
			assetID, err := readAssetID(reader, 9, collateral)
			if err != nil {
				return nil, err
			}

			balance, err := readSigned(reader, 8, minInt)
			if err != nil {
				return nil, err
			}

			update.Balances = append(update.Balances, AssetBalance{AssetID: assetID, Balance: balance.Int64()})
		}

		result = append(result, update)
	}

	return result, nil
}
