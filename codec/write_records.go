package codec

import (
	"fmt"
	"math/big"
)

func writeSigned(writer *ByteWriter, value *big.Int, length int, bias *big.Int) {
	if value == nil {
		writer.fail(fmt.Errorf("%w: missing signed value", ErrEncoding))

		return
	}

	writer.WriteBigInt(new(big.Int).Sub(value, bias), length)
}

func writeAssetConfigHashes(writer *ByteWriter, hashes []AssetConfigHash, collateral *CollateralAsset) {
	writer.WriteNumber(uint64(len(hashes)), 32)

	for _, item := range hashes {
		writeAssetID(writer, item.AssetID, 17, collateral)
		writer.writeFixed(string(item.Hash), 32)
	}
}

func writeFundingIndices(writer *ByteWriter, indices []FundingIndex, collateral *CollateralAsset) {
	writer.WriteNumber(uint64(len(indices)), 32)

	for _, item := range indices {
		writeAssetID(writer, item.AssetID, 17, collateral)
		writeSigned(writer, item.Value, 32, minInt)
	}
}

func writeOraclePrices(writer *ByteWriter, prices []OraclePrice, collateral *CollateralAsset) {
	writer.WriteNumber(uint64(len(prices)), 32)

	for _, item := range prices {
		writeAssetID(writer, item.AssetID, 17, collateral)
		writer.WriteBigInt(item.Price, 32)
	}
}

func writeModifications(writer *ByteWriter, modifications []Modification) {
	writer.WriteNumber(uint64(len(modifications)), 32)

	for _, item := range modifications {
		writer.writeFixed(string(item.StarkKey), 32)
		writer.WriteBigInt(item.PositionID, 32)
		writeSigned(writer, item.Difference, 32, modificationBias)
	}
}

func writeForcedActions(writer *ByteWriter, actions []ForcedAction, collateral *CollateralAsset) {
	writer.WriteNumber(uint64(len(actions)), 32)

	for _, action := range actions {
		switch a := action.(type) {
		case *ForcedWithdrawal:
			writer.WriteNumber(uint64(ForcedActionWithdrawal), 32)
			writer.writeFixed(string(a.StarkKey), 32)
			writer.WriteBigInt(a.PositionID, 32)
			writer.WriteBigInt(a.Amount, 32)
		case *ForcedTrade:
			isABuyingSynthetic := uint64(0)
			if a.IsABuyingSynthetic {
				isABuyingSynthetic = 1
			}

			writer.WriteNumber(uint64(ForcedActionTrade), 32)
			writer.writeFixed(string(a.StarkKeyA), 32)
			writer.writeFixed(string(a.StarkKeyB), 32)
			writer.WriteBigInt(a.PositionIDA, 32)
			writer.WriteBigInt(a.PositionIDB, 32)
			writeAssetID(writer, a.SyntheticAssetID, 17, collateral)
			writer.WriteBigInt(a.CollateralAmount, 32)
			writer.WriteBigInt(a.SyntheticAmount, 32)
			writer.WriteNumber(isABuyingSynthetic, 32)
			writer.WriteBigInt(a.Nonce, 32)
		default:
			writer.fail(fmt.Errorf("%w: unknown forced action %T", ErrEncoding, action))
		}
	}
}

func writeConditions(writer *ByteWriter, conditions []PedersenHash) {
	writer.WriteNumber(uint64(len(conditions)), 32)

	for _, condition := range conditions {
		writer.writeFixed(string(condition), 32)
	}
}

func writeState(writer *ByteWriter, state State, collateral *CollateralAsset) {
	body := NewByteWriter().
		writeFixed(string(state.PositionRoot), 32).
		WriteNumber(state.PositionHeight, 32).
		writeFixed(string(state.OrderRoot), 32).
		WriteNumber(state.OrderHeight, 32)

	writeFundingIndices(body, state.Indices, collateral)
	body.WriteNumber(uint64(state.Timestamp), 32)
	writeOraclePrices(body, state.OraclePrices, collateral)
	body.WriteNumber(uint64(state.SystemTime), 32)

	data, err := body.Bytes()
	if err != nil {
		writer.fail(err)

		return
	}

	writer.WriteNumber(uint64(len(data)/64), 32).Write(data)
}

func writeFundingEntries(writer *ByteWriter, entries []FundingEntry, collateral *CollateralAsset) {
	writer.WriteNumber(uint64(len(entries)), 32)

	for _, entry := range entries {
		writeFundingIndices(writer, entry.Indices, collateral)
		writer.WriteNumber(uint64(entry.Timestamp), 32)
	}
}

func writePositionUpdates(writer *ByteWriter, updates []PositionUpdate, collateral *CollateralAsset) {
	for _, update := range updates {
		writer.WriteNumber(uint64(len(update.Balances)+4), 32)
		writer.WriteBigInt(update.PositionID, 32)
		writer.writeFixed(string(update.StarkKey), 32)
		writeSigned(writer, update.CollateralBalance, 32, minInt)
		writer.WriteNumber(uint64(update.FundingTimestamp), 32)

		for _, balance := range update.Balances {
			writeAssetID(writer, balance.AssetID, 9, collateral)
			writeSigned(writer, big.NewInt(balance.Balance), 8, minInt)
		}
	}
}
