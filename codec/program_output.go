package codec

import "fmt"

// DecodeProgramOutput decodes the perpetual program output of a state transition
func DecodeProgramOutput(data string, collateral *CollateralAsset) (*ProgramOutput, error) {
	reader, err := NewByteReader(data)
	if err != nil {
		return nil, err
	}

	return readProgramOutput(reader, collateral)
}

func readProgramOutput(reader *ByteReader, collateral *CollateralAsset) (output *ProgramOutput, err error) {
	output = &ProgramOutput{}

	configurationHash, err := reader.ReadHex(32)
	if err != nil {
		return nil, err
	}

	output.ConfigurationHash = Hash256(configurationHash)

	if output.AssetConfigHashes, err = readAssetConfigHashes(reader, collateral); err != nil {
		return nil, err
	}

	if output.OldState, err = readState(reader, collateral); err != nil {
		return nil, err
	}

	if output.NewState, err = readState(reader, collateral); err != nil {
		return nil, err
	}

	if output.MinimumExpirationTimestamp, err = reader.ReadBigInt(32); err != nil {
		return nil, err
	}

	if output.Modifications, err = readModifications(reader); err != nil {
		return nil, err
	}

	// forced actions size is recomputed when encoding
	if err := reader.Skip(32); err != nil {
		return nil, err
	}

	if output.ForcedActions, err = readForcedActions(reader, collateral); err != nil {
		return nil, err
	}

	if output.Conditions, err = readConditions(reader); err != nil {
		return nil, err
	}

	if !reader.IsAtEnd() {
		hash, err := reader.ReadHex(32)
		if err != nil {
			return nil, err
		}

		size, err := reader.ReadNumber(32)
		if err != nil {
			return nil, err
		}

		output.OnChainData = &OnChainDataTrailer{Hash: Hash256(hash), Size: size}
	}

	if err := reader.AssertEnd(); err != nil {
		return nil, err
	}

	return output, nil
}

// EncodeProgramOutput is the inverse of DecodeProgramOutput
func EncodeProgramOutput(output *ProgramOutput, collateral *CollateralAsset) (string, error) {
	if output == nil {
		return "", fmt.Errorf("%w: missing program output", ErrEncoding)
	}

	writer := NewByteWriter()
	writeProgramOutput(writer, output, collateral)

	return writer.Bytes()
}

func writeProgramOutput(writer *ByteWriter, output *ProgramOutput, collateral *CollateralAsset) {
	writer.writeFixed(string(output.ConfigurationHash), 32)
	writeAssetConfigHashes(writer, output.AssetConfigHashes, collateral)
	writeState(writer, output.OldState, collateral)
	writeState(writer, output.NewState, collateral)
	writer.WriteBigInt(output.MinimumExpirationTimestamp, 32)
	writeModifications(writer, output.Modifications)

	forcedActions := NewByteWriter()
	writeForcedActions(forcedActions, output.ForcedActions, collateral)

	forcedActionsData, err := forcedActions.Bytes()
	if err != nil {
		writer.fail(err)

		return
	}

	// size in words of the forced actions section, count included
	writer.WriteNumber(uint64(len(forcedActionsData)/64), 32).Write(forcedActionsData)
	writeConditions(writer, output.Conditions)

	if output.OnChainData != nil {
		writer.writeFixed(string(output.OnChainData.Hash), 32)
		writer.WriteNumber(output.OnChainData.Size, 32)
	}
}
