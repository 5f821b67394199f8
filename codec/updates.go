package codec

import (
	"fmt"
	"strings"
)

// DecodeUpdates decodes the funding entries and position updates that follow the program output
func DecodeUpdates(data string, collateral *CollateralAsset) (*Updates, error) {
	reader, err := NewByteReader(data)
	if err != nil {
		return nil, err
	}

	funding, err := readFundingEntries(reader, collateral)
	if err != nil {
		return nil, err
	}

	positions, err := readPositionUpdates(reader, collateral)
	if err != nil {
		return nil, err
	}

	return &Updates{Funding: funding, Positions: positions}, nil
}

func EncodeUpdates(updates *Updates, collateral *CollateralAsset) (string, error) {
	if updates == nil {
		updates = &Updates{}
	}

	writer := NewByteWriter()
	writeFundingEntries(writer, updates.Funding, collateral)
	writePositionUpdates(writer, updates.Positions, collateral)

	return writer.Bytes()
}

// DecodeOnChainData decodes the memory pages of a state transition.
// The first page holds the program output, the remaining pages hold the updates.
func DecodeOnChainData(pages []string, collateral *CollateralAsset) (*OnChainData, error) {
	if len(pages) == 0 {
		return nil, newDecodingError("no memory pages")
	}

	output, err := DecodeProgramOutput(pages[0], collateral)
	if err != nil {
		return nil, err
	}

	rest := make([]string, len(pages)-1)
	for i, page := range pages[1:] {
		rest[i] = strings.TrimPrefix(page, "0x")
	}

	updates, err := DecodeUpdates(strings.Join(rest, ""), collateral)
	if err != nil {
		return nil, err
	}

	return &OnChainData{ProgramOutput: *output, Updates: *updates}, nil
}

// EncodeOnChainData returns two pages, the program output and the updates
func EncodeOnChainData(data *OnChainData, collateral *CollateralAsset) ([]string, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: missing on-chain data", ErrEncoding)
	}

	output, err := EncodeProgramOutput(&data.ProgramOutput, collateral)
	if err != nil {
		return nil, err
	}

	updates, err := EncodeUpdates(&data.Updates, collateral)
	if err != nil {
		return nil, err
	}

	return []string{output, updates}, nil
}
