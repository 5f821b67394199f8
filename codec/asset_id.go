package codec

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// AssetIDLength is the byte width of a packed asset id
const AssetIDLength = 15

// EncodeAssetID packs id into 15 bytes, zero padded on the right
func EncodeAssetID(id AssetID, collateral *CollateralAsset) (string, error) {
	if collateral != nil && id == collateral.AssetID {
		return padCollateralHash(collateral.AssetHash, AssetIDLength)
	}

	chars := []rune(string(id))
	if len(chars) > AssetIDLength {
		return "", fmt.Errorf("%w: asset id %s is longer than %d bytes", ErrEncoding, id, AssetIDLength)
	}

	bytes := make([]byte, AssetIDLength)

	for i, c := range chars {
		if c > 0xff {
			return "", fmt.Errorf("%w: asset id %s contains a non byte character", ErrEncoding, id)
		}

		bytes[i] = byte(c)
	}

	return hex.EncodeToString(bytes), nil
}

// DecodeAssetID reverses EncodeAssetID. The collateral on-chain id is recognized regardless of width.
func DecodeAssetID(value string, collateral *CollateralAsset) (AssetID, error) {
	value = strings.ToLower(strings.TrimPrefix(value, "0x"))

	if collateral.matches(value) {
		return collateral.AssetID, nil
	}

	bytes, err := hex.DecodeString(value)
	if err != nil || len(bytes) != AssetIDLength {
		return "", newDecodingError("invalid asset id %s", value)
	}

	bytes = bytes[:len(strings.TrimRight(string(bytes), "\x00"))]

	var sb strings.Builder

	for _, c := range bytes {
		sb.WriteRune(rune(c))
	}

	return AssetID(sb.String()), nil
}

func (c *CollateralAsset) matches(value string) bool {
	if c == nil || c.AssetHash == "" {
		return false
	}

	expected, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(c.AssetHash), "0x"), 16)
	if !ok {
		return false
	}

	actual, ok := new(big.Int).SetString(value, 16)

	return ok && expected.Cmp(actual) == 0
}

// readAssetID reads a padded asset id field of padding+15 bytes
func readAssetID(reader *ByteReader, padding int, collateral *CollateralAsset) (AssetID, error) {
	field, err := reader.Read(padding + AssetIDLength)
	if err != nil {
		return "", err
	}

	if collateral.matches(field) {
		return collateral.AssetID, nil
	}

	return DecodeAssetID(field[padding*2:], nil)
}

func writeAssetID(writer *ByteWriter, id AssetID, padding int, collateral *CollateralAsset) {
	if collateral != nil && id == collateral.AssetID {
		value, err := padCollateralHash(collateral.AssetHash, padding+AssetIDLength)
		if err != nil {
			writer.fail(err)

			return
		}

		writer.Write(value)

		return
	}

	value, err := EncodeAssetID(id, nil)
	if err != nil {
		writer.fail(err)

		return
	}

	writer.WritePadding(padding).Write(value)
}

func padCollateralHash(assetHash string, length int) (string, error) {
	value, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(assetHash), "0x"), 16)
	if !ok {
		return "", fmt.Errorf("%w: invalid collateral asset hash %s", ErrEncoding, assetHash)
	}

	if (value.BitLen()+7)/8 > length {
		return "", fmt.Errorf("%w: collateral asset hash %s does not fit into %d bytes", ErrEncoding, assetHash, length)
	}

	return fmt.Sprintf("%0*x", length*2, value), nil
}
