package codec

import (
	"math/big"
	"strings"
)

// MaxSafeInteger is the largest value ReadNumber accepts
const MaxSafeInteger = 1<<53 - 1

// ByteReader reads big-endian fixed width fields from a hex encoded byte string.
// All sizes and offsets are in bytes.
type ByteReader struct {
	data     string
	position int
}

func NewByteReader(data string) (*ByteReader, error) {
	data = normalizeHex(data)

	if !isHex(data) {
		return nil, &DecodingError{Message: ErrInvalidHex.Error(), Err: ErrInvalidHex}
	}

	if len(data)%2 != 0 {
		return nil, &DecodingError{Message: ErrNotByteAligned.Error(), Err: ErrNotByteAligned}
	}

	return &ByteReader{data: data}, nil
}

func (r *ByteReader) Peek(length int) (string, error) {
	start, end := r.position*2, (r.position+length)*2
	if length < 0 || end > len(r.data) {
		return "", newDecodingError("went out of bounds")
	}

	return r.data[start:end], nil
}

func (r *ByteReader) Skip(length int) error {
	if _, err := r.Peek(length); err != nil {
		return err
	}

	r.position += length

	return nil
}

// Read returns the next length bytes as lowercase hex without the 0x prefix
func (r *ByteReader) Read(length int) (string, error) {
	value, err := r.Peek(length)
	if err != nil {
		return "", err
	}

	r.position += length

	return value, nil
}

// ReadHex is Read with the 0x prefix
func (r *ByteReader) ReadHex(length int) (string, error) {
	value, err := r.Read(length)
	if err != nil {
		return "", err
	}

	return "0x" + value, nil
}

func (r *ByteReader) ReadBigInt(length int) (*big.Int, error) {
	value, err := r.Read(length)
	if err != nil {
		return nil, err
	}

	result, ok := new(big.Int).SetString(value, 16)
	if !ok {
		// empty reads yield zero
		return new(big.Int), nil
	}

	return normalizeBigInt(result), nil
}

// ReadNumber reads an unsigned value that must fit into MaxSafeInteger
func (r *ByteReader) ReadNumber(length int) (uint64, error) {
	value, err := r.ReadBigInt(length)
	if err != nil {
		return 0, err
	}

	if value.Cmp(big.NewInt(MaxSafeInteger)) > 0 {
		return 0, newDecodingError("number too large")
	}

	return value.Uint64(), nil
}

func (r *ByteReader) IsAtEnd() bool {
	return r.position*2 == len(r.data)
}

func (r *ByteReader) AssertEnd() error {
	if !r.IsAtEnd() {
		return newDecodingError("unread data remaining")
	}

	return nil
}

// normalizeHex lowercases the value and strips the 0x prefix in either case
func normalizeHex(value string) string {
	return strings.TrimPrefix(strings.ToLower(value), "0x")
}

func isHex(value string) bool {
	for _, c := range value {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}

	return true
}

// normalizeBigInt makes zero values compare equal regardless of how they were produced
func normalizeBigInt(value *big.Int) *big.Int {
	if value.Sign() == 0 {
		return new(big.Int)
	}

	return value
}

// remainingWords bounds preallocation by the data actually left to read
func (r *ByteReader) remainingWords() int {
	return (len(r.data)/2 - r.position) / 32
}
