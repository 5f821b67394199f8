package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrEncoding = errors.New("encoding error")

// ByteWriter is the counterpart of ByteReader. Methods can be chained,
// the first failure is kept and reported by Bytes.
type ByteWriter struct {
	builder strings.Builder
	err     error
}

func NewByteWriter() *ByteWriter {
	return &ByteWriter{}
}

// Write appends hex encoded bytes, with or without the 0x prefix
func (w *ByteWriter) Write(data string) *ByteWriter {
	if w.err != nil {
		return w
	}

	data = normalizeHex(data)

	switch {
	case !isHex(data):
		w.err = fmt.Errorf("%w: %w", ErrEncoding, ErrInvalidHex)
	case len(data)%2 != 0:
		w.err = fmt.Errorf("%w: %w", ErrEncoding, ErrNotByteAligned)
	default:
		w.builder.WriteString(data)
	}

	return w
}

func (w *ByteWriter) WritePadding(length int) *ByteWriter {
	if w.err != nil {
		return w
	}

	if length < 0 {
		w.err = fmt.Errorf("%w: negative padding %d", ErrEncoding, length)

		return w
	}

	w.builder.WriteString(strings.Repeat("00", length))

	return w
}

func (w *ByteWriter) WriteNumber(value uint64, length int) *ByteWriter {
	return w.WriteBigInt(new(big.Int).SetUint64(value), length)
}

// WriteBigInt writes value as a big-endian unsigned integer of exactly length bytes
func (w *ByteWriter) WriteBigInt(value *big.Int, length int) *ByteWriter {
	if w.err != nil {
		return w
	}

	if value == nil {
		w.err = fmt.Errorf("%w: missing value", ErrEncoding)

		return w
	}

	if value.Sign() < 0 {
		w.err = fmt.Errorf("%w: cannot write negative number %s", ErrEncoding, value)

		return w
	}

	if (value.BitLen()+7)/8 > length {
		w.err = fmt.Errorf("%w: number %s does not fit into %d bytes", ErrEncoding, value, length)

		return w
	}

	if length > 0 {
		w.builder.WriteString(fmt.Sprintf("%0*x", length*2, value))
	}

	return w
}

// writeFixed writes a hex value that must be exactly length bytes long
func (w *ByteWriter) writeFixed(data string, length int) *ByteWriter {
	if len(normalizeHex(data)) != length*2 {
		w.fail(fmt.Errorf("%w: expected %d bytes, got %q", ErrEncoding, length, data))

		return w
	}

	return w.Write(data)
}

func (w *ByteWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Bytes returns the written data as lowercase hex without the 0x prefix
func (w *ByteWriter) Bytes() (string, error) {
	if w.err != nil {
		return "", w.err
	}

	return w.builder.String(), nil
}
