package codec

import (
	"errors"
	"fmt"
)

var (
	ErrDecoding       = errors.New("decoding error")
	ErrInvalidHex     = errors.New("invalid hexadecimal string")
	ErrNotByteAligned = errors.New("data is not byte aligned")
)

// DecodingError is returned by every decode routine in this package.
// It matches ErrDecoding with errors.Is.
type DecodingError struct {
	Message string
	// Err is the cause of the failure if it has its own sentinel
	Err error
}

func newDecodingError(format string, args ...any) *DecodingError {
	return &DecodingError{Message: fmt.Sprintf(format, args...)}
}

func (e *DecodingError) Error() string {
	return e.Message
}

func (e *DecodingError) Is(target error) bool {
	return target == ErrDecoding
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}
