package crm

import (
	"encoding/base64"
	"fmt"
)

const bitsPerByte = 8

// BitVector is an immutable sequence of flags. Dependent picklist entries use
// it to state which controlling values they are valid for.
type BitVector struct {
	bits []bool
}

// NewBitVector decodes raw bytes into len(data)*8 flags. Bytes are read in
// order, but bits within a byte are read most significant first: flag i is
// bit 7-(i%8) of byte i/8.
func NewBitVector(data []byte) *BitVector {
	bits := make([]bool, len(data)*bitsPerByte)

	for i := range bits {
		bits[i] = data[i/bitsPerByte]&(1<<(bitsPerByte-1-i%bitsPerByte)) != 0
	}

	return &BitVector{bits: bits}
}

// NewBitVectorFromBools copies flags into a new vector.
func NewBitVectorFromBools(flags []bool) *BitVector {
	bits := make([]bool, len(flags))
	copy(bits, flags)

	return &BitVector{bits: bits}
}

// DecodeBitVectorBase64 decodes the base64 "validFor" encoding.
func DecodeBitVectorBase64(encoded string) (*BitVector, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding bit vector: %w", ErrMalformedResponse, err)
	}

	return NewBitVector(data), nil
}

// Len returns the number of flags.
func (v *BitVector) Len() int {
	return len(v.bits)
}

// Get returns flag i.
func (v *BitVector) Get(i int) (bool, error) {
	if i < 0 || i >= len(v.bits) {
		return false, fmt.Errorf("%w: %d not in [0, %d)", ErrBitIndexOutOfRange, i, len(v.bits))
	}

	return v.bits[i], nil
}

// Bools returns a copy of all flags.
func (v *BitVector) Bools() []bool {
	out := make([]bool, len(v.bits))
	copy(out, v.bits)

	return out
}
