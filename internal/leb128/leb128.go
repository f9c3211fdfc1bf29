// Package leb128 encodes and decodes the variable-length integer encoding used throughout the WebAssembly
// binary format: unsigned LEB128 for indices and counts, signed LEB128 for i32.const/i64.const immediates and
// the signed 33-bit encoding used by block type immediates.
package leb128

import (
	"fmt"
	"io"
)

const maxVarintLenN64 = 10 // ceil(64/7)

// EncodeInt32 encodes v as signed LEB128.
func EncodeInt32(v int32) []byte { return encodeSigned(int64(v)) }

// EncodeInt64 encodes v as signed LEB128.
func EncodeInt64(v int64) []byte { return encodeSigned(v) }

// EncodeUint32 encodes v as unsigned LEB128.
func EncodeUint32(v uint32) []byte { return encodeUnsigned(uint64(v)) }

// EncodeUint64 encodes v as unsigned LEB128.
func EncodeUint64(v uint64) []byte { return encodeUnsigned(v) }

func encodeUnsigned(v uint64) []byte {
	out := make([]byte, 0, maxVarintLenN64)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func encodeSigned(v int64) []byte {
	out := make([]byte, 0, maxVarintLenN64)
	more := true
	for more {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		if (v == 0 && !signBitSet) || (v == -1 && signBitSet) {
			more = false
		} else {
			b |= 0x80
		}
		out = append(out, b)
	}
	return out
}

// LoadUint32 decodes the unsigned LEB128 prefix of buf, returning the value, the number of bytes consumed,
// and an error if buf is truncated or the value overflows 32 bits.
func LoadUint32(buf []byte) (uint32, uint64, error) {
	v, n, err := decodeUnsigned(buf, 32)
	return uint32(v), n, err
}

// LoadUint64 decodes the unsigned LEB128 prefix of buf.
func LoadUint64(buf []byte) (uint64, uint64, error) {
	return decodeUnsigned(buf, 64)
}

// LoadInt32 decodes the signed LEB128 prefix of buf.
func LoadInt32(buf []byte) (int32, uint64, error) {
	v, n, err := decodeSigned(buf, 32)
	return int32(v), n, err
}

// LoadInt64 decodes the signed LEB128 prefix of buf.
func LoadInt64(buf []byte) (int64, uint64, error) {
	return decodeSigned(buf, 64)
}

// DecodeUint32 reads an unsigned LEB128 value from r, one byte at a time.
func DecodeUint32(r io.ByteReader) (uint32, uint64, error) {
	v, n, err := decodeUnsignedReader(r, 32)
	return uint32(v), n, err
}

// DecodeUint64 reads an unsigned LEB128 value from r.
func DecodeUint64(r io.ByteReader) (uint64, uint64, error) {
	return decodeUnsignedReader(r, 64)
}

// DecodeInt32 reads a signed LEB128 value from r.
func DecodeInt32(r io.ByteReader) (int32, uint64, error) {
	v, n, err := decodeSignedReader(r, 32)
	return int32(v), n, err
}

// DecodeInt64 reads a signed LEB128 value from r.
func DecodeInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSignedReader(r, 64)
}

// DecodeInt33AsInt64 reads the signed 33-bit encoding used by block type immediates, where a non-negative
// result selects a type index and a negative result (a one-byte ValueType encoding such as -1 for i32's 0x7f,
// or -64 for the empty-block 0x40) selects a value type or the empty block type.
func DecodeInt33AsInt64(r io.ByteReader) (int64, uint64, error) {
	return decodeSignedReader(r, 33)
}

// LoadInt33 decodes the signed 33-bit block type immediate from a byte slice; see DecodeInt33AsInt64.
func LoadInt33(buf []byte) (int64, uint64, error) {
	return decodeSigned(buf, 33)
}

// maxBytesFor returns ceil(size/7), the number of LEB128 groups needed to carry size bits.
func maxBytesFor(size uint) uint { return (size + 6) / 7 }

func decodeUnsigned(buf []byte, size uint) (uint64, uint64, error) {
	maxBytes := maxBytesFor(size)
	var result uint64
	var shift uint
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if uint(i) >= maxBytes {
			return 0, 0, fmt.Errorf("invalid leb128: more than %d bytes for %d-bit value", maxBytes, size)
		}
		low := uint64(b & 0x7f)
		if uint(i) == maxBytes-1 {
			validBits := size - 7*(maxBytes-1)
			if low >= 1<<validBits {
				return 0, 0, fmt.Errorf("invalid leb128: overflows %d bits", size)
			}
		}
		result |= low << shift
		shift += 7
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
	}
}

func decodeSigned(buf []byte, size uint) (int64, uint64, error) {
	maxBytes := maxBytesFor(size)
	var result int64
	var shift uint
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, io.ErrUnexpectedEOF
		}
		b := buf[i]
		if uint(i) >= maxBytes {
			return 0, 0, fmt.Errorf("invalid leb128: more than %d bytes for %d-bit value", maxBytes, size)
		}
		low := int64(b & 0x7f)
		if uint(i) == maxBytes-1 {
			validBits := size - 7*(maxBytes-1)
			signBit := (low >> (validBits - 1)) & 1
			rest := low >> validBits
			var wantRest int64
			if signBit == 1 {
				wantRest = (1 << (7 - validBits)) - 1
			}
			if rest != wantRest {
				return 0, 0, fmt.Errorf("invalid leb128: overflows %d bits", size)
			}
		}
		result |= low << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && shift < size && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, uint64(i + 1), nil
		}
	}
}

func decodeUnsignedReader(r io.ByteReader, size uint) (uint64, uint64, error) {
	maxBytes := maxBytesFor(size)
	var result uint64
	var shift uint
	for i := uint(0); ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		if i >= maxBytes {
			return 0, 0, fmt.Errorf("invalid leb128: more than %d bytes for %d-bit value", maxBytes, size)
		}
		low := uint64(b & 0x7f)
		if i == maxBytes-1 {
			validBits := size - 7*(maxBytes-1)
			if low >= 1<<validBits {
				return 0, 0, fmt.Errorf("invalid leb128: overflows %d bits", size)
			}
		}
		result |= low << shift
		shift += 7
		if b&0x80 == 0 {
			return result, uint64(i + 1), nil
		}
	}
}

func decodeSignedReader(r io.ByteReader, size uint) (int64, uint64, error) {
	maxBytes := maxBytesFor(size)
	var result int64
	var shift uint
	for i := uint(0); ; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		if i >= maxBytes {
			return 0, 0, fmt.Errorf("invalid leb128: more than %d bytes for %d-bit value", maxBytes, size)
		}
		low := int64(b & 0x7f)
		if i == maxBytes-1 {
			validBits := size - 7*(maxBytes-1)
			signBit := (low >> (validBits - 1)) & 1
			rest := low >> validBits
			var wantRest int64
			if signBit == 1 {
				wantRest = (1 << (7 - validBits)) - 1
			}
			if rest != wantRest {
				return 0, 0, fmt.Errorf("invalid leb128: overflows %d bits", size)
			}
		}
		result |= low << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && shift < size && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, uint64(i + 1), nil
		}
	}
}
