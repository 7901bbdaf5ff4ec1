// Package pure encodes and decodes the BCS bytes carried by pure block
// inputs. Integers are little-endian, sequences are prefixed with a
// ULEB128 length.
package pure

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/holiman/uint256"

	"github.com/roach88/txblock/internal/ir"
)

// ErrTruncated is returned when input ends before a value is complete.
var ErrTruncated = errors.New("bcs: truncated input")

func U8(v uint8) []byte { return []byte{v} }

func U16(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

func U32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }

func U64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func Bool(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func Address(a ir.Address) []byte {
	return append([]byte(nil), a[:]...)
}

// U128 encodes v as 16 little-endian bytes.
func U128(v *uint256.Int) ([]byte, error) {
	if v.BitLen() > 128 {
		return nil, fmt.Errorf("bcs: value %s overflows u128", v.Dec())
	}
	be := v.Bytes32()
	le := be[16:]
	out := slices.Clone(le)
	slices.Reverse(out)
	return out, nil
}

// U256 encodes v as 32 little-endian bytes.
func U256(v *uint256.Int) []byte {
	be := v.Bytes32()
	out := be[:]
	slices.Reverse(out)
	return out
}

// ULEB128 appends the unsigned LEB128 encoding of n.
func ULEB128(dst []byte, n uint64) []byte {
	for n >= 0x80 {
		dst = append(dst, byte(n)|0x80)
		n >>= 7
	}
	return append(dst, byte(n))
}

// Bytes encodes vector<u8>.
func Bytes(b []byte) []byte {
	out := ULEB128(nil, uint64(len(b)))
	return append(out, b...)
}

// String encodes a UTF-8 string (same layout as vector<u8>).
func String(s string) []byte {
	return Bytes([]byte(s))
}

// Vector concatenates already-encoded elements behind a length prefix.
func Vector(elems ...[]byte) []byte {
	out := ULEB128(nil, uint64(len(elems)))
	for _, e := range elems {
		out = append(out, e...)
	}
	return out
}

// ReadULEB128 decodes a length prefix and returns it with the bytes consumed.
func ReadULEB128(b []byte) (uint64, int, error) {
	var n uint64
	for i := 0; i < len(b) && i < 10; i++ {
		n |= uint64(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return n, i + 1, nil
		}
	}
	return 0, 0, ErrTruncated
}

// DecodeU64 reads exactly eight bytes.
func DecodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("bcs: u64 needs 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DecodeBool reads a single 0/1 byte.
func DecodeBool(b []byte) (bool, error) {
	if len(b) != 1 || b[0] > 1 {
		return false, fmt.Errorf("bcs: invalid bool encoding %x", b)
	}
	return b[0] == 1, nil
}

// DecodeAddress reads a 32-byte address.
func DecodeAddress(b []byte) (ir.Address, error) {
	return ir.AddressFromBytes(b)
}

// DecodeBytes reads a vector<u8> that spans all of b.
func DecodeBytes(b []byte) ([]byte, error) {
	n, used, err := ReadULEB128(b)
	if err != nil {
		return nil, err
	}
	rest := b[used:]
	if uint64(len(rest)) != n {
		return nil, fmt.Errorf("bcs: vector<u8> declares %d bytes, has %d", n, len(rest))
	}
	return slices.Clone(rest), nil
}

// DecodeU256 reads 32 little-endian bytes.
func DecodeU256(b []byte) (*uint256.Int, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("bcs: u256 needs 32 bytes, got %d", len(b))
	}
	be := slices.Clone(b)
	slices.Reverse(be)
	return new(uint256.Int).SetBytes(be), nil
}
