package pure

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"github.com/roach88/txblock/internal/ir"
)

// Encode converts a loosely typed value (as decoded from YAML or JSON)
// into BCS bytes for the named Move type.
//
// Supported types: u8 u16 u32 u64 u128 u256 bool address string
// vector<u8> (string or 0x-hex), and vector<T> for any supported T.
func Encode(typ string, v any) ([]byte, error) {
	typ = strings.TrimSpace(typ)
	if strings.HasPrefix(typ, "vector<") && strings.HasSuffix(typ, ">") {
		return encodeVector(typ[len("vector<"):len(typ)-1], v)
	}

	switch typ {
	case "u8", "u16", "u32", "u64":
		n, err := toUint64(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		return encodeFixed(typ, n)
	case "u128", "u256":
		big, err := toBig(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", typ, err)
		}
		if typ == "u128" {
			return U128(big)
		}
		return U256(big), nil
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("encode bool: expected boolean, got %T", v)
		}
		return Bool(b), nil
	case "address":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("encode address: expected string, got %T", v)
		}
		a, err := ir.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("encode address: %w", err)
		}
		return Address(a), nil
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("encode string: expected string, got %T", v)
		}
		return String(s), nil
	default:
		return nil, fmt.Errorf("encode: unsupported type %q", typ)
	}
}

func encodeFixed(typ string, n uint64) ([]byte, error) {
	switch typ {
	case "u8":
		if n > math.MaxUint8 {
			return nil, fmt.Errorf("encode u8: %d out of range", n)
		}
		return U8(uint8(n)), nil
	case "u16":
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("encode u16: %d out of range", n)
		}
		return U16(uint16(n)), nil
	case "u32":
		if n > math.MaxUint32 {
			return nil, fmt.Errorf("encode u32: %d out of range", n)
		}
		return U32(uint32(n)), nil
	default:
		return U64(n), nil
	}
}

func encodeVector(elem string, v any) ([]byte, error) {
	if elem == "u8" {
		if s, ok := v.(string); ok {
			if strings.HasPrefix(s, "0x") {
				raw, err := hex.DecodeString(s[2:])
				if err != nil {
					return nil, fmt.Errorf("encode vector<u8>: %w", err)
				}
				return Bytes(raw), nil
			}
			return String(s), nil
		}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("encode vector<%s>: expected list, got %T", elem, v)
	}
	parts := make([][]byte, len(items))
	for i, item := range items {
		b, err := Encode(elem, item)
		if err != nil {
			return nil, fmt.Errorf("vector<%s>[%d]: %w", elem, i, err)
		}
		parts[i] = b
	}
	return Vector(parts...), nil
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case uint64:
		return n, nil
	case string:
		return strconv.ParseUint(strings.ReplaceAll(n, "_", ""), 10, 64)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func toBig(v any) (*uint256.Int, error) {
	switch n := v.(type) {
	case string:
		if strings.HasPrefix(n, "0x") {
			digits := n[2:]
			if len(digits)%2 == 1 {
				digits = "0" + digits
			}
			raw, err := hex.DecodeString(digits)
			if err != nil {
				return nil, err
			}
			if len(raw) > 32 {
				return nil, fmt.Errorf("hex value %s exceeds 256 bits", n)
			}
			return new(uint256.Int).SetBytes(raw), nil
		}
		return uint256.FromDecimal(strings.ReplaceAll(n, "_", ""))
	default:
		u, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		return uint256.NewInt(u), nil
	}
}
