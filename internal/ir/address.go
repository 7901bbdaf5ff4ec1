package ir

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of account addresses and object ids.
const AddressLength = 32

// Address identifies an account or an object. Object ids share the
// address space, so ObjectID is an alias rather than a distinct type.
type Address [AddressLength]byte

// ObjectID is the identity of a stateful entity in the object store.
type ObjectID = Address

// Well-known framework addresses.
var (
	StdAddress       = MustAddress("0x1")
	FrameworkAddress = MustAddress("0x2")
	ClockID          = MustAddress("0x6")
)

// ParseAddress parses 0x-prefixed hex of 1 to 64 digits. Short forms are
// left-padded with zeros, so "0x6" is the clock singleton.
func ParseAddress(s string) (Address, error) {
	var a Address
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return a, fmt.Errorf("address %q: missing 0x prefix", s)
	}
	digits := s[2:]
	if len(digits) == 0 || len(digits) > AddressLength*2 {
		return a, fmt.Errorf("address %q: expected 1-%d hex digits, got %d", s, AddressLength*2, len(digits))
	}
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	raw, err := hex.DecodeString(digits)
	if err != nil {
		return a, fmt.Errorf("address %q: %w", s, err)
	}
	copy(a[AddressLength-len(raw):], raw)
	return a, nil
}

// MustAddress is like ParseAddress but panics on error.
// Use only for constants and tests.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies exactly AddressLength bytes into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressLength {
		return a, fmt.Errorf("address: expected %d bytes, got %d", AddressLength, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String renders the full 64-digit lower-case form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// ShortString trims leading zero digits, the form used inside type tags
// ("0x2::coin::Coin").
func (a Address) ShortString() string {
	s := strings.TrimLeft(hex.EncodeToString(a[:]), "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}

// IsZero reports whether every byte is zero.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
