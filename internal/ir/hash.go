package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/mr-tron/base58"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for algorithm migration.
const (
	DomainBlock  = "txblock/block/v1"
	DomainEntry  = "txblock/entry/v1"
	DomainObject = "txblock/object/v1"
)

// Digest is a 32-byte content hash.
type Digest [sha256.Size]byte

// String renders the digest in base58, the form shown to users.
func (d Digest) String() string {
	return base58.Encode(d[:])
}

// Hex renders the digest as lower-case hex.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes the base58 form.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := base58.Decode(s)
	if err != nil {
		return d, fmt.Errorf("digest %q: %w", s, err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("digest %q: expected %d bytes, got %d", s, len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// hashWithDomain computes SHA256(domain || 0x00 || data). The separator
// keeps domain and payload boundaries unambiguous.
func hashWithDomain(domain string, data []byte) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ContentDigest hashes the canonical JSON form of v under domain.
func ContentDigest(domain string, v any) (Digest, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return Digest{}, fmt.Errorf("content digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}

// EntryID computes the content-addressed id of a trace entry body.
func EntryID(body Object, seq int64) (string, error) {
	d, err := ContentDigest(DomainEntry, Object{"body": body, "seq": Int(seq)})
	if err != nil {
		return "", err
	}
	return d.Hex(), nil
}

// MustEntryID is like EntryID but panics on error.
func MustEntryID(body Object, seq int64) string {
	id, err := EntryID(body, seq)
	if err != nil {
		panic(err)
	}
	return id
}

// DeriveObjectID assigns the id of the index-th object created by a block.
// Ids are a pure function of the block digest and creation index.
func DeriveObjectID(block Digest, index uint64) ObjectID {
	var data [sha256.Size + 8]byte
	copy(data[:], block[:])
	binary.BigEndian.PutUint64(data[sha256.Size:], index)
	return ObjectID(hashWithDomain(DomainObject, data[:]))
}
