package database

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hash is a SHA-256 digest of a canonically encoded block or transaction.
type Hash [32]byte

// ZeroHash represents a hash code of zeros. It is the previous hash of the
// genesis block.
var ZeroHash Hash

// ToHash converts a hex-encoded string into a hash.
func ToHash(s string) (Hash, error) {
	var h Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return Hash{}, err
	}

	return h, nil
}

// String returns the 0x prefixed hex form of the hash.
func (h Hash) String() string {
	return hexutil.Encode(h[:])
}

// MarshalText implements the encoding.TextMarshaler interface.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (h *Hash) UnmarshalText(text []byte) error {
	b, err := hexutil.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid hash %q: %w", text, err)
	}

	if len(b) != len(h) {
		return fmt.Errorf("invalid hash length %d", len(b))
	}

	copy(h[:], b)
	return nil
}
