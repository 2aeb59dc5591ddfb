package escrow

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Values holds the raw decoded fields of one log keyed by field name.
// Static fields are kept as their 32-byte word, dynamic fields as bytes.
type Values struct {
	words   map[string]common.Hash
	dynamic map[string][]byte
}

func NewValues() Values {
	return Values{
		words:   make(map[string]common.Hash),
		dynamic: make(map[string][]byte),
	}
}

func (v Values) SetWord(name string, word common.Hash) { v.words[name] = word }

func (v Values) SetBytes(name string, b []byte) { v.dynamic[name] = common.CopyBytes(b) }

// Word returns the static word for name.
func (v Values) Word(name string) (common.Hash, bool) {
	w, ok := v.words[name]
	return w, ok
}

// Big reads a word as a big-endian unsigned integer.
func (v Values) Big(name string) *big.Int {
	w := v.words[name]
	return new(big.Int).SetBytes(w[:])
}

// Uint64 reads the low 8 bytes of a word. Widths were checked on unpack.
func (v Values) Uint64(name string) uint64 {
	return v.Big(name).Uint64()
}

// Address takes the low 20 bytes of a word.
func (v Values) Address(name string) common.Address {
	w := v.words[name]
	return common.BytesToAddress(w[common.HashLength-common.AddressLength:])
}

// Hash returns the word verbatim.
func (v Values) Hash(name string) common.Hash { return v.words[name] }

// Bool is true for a non-zero word. Only 0 and 1 pass unpack.
func (v Values) Bool(name string) bool {
	w := v.words[name]
	return w != (common.Hash{})
}

// Bytes returns a dynamic field.
func (v Values) Bytes(name string) []byte {
	b, ok := v.dynamic[name]
	if !ok {
		return []byte{}
	}
	return b
}
