package escrow

import (
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

// ExtractDynamic returns the bytes/string payload whose offset pointer sits in
// head slot headSlot of data. The pointer is a byte offset from the start of
// data to a 32-byte length word, followed by the payload itself.
func ExtractDynamic(data []byte, headSlot uint32) ([]byte, error) {
	head := uint64(headSlot) * wordSize
	headWord, err := readWord(data, head)
	if err != nil {
		return nil, err
	}
	offset, err := wordToIndex(headWord, "offset")
	if err != nil {
		return nil, err
	}

	lengthWord, err := readWord(data, offset)
	if err != nil {
		return nil, err
	}
	length, err := wordToIndex(lengthWord, "length")
	if err != nil {
		return nil, err
	}

	start := offset + wordSize
	if length > math.MaxInt64-start {
		return nil, decodeErr(ErrInvalidLength, "", "payload length %d at offset %d overflows", length, offset)
	}
	end := start + length
	if end > uint64(len(data)) {
		return nil, decodeErr(ErrTruncatedData, "", "payload needs bytes [%d, %d), have %d", start, end, len(data))
	}
	return common.CopyBytes(data[start:end]), nil
}

// readWord returns the 32 bytes at byte offset pos.
func readWord(data []byte, pos uint64) (common.Hash, error) {
	if pos > math.MaxInt64-wordSize || pos+wordSize > uint64(len(data)) {
		return common.Hash{}, decodeErr(ErrTruncatedData, "", "word at %d exceeds data length %d", pos, len(data))
	}
	return common.BytesToHash(data[pos : pos+wordSize]), nil
}

// wordToIndex interprets a big-endian word as a byte index. Anything that
// does not fit in an int64 cannot address a real blob.
func wordToIndex(word common.Hash, what string) (uint64, error) {
	for _, b := range word[:wordSize-8] {
		if b != 0 {
			return 0, decodeErr(ErrInvalidLength, "", "%s %s exceeds addressable range", what, word.Hex())
		}
	}
	v := binary.BigEndian.Uint64(word[wordSize-8:])
	if v > math.MaxInt64 {
		return 0, decodeErr(ErrInvalidLength, "", "%s %d exceeds addressable range", what, v)
	}
	return v, nil
}
