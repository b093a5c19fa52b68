package modify

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pierrec/lz4"
	"github.com/pingcap/errors"
)

// String payloads are laid out as
//
//	lang(1) compressed(1) [rawLen(4)] data crc32(4)
//
// where rawLen is only present for compressed data and the checksum always
// covers the uncompressed bytes.
const (
	stringPrefixSize = 2
	stringCRCSize    = 4
)

func encodeString(s string, lang uint8, threshold int) []byte {
	raw := []byte(s)
	if threshold >= 0 && len(raw) > threshold {
		if b := compressString(raw, lang); b != nil {
			return b
		}
	}
	b := make([]byte, stringPrefixSize+len(raw)+stringCRCSize)
	b[0] = lang
	copy(b[stringPrefixSize:], raw)
	binary.LittleEndian.PutUint32(b[len(b)-stringCRCSize:], crc32.ChecksumIEEE(raw))
	return b
}

func compressString(raw []byte, lang uint8) []byte {
	var ht [1 << 16]int
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst, ht[:])
	// n == 0 means the data is incompressible
	if err != nil || n == 0 || n+4 >= len(raw) {
		return nil
	}
	b := make([]byte, stringPrefixSize+4+n+stringCRCSize)
	b[0] = lang
	b[1] = 1
	binary.LittleEndian.PutUint32(b[2:], uint32(len(raw)))
	copy(b[6:], dst[:n])
	binary.LittleEndian.PutUint32(b[len(b)-stringCRCSize:], crc32.ChecksumIEEE(raw))
	return b
}

// DecodeString returns the text and locale code of a string payload and
// verifies its checksum.
func DecodeString(b []byte) (string, uint8, error) {
	if len(b) < stringPrefixSize+stringCRCSize {
		return "", 0, errors.Errorf("modify: string payload too short (%d)", len(b))
	}
	lang := b[0]
	data := b[stringPrefixSize : len(b)-stringCRCSize]
	if b[1] == 1 {
		if len(data) < 4 {
			return "", 0, errors.New("modify: compressed string without length")
		}
		raw := make([]byte, binary.LittleEndian.Uint32(data))
		n, err := lz4.UncompressBlock(data[4:], raw)
		if err != nil {
			return "", 0, errors.Trace(err)
		}
		data = raw[:n]
	}
	if crc32.ChecksumIEEE(data) != binary.LittleEndian.Uint32(b[len(b)-stringCRCSize:]) {
		return "", 0, errors.New("modify: string checksum mismatch")
	}
	return string(data), lang, nil
}
