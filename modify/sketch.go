package modify

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/atelier-saulx/based-sub007/schema"
	farm "github.com/dgryski/go-farm"
)

// sketchHash maps one cardinality element to the 64 bit hash the engine adds
// to its sketch. Numbers hash by their decimal form so 1 and 1.0 count once.
func sketchHash(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case string:
		return farm.Hash64([]byte(x)), true
	case []byte:
		return farm.Hash64(x), true
	}
	f, ok := schema.ToFloat(v)
	if !ok || math.IsNaN(f) {
		return 0, false
	}
	return farm.Hash64([]byte(strconv.FormatFloat(f, 'g', -1, 64))), true
}

// encodeSketch returns count(4) followed by one 8 byte hash per element.
func encodeSketch(elems []interface{}) ([]byte, bool) {
	b := make([]byte, 4+len(elems)*sketchRegSize)
	binary.LittleEndian.PutUint32(b, uint32(len(elems)))
	for i, e := range elems {
		h, ok := sketchHash(e)
		if !ok {
			return nil, false
		}
		binary.LittleEndian.PutUint64(b[4+i*sketchRegSize:], h)
	}
	return b, true
}
