package modify

import (
	"encoding/binary"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/cznic/mathutil"
)

const (
	defaultInitialSize = 4 * 1024
	// DefaultCompressThreshold is the string size above which payloads are
	// compressed.
	DefaultCompressThreshold = 200
)

// Ctx is the cursor of one modify request. Commands are appended at len and
// never exceed max bytes. A Ctx has a single owner; it is reset between
// requests and must not be shared by concurrent writers.
type Ctx struct {
	buf []byte
	len int
	max int

	arena             *Arena
	snap              *schema.Snapshot
	lang              uint8
	compressThreshold int
}

// NewCtx creates a cursor that holds at most max bytes. Pending references
// are resolved through arena, which may be nil.
func NewCtx(max int, arena *Arena) *Ctx {
	return &Ctx{
		buf:               make([]byte, mathutil.Min(max, defaultInitialSize)),
		max:               max,
		arena:             arena,
		compressThreshold: DefaultCompressThreshold,
	}
}

// SetSchema sets the snapshot used to map locale names of text values.
func (ctx *Ctx) SetSchema(snap *schema.Snapshot) {
	ctx.snap = snap
}

// SetLang sets the locale code used for text values given as plain strings.
func (ctx *Ctx) SetLang(code uint8) {
	ctx.lang = code
}

// SetCompressThreshold sets the string size above which payloads are
// compressed. A negative value disables compression.
func (ctx *Ctx) SetCompressThreshold(n int) {
	ctx.compressThreshold = n
}

func (ctx *Ctx) Len() int {
	return ctx.len
}

func (ctx *Ctx) Max() int {
	return ctx.max
}

// Bytes returns the commands written so far. The slice is only valid until
// the next write or Reset.
func (ctx *Ctx) Bytes() []byte {
	return ctx.buf[:ctx.len]
}

func (ctx *Ctx) Reset() {
	ctx.len = 0
}

// Truncate drops everything written after n, a length previously returned
// by Len.
func (ctx *Ctx) Truncate(n int) {
	if n >= 0 && n < ctx.len {
		ctx.len = n
	}
}

func (ctx *Ctx) fits(n int) bool {
	return ctx.len+n <= ctx.max
}

// reserve checks that n more bytes fit, grows the backing buffer when needed
// and returns the zeroed region that the caller must fill.
func (ctx *Ctx) reserve(n int) ([]byte, error) {
	if !ctx.fits(n) {
		return nil, ErrRange
	}
	end := ctx.len + n
	if end > len(ctx.buf) {
		size := mathutil.Min(ctx.max, mathutil.Max(end, 2*len(ctx.buf)))
		buf := make([]byte, size)
		copy(buf, ctx.buf[:ctx.len])
		ctx.buf = buf
	}
	b := ctx.buf[ctx.len:end]
	for i := range b {
		b[i] = 0
	}
	ctx.len = end
	return b, nil
}

// rollback discards everything written after mark.
func (ctx *Ctx) rollback(mark int) {
	ctx.len = mark
}

// SwitchNode selects the node that the following commands apply to. When
// create is set, id is the temporary id the engine maps to the new node.
func (ctx *Ctx) SwitchNode(typeID uint16, id uint32, create bool) error {
	b, err := ctx.reserve(switchNodeSize)
	if err != nil {
		return err
	}
	b[0] = byte(OpSwitchNode)
	binary.LittleEndian.PutUint16(b[1:], typeID)
	binary.LittleEndian.PutUint32(b[3:], id)
	if create {
		b[7] = 1
	}
	return nil
}

func putHeader(b []byte, op Op, field uint8, tag schema.Type, size int) {
	b[0] = byte(op)
	b[1] = field
	b[2] = byte(tag)
	binary.LittleEndian.PutUint32(b[3:], uint32(size))
}
