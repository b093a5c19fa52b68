package query

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/pingcap/errors"
)

// Section tags of a query buffer.
const (
	sectionFilter    uint8 = 1
	sectionSort      uint8 = 2
	sectionSearch    uint8 = 3
	sectionAggregate uint8 = 4
	sectionInclude   uint8 = 5
)

// HeaderSize is the size of the fixed query header:
//
//	kind(1) typeId(2) schemaChecksum(8)
const HeaderSize = 1 + 2 + 8

// noField marks an aggregate without a field.
const noField = 0xff

// ErrTooMany is the cause of a Register failure when a list is longer than
// its length prefix can hold.
var ErrTooMany = errors.New("query: too many elements")

// Register encodes a validated query. It fails with the accumulated *Error
// when the definition has problems, and stamps def.SchemaChecksum with the
// checksum of the snapshot it was built against.
//
// After the header follow the target, range (offset u32, limit u32) and
// locale (u8), then tagged sections of the form tag(1) size(4) payload.
func Register(def *Def) ([]byte, error) {
	if err := HandleErrors(def); err != nil {
		return nil, err
	}
	if def.Schema == nil {
		return nil, errors.New("query: no schema")
	}
	def.SchemaChecksum = def.Schema.Checksum

	w := &writer{b: make([]byte, 0, 64)}
	w.u8(uint8(def.Target.Kind))
	w.u16(def.Target.Type.ID)
	w.u64(def.SchemaChecksum)
	switch def.Target.Kind {
	case KindID:
		w.u32(def.Target.ID)
	case KindIDs:
		w.u32(uint32(len(def.Target.IDs)))
		for _, id := range def.Target.IDs {
			w.u32(id)
		}
	case KindAlias:
		w.u8(def.Target.Alias.ID)
		w.str16(def.Target.AliasValue)
	}
	w.u32(def.Window.Offset)
	w.u32(def.Window.Limit)
	w.u8(def.Lang)
	if w.err != nil {
		return nil, w.err
	}

	if def.Conditions.Len() > 0 {
		mark := w.section(sectionFilter)
		if err := w.filterGroup(def.Conditions); err != nil {
			return nil, err
		}
		w.end(mark)
	}
	if s := def.Order; s != nil {
		mark := w.section(sectionSort)
		w.bool(s.Desc)
		w.field(s.Field)
		w.u8(s.Lang)
		w.end(mark)
	}
	if s := def.Matching; s != nil {
		mark := w.section(sectionSearch)
		w.search(s)
		w.end(mark)
	}
	if a := def.Aggregates; a != nil {
		mark := w.section(sectionAggregate)
		w.aggregate(a)
		w.end(mark)
	}
	if inc := def.Includes; inc != nil {
		mark := w.section(sectionInclude)
		w.include(inc)
		w.end(mark)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.b, nil
}

// writer appends to a query buffer. The first count that does not fit its
// width is kept in err and fails the whole buffer.
type writer struct {
	b   []byte
	err error
}

// count8 and count16 write a length prefix of one or two bytes.
func (w *writer) count8(n int, what string) {
	w.checkCount(n, math.MaxUint8, what)
	w.u8(uint8(n))
}

func (w *writer) count16(n int, what string) {
	w.checkCount(n, math.MaxUint16, what)
	w.u16(uint16(n))
}

func (w *writer) checkCount(n, max int, what string) {
	if n > max && w.err == nil {
		w.err = errors.Annotatef(ErrTooMany, "%d %s, at most %d", n, what, max)
	}
}

func (w *writer) u8(v uint8) {
	w.b = append(w.b, v)
}

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u16(v uint16) {
	w.b = append(w.b, 0, 0)
	binary.LittleEndian.PutUint16(w.b[len(w.b)-2:], v)
}

func (w *writer) u32(v uint32) {
	w.b = append(w.b, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(w.b[len(w.b)-4:], v)
}

func (w *writer) u64(v uint64) {
	w.b = append(w.b, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.LittleEndian.PutUint64(w.b[len(w.b)-8:], v)
}

func (w *writer) f64(v float64) {
	w.u64(math.Float64bits(v))
}

func (w *writer) str16(s string) {
	w.count16(len(s), "string bytes")
	w.b = append(w.b, s...)
}

// section starts a tagged section and returns the offset of its size.
func (w *writer) section(tag uint8) int {
	w.u8(tag)
	w.u32(0)
	return len(w.b)
}

func (w *writer) end(mark int) {
	binary.LittleEndian.PutUint32(w.b[mark-4:], uint32(len(w.b)-mark))
}

// field writes id(1) type(1) start(2) len(2).
func (w *writer) field(fd *schema.FieldDescriptor) {
	w.u8(fd.ID)
	w.u8(uint8(fd.Type))
	w.u16(fd.Start)
	w.u16(fd.Len)
}

func (w *writer) score(s *float64) {
	if s == nil {
		w.bool(false)
		return
	}
	w.bool(true)
	w.f64(*s)
}

// filterGroup writes count(2) conditions, then an or flag and the next group.
func (w *writer) filterGroup(g *FilterGroup) error {
	w.count16(len(g.Conditions), "conditions")
	for _, f := range g.Conditions {
		if err := w.filter(f); err != nil {
			return err
		}
	}
	if g.Or == nil {
		w.bool(false)
		return nil
	}
	w.bool(true)
	return w.filterGroup(g.Or)
}

func (w *writer) filter(f *Filter) error {
	w.count8(len(f.Via), "reference hops")
	for _, hop := range f.Via {
		w.u8(hop.ID)
	}
	w.bool(f.Edge)
	w.field(f.Field)
	w.u8(f.Lang)
	w.u8(operatorCodes[f.Op])
	w.u8(similarityFns[f.Opts.Fn])
	w.score(f.Opts.Score)
	values, err := filterValues(f.Field, f.Value)
	if err != nil {
		return errors.Annotatef(err, "filter %q", f.Field.Path)
	}
	w.count16(len(values), "filter values")
	for _, v := range values {
		w.u32(uint32(len(v)))
		w.b = append(w.b, v...)
	}
	return nil
}

// filterValues encodes the values of a filter in the width of their field.
func filterValues(fd *schema.FieldDescriptor, v interface{}) ([][]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []float32:
		b := make([]byte, 4*len(x))
		for i, c := range x {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(c))
		}
		return [][]byte{b}, nil
	case []uint32:
		out := make([][]byte, len(x))
		for i, id := range x {
			out[i] = make([]byte, 4)
			binary.LittleEndian.PutUint32(out[i], id)
		}
		return out, nil
	}
	list, ok := schema.ToList(v)
	if !ok {
		list = []interface{}{v}
	}
	out := make([][]byte, 0, len(list))
	for _, e := range list {
		b, err := filterValue(fd, e)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func filterValue(fd *schema.FieldDescriptor, v interface{}) ([]byte, error) {
	switch x := v.(type) {
	case string:
		if fd.Type == schema.TypeEnum {
			idx, ok := fd.EnumIndex(x)
			if !ok {
				return nil, errors.Errorf("query: unknown enum value %q", x)
			}
			return []byte{idx + 1}, nil
		}
		return []byte(x), nil
	case []byte:
		return x, nil
	case bool:
		if x {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case time.Time:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(x.UnixNano()/int64(time.Millisecond)))
		return b, nil
	case uint32:
		if fd.Type.IsReference() {
			b := make([]byte, 4)
			binary.LittleEndian.PutUint32(b, x)
			return b, nil
		}
	}
	f, ok := schema.ToFloat(v)
	if !ok {
		return nil, errors.Errorf("query: cannot encode %T", v)
	}
	switch {
	case fd.Type == schema.TypeEnum:
		return []byte{uint8(f) + 1}, nil
	case fd.Type == schema.TypeNumber:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(f))
		return b, nil
	case fd.Type.IsTimestamp():
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(int64(f)))
		return b, nil
	}
	size := int(fd.Type.FixedSize())
	if size == 0 {
		size = 4
	}
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(int64(f)))
	return b[:size], nil
}

func (w *writer) search(s *Search) {
	w.count8(len(s.Fields), "search fields")
	for _, f := range s.Fields {
		w.field(f.Field)
		w.u8(f.Lang)
	}
	if s.Vector == nil {
		w.u8(0)
		w.u32(uint32(len(s.Term)))
		w.b = append(w.b, s.Term...)
		return
	}
	w.u8(similarityFns[s.Fn])
	w.u32(uint32(len(s.Vector)))
	for _, c := range s.Vector {
		w.u32(math.Float32bits(c))
	}
	w.score(s.Score)
}

func (w *writer) aggregate(a *Aggregate) {
	w.count8(len(a.Fields), "aggregates")
	for _, f := range a.Fields {
		w.u8(uint8(f.Fn))
		if f.Field == nil {
			w.u8(noField)
			w.u8(0)
			w.u16(0)
			w.u16(0)
			continue
		}
		w.field(f.Field)
	}
	if a.GroupBy == nil {
		w.bool(false)
		return
	}
	w.bool(true)
	w.field(a.GroupBy)
	w.u32(a.Step)
}

// include writes fields count(2) fields, then refs count(1) with for each
// reference its field id, target type id, edge fields and nested include.
func (w *writer) include(inc *Include) {
	w.count16(len(inc.Fields), "included fields")
	for _, f := range inc.Fields {
		w.field(f.Field)
		w.u8(f.Lang)
	}
	w.count8(len(inc.Refs), "included references")
	for _, r := range inc.Refs {
		w.u8(r.Field.ID)
		w.u16(r.Type.ID)
		w.count8(len(r.Edges), "edge fields")
		for _, e := range r.Edges {
			w.field(e.Field)
		}
		mark := len(w.b)
		w.u32(0)
		w.include(r.Include)
		binary.LittleEndian.PutUint32(w.b[mark:], uint32(len(w.b)-mark-4))
	}
}
