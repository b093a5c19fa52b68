package modify

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/atelier-saulx/based-sub007/schema"
)

type fieldValue struct {
	fd    *schema.FieldDescriptor
	op    Op
	value interface{}
}

// insertField keeps main fields ordered by Start. Fields mostly arrive in
// layout order, so both ends are tried before searching.
func insertField(fields []fieldValue, f fieldValue) []fieldValue {
	n := len(fields)
	switch {
	case n == 0 || f.fd.Start > fields[n-1].fd.Start:
		return append(fields, f)
	case f.fd.Start < fields[0].fd.Start:
		return append([]fieldValue{f}, fields...)
	}
	i := sort.Search(n, func(i int) bool { return fields[i].fd.Start >= f.fd.Start })
	fields = append(fields, fieldValue{})
	copy(fields[i+1:], fields[i:])
	fields[i] = f
	return fields
}

func writeMain(ctx *Ctx, fs *schema.FieldSet, fields []fieldValue) error {
	for _, f := range fields {
		if err := checkFixed(f); err != nil {
			return err
		}
	}
	total := int(fs.MainLen)
	if len(fields) == 1 && int(fields[0].fd.Len) == total {
		return writeRecord(ctx, fields[0].op, total, fields)
	}
	covered, incremental := 0, false
	for _, f := range fields {
		covered += int(f.fd.Len)
		if f.op != OpSet {
			incremental = true
		}
	}
	if !incremental && covered == total {
		return writeRecord(ctx, OpSet, total, fields)
	}
	return writePartial(ctx, total, fields)
}

func writeRecord(ctx *Ctx, op Op, total int, fields []fieldValue) error {
	b, err := ctx.reserve(cmdHeaderSize + total)
	if err != nil {
		return err
	}
	putHeader(b, op, schema.MainFieldID, TagFixedRecord, total)
	rec := b[cmdHeaderSize:]
	for _, f := range fields {
		putFixed(rec[f.fd.Start:f.fd.Start+f.fd.Len], f)
	}
	return nil
}

func writePartial(ctx *Ctx, total int, fields []fieldValue) error {
	size := 2 + partDescSize*len(fields) + total
	b, err := ctx.reserve(cmdHeaderSize + size)
	if err != nil {
		return err
	}
	putHeader(b, OpSetPartial, schema.MainFieldID, TagFixedRecord, size)
	p := b[cmdHeaderSize:]
	binary.LittleEndian.PutUint16(p, uint16(total))
	for i, f := range fields {
		d := p[2+i*partDescSize:]
		binary.LittleEndian.PutUint16(d, f.fd.Start)
		binary.LittleEndian.PutUint16(d[2:], f.fd.Len)
		d[4] = byte(f.op)
		d[5] = byte(f.fd.Type)
	}
	rec := p[2+partDescSize*len(fields):]
	for _, f := range fields {
		putFixed(rec[f.fd.Start:f.fd.Start+f.fd.Len], f)
	}
	return nil
}

// checkFixed validates a main field value so that putFixed cannot fail once
// space is reserved.
func checkFixed(f fieldValue) error {
	fd := f.fd
	if f.op == OpSet {
		if !fd.Validate(f.value) {
			return newModifyError(fd, f.value, "value does not match field type")
		}
		return nil
	}
	by := f.value.(float64)
	if fd.Type.IsTimestamp() || fd.Type == schema.TypeNumber {
		return nil
	}
	if _, max, ok := fd.Type.NumericRange(); !ok || by > max || by != math.Trunc(by) {
		return newModifyError(fd, by, "increment does not fit the field")
	}
	return nil
}

func putFixed(b []byte, f fieldValue) {
	fd := f.fd
	switch fd.Type {
	case schema.TypeBoolean:
		if f.value.(bool) {
			b[0] = 1
		}
		return
	case schema.TypeEnum:
		idx, _ := fd.EnumIndex(f.value)
		// 0 marks an unset enum
		b[0] = idx + 1
		return
	case schema.TypeString:
		s := f.value.(string)
		b[0] = byte(len(s))
		copy(b[1:], s)
		return
	case schema.TypeNumber:
		v, _ := schema.ToFloat(f.value)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return
	}
	var n int64
	if fd.Type.IsTimestamp() {
		n, _ = schema.ToMillis(f.value)
	} else {
		v, _ := schema.ToFloat(f.value)
		n = int64(v)
	}
	switch len(b) {
	case 1:
		b[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(n))
	}
}
