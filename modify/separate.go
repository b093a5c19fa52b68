package modify

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/atelier-saulx/based-sub007/schema"
	json "github.com/goccy/go-json"
)

func writeSeparate(ctx *Ctx, f fieldValue) error {
	fd := f.fd
	if f.op != OpSet {
		return newModifyError(fd, f.value, "only numeric main fields can be incremented")
	}
	switch fd.Type {
	case schema.TypeString, schema.TypeAlias:
		s, ok := f.value.(string)
		if !ok || !fd.Validate(s) {
			return newModifyError(fd, f.value, "expected a string")
		}
		return writePayload(ctx, fd, TagString, encodeString(s, 0, ctx.compressThreshold))
	case schema.TypeText:
		return writeText(ctx, fd, f.value)
	case schema.TypeBinary:
		if f.value == nil {
			return writePayload(ctx, fd, TagBinary, nil)
		}
		b, ok := f.value.([]byte)
		if !ok {
			return newModifyError(fd, f.value, "expected bytes")
		}
		return writePayload(ctx, fd, TagBinary, b)
	case schema.TypeJSON:
		b, err := json.Marshal(f.value)
		if err != nil {
			return newModifyError(fd, f.value, err.Error())
		}
		return writePayload(ctx, fd, schema.TypeJSON, b)
	case schema.TypeVector:
		vec, ok := schema.ToVector(f.value)
		if !ok || !fd.Validate(f.value) {
			return newModifyError(fd, f.value, "expected a vector")
		}
		b := make([]byte, 4*len(vec))
		for i, x := range vec {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
		}
		return writePayload(ctx, fd, schema.TypeVector, b)
	case schema.TypeCardinality:
		elems, ok := schema.ToList(f.value)
		if !ok {
			elems = []interface{}{f.value}
		}
		b, ok := encodeSketch(elems)
		if !ok {
			return newModifyError(fd, f.value, "cardinality accepts strings, bytes and numbers")
		}
		return writePayload(ctx, fd, TagSketch, b)
	case schema.TypeReference:
		return writeReference(ctx, fd, f.value)
	case schema.TypeReferences:
		return writeReferences(ctx, fd, f.value)
	}
	return newModifyError(fd, f.value, "field type cannot be written")
}

// writePayload writes a size-prefixed command.
func writePayload(ctx *Ctx, fd *schema.FieldDescriptor, tag schema.Type, payload []byte) error {
	b, err := ctx.reserve(cmdHeaderSize + len(payload))
	if err != nil {
		return err
	}
	putHeader(b, OpSet, fd.ID, tag, len(payload))
	copy(b[cmdHeaderSize:], payload)
	return nil
}

// writeText accepts a string in the context locale, or a map from locale
// name to string. All locales are written as one unit.
func writeText(ctx *Ctx, fd *schema.FieldDescriptor, v interface{}) error {
	var payloads [][]byte
	switch x := v.(type) {
	case string:
		if ctx.lang == 0 {
			return newModifyError(fd, v, "text needs a locale")
		}
		if !fd.Validate(x) {
			return newModifyError(fd, v, "text too long")
		}
		payloads = append(payloads, encodeString(x, ctx.lang, ctx.compressThreshold))
	case map[string]interface{}:
		langs := make([]string, 0, len(x))
		for l := range x {
			langs = append(langs, l)
		}
		sort.Strings(langs)
		for _, l := range langs {
			s, ok := x[l].(string)
			if !ok || !fd.Validate(s) {
				return newModifyError(fd, v, "expected a string for locale "+l)
			}
			if ctx.snap == nil {
				return newModifyError(fd, v, "locale names need a schema")
			}
			code, ok := ctx.snap.LangCode(l)
			if !ok {
				return newModifyError(fd, v, "unknown locale "+l)
			}
			payloads = append(payloads, encodeString(s, code, ctx.compressThreshold))
		}
	default:
		return newModifyError(fd, v, "expected a string or a locale map")
	}
	need := 0
	for _, p := range payloads {
		need += cmdHeaderSize + len(p)
	}
	if !ctx.fits(need) {
		return ErrRange
	}
	for _, p := range payloads {
		if err := writePayload(ctx, fd, TagString, p); err != nil {
			return err
		}
	}
	return nil
}

func writeReference(ctx *Ctx, fd *schema.FieldDescriptor, v interface{}) error {
	id, merr := refID(fd, v)
	if merr != nil {
		return merr
	}
	edges := edgeValues(v)
	if len(edges) > 0 && fd.Edges == nil {
		return newModifyError(fd, v, "reference has no edge properties")
	}
	mark := ctx.Len()
	b, err := ctx.reserve(cmdPrefixSize + 4)
	if err != nil {
		return err
	}
	b[0] = byte(OpSet)
	b[1] = fd.ID
	b[2] = byte(TagSingleRef)
	binary.LittleEndian.PutUint32(b[cmdPrefixSize:], id)
	if len(edges) == 0 {
		return nil
	}
	if err := writeEdges(ctx, fd, edges); err != nil {
		ctx.rollback(mark)
		return err
	}
	return nil
}

// writeEdges writes an OpEdge command whose payload is the command stream
// of the edge properties.
func writeEdges(ctx *Ctx, fd *schema.FieldDescriptor, edges map[string]interface{}) error {
	start := ctx.Len()
	if _, err := ctx.reserve(cmdHeaderSize); err != nil {
		return err
	}
	if err := Encode(ctx, fd.Edges, edges); err != nil {
		return err
	}
	putHeader(ctx.buf[start:], OpEdge, fd.ID, TagSingleRef, ctx.Len()-start-cmdHeaderSize)
	return nil
}

func edgeValues(v interface{}) map[string]interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	var edges map[string]interface{}
	for k, e := range m {
		if strings.HasPrefix(k, "$") {
			if edges == nil {
				edges = make(map[string]interface{})
			}
			edges[k] = e
		}
	}
	return edges
}

func writeReferences(ctx *Ctx, fd *schema.FieldDescriptor, v interface{}) error {
	elems, ok := schema.ToList(v)
	if !ok {
		if refs, isRefs := v.([]Ref); isRefs {
			elems = make([]interface{}, len(refs))
			for i, r := range refs {
				elems[i] = r
			}
			ok = true
		}
	}
	if !ok {
		return newModifyError(fd, v, "expected a list of references")
	}
	payload := make([]byte, 4*len(elems))
	for i, e := range elems {
		id, merr := refID(fd, e)
		if merr != nil {
			merr.Value = v
			return merr
		}
		binary.LittleEndian.PutUint32(payload[4*i:], id)
	}
	return writePayload(ctx, fd, TagRefList, payload)
}
