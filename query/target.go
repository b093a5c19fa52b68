package query

import (
	"sort"

	"github.com/atelier-saulx/based-sub007/schema"
)

func (def *Def) setTarget(typeName string, target interface{}) {
	t, ok := def.Schema.Type(typeName)
	if !ok {
		def.addError(TargetInvalType, typeName)
		t = schema.EmptyType(typeName)
	}
	def.Target.Type = t

	switch v := target.(type) {
	case nil:
		def.Target.Kind = KindAll
	case map[string]interface{}:
		def.Target.Kind = KindAlias
		fd, value, ok := findAlias(t, "", v)
		if !ok {
			def.addError(TargetInvalAlias, v)
			fd = schema.ErrorField
		}
		def.Target.Alias, def.Target.AliasValue = fd, value
	default:
		if _, isList := schema.ToList(target); isList {
			def.Target.Kind = KindIDs
			ids, code := ValidateIDs(target, def.maxIDs)
			if code != 0 {
				def.addError(code, describeIDs(target))
			}
			def.Target.IDs = ids
			return
		}
		def.Target.Kind = KindID
		id, ok := schema.ToUint32(target)
		if !ok || id == 0 {
			def.addError(TargetInvalID, target)
			return
		}
		def.Target.ID = id
	}
}

// ValidateIDs checks an id list and returns its ids sorted and without
// duplicates. On failure the list is empty and the code says why; a list
// is never partially accepted.
func ValidateIDs(v interface{}, max int) ([]uint32, Code) {
	elems, ok := schema.ToList(v)
	if !ok {
		return []uint32{}, TargetInvalIDs
	}
	if len(elems) > max {
		return []uint32{}, TargetExceedMaxIDs
	}
	ids := make([]uint32, 0, len(elems))
	for _, e := range elems {
		id, ok := schema.ToUint32(e)
		if !ok || id == 0 {
			return []uint32{}, TargetInvalIDs
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out, 0
}

// describeIDs keeps error payloads small for huge lists.
func describeIDs(v interface{}) interface{} {
	elems, _ := schema.ToList(v)
	if len(elems) > 10 {
		return map[string]interface{}{"len": len(elems)}
	}
	return elems
}

// findAlias walks an alias selection for the first property stored in an
// alias field, in key order.
func findAlias(t *schema.TypeDef, prefix string, m map[string]interface{}) (*schema.FieldDescriptor, string, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		fd, ok := t.Field(path)
		if !ok {
			continue
		}
		switch fd.Type {
		case schema.TypeAlias:
			if s, ok := m[k].(string); ok && s != "" {
				return fd, s, true
			}
		case schema.TypeObject:
			if nested, ok := m[k].(map[string]interface{}); ok {
				if fd, s, ok := findAlias(t, path, nested); ok {
					return fd, s, true
				}
			}
		}
	}
	return nil, "", false
}
