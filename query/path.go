package query

import (
	"strings"

	"github.com/atelier-saulx/based-sub007/schema"
)

// fieldPath is a dotted path resolved against a type, possibly through
// reference hops.
type fieldPath struct {
	Field *schema.FieldDescriptor
	// Via lists the reference fields walked to reach Field.
	Via []*schema.FieldDescriptor
	// Lang is the locale suffix of a text path.
	Lang string
	// Edge is set when Field is an edge property of the last hop.
	Edge bool
}

type resolveStatus int

const (
	resolved resolveStatus = iota
	notFound
	// notReference means a prefix of the path names a field that cannot be
	// walked into.
	notReference
)

func (def *Def) resolve(t *schema.TypeDef, path string) (fieldPath, resolveStatus) {
	if fd, suffix, ok := t.Lookup(path); ok {
		return fieldPath{Field: fd, Lang: suffix}, resolved
	}
	parts := strings.Split(path, ".")
	for i := 1; i < len(parts); i++ {
		fd, ok := t.Field(strings.Join(parts[:i], "."))
		if !ok {
			continue
		}
		rest := strings.Join(parts[i:], ".")
		switch fd.Type {
		case schema.TypeObject:
			continue
		case schema.TypeReference, schema.TypeReferences:
			if strings.HasPrefix(rest, "$") {
				edge, ok := fd.Edges.Field(rest)
				if !ok {
					return fieldPath{}, notFound
				}
				return fieldPath{Field: edge, Via: []*schema.FieldDescriptor{fd}, Edge: true}, resolved
			}
			sub, status := def.resolve(def.typeOf(fd), rest)
			if status != resolved {
				return sub, status
			}
			sub.Via = append([]*schema.FieldDescriptor{fd}, sub.Via...)
			return sub, resolved
		default:
			return fieldPath{Field: fd}, notReference
		}
	}
	return fieldPath{}, notFound
}
