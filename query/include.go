package query

import (
	"strings"

	"github.com/atelier-saulx/based-sub007/schema"
)

// IncludeField is one field returned for each node. Lang 0 on a text field
// returns every locale.
type IncludeField struct {
	Field *schema.FieldDescriptor
	Lang  uint8
}

// RefInclude is the include plan of the nodes behind a reference field.
type RefInclude struct {
	Field   *schema.FieldDescriptor
	Type    *schema.TypeDef
	Include *Include
	Edges   []IncludeField
}

// Include is the set of fields a query returns.
type Include struct {
	Fields []IncludeField
	Refs   []*RefInclude
}

func addIncludeField(fields []IncludeField, f IncludeField) []IncludeField {
	for _, e := range fields {
		if e == f {
			return fields
		}
	}
	return append(fields, f)
}

func (inc *Include) ref(fd *schema.FieldDescriptor, t *schema.TypeDef) *RefInclude {
	for _, r := range inc.Refs {
		if r.Field == fd {
			return r
		}
	}
	r := &RefInclude{Field: fd, Type: t, Include: &Include{}}
	inc.Refs = append(inc.Refs, r)
	return r
}

// Include adds fields to the result. Paths may walk references
// ("bestFriend.name"), name edge properties ("bestFriend.$rank"), pick a
// locale ("bio.en") or be "*" for every field of the type.
func (def *Def) Include(fields ...string) *Def {
	if def.Includes == nil {
		def.Includes = &Include{}
	}
	for _, f := range fields {
		def.include(def.Target.Type, def.Includes, f, f)
	}
	return def
}

func (def *Def) include(t *schema.TypeDef, inc *Include, path, full string) {
	if path == "*" {
		for _, fd := range t.Separate {
			def.includeField(t, inc, fd, "", full)
		}
		for _, fd := range t.Main {
			def.includeField(t, inc, fd, "", full)
		}
		return
	}
	if fd, suffix, ok := t.Lookup(path); ok {
		def.includeField(t, inc, fd, suffix, full)
		return
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
			ref := inc.ref(fd, def.typeOf(fd))
			if strings.HasPrefix(rest, "$") {
				edge, ok := fd.Edges.Field(rest)
				if !ok {
					def.addError(IncludeENOENT, full)
					return
				}
				ref.Edges = addIncludeField(ref.Edges, IncludeField{Field: edge})
				return
			}
			def.include(ref.Type, ref.Include, rest, full)
			return
		default:
			def.addError(IncludeInvalidType, full)
			return
		}
	}
	def.addError(IncludeENOENT, full)
}

func (def *Def) includeField(t *schema.TypeDef, inc *Include, fd *schema.FieldDescriptor, suffix, full string) {
	switch fd.Type {
	case schema.TypeObject:
		prefix := fd.Path + "."
		for _, p := range t.Paths() {
			if sub, _ := t.Field(p); strings.HasPrefix(p, prefix) && sub.Type != schema.TypeObject {
				inc.Fields = addIncludeField(inc.Fields, IncludeField{Field: sub})
			}
		}
	case schema.TypeReference, schema.TypeReferences:
		inc.ref(fd, def.typeOf(fd))
	case schema.TypeText:
		lang := def.Lang
		if suffix != "" {
			code, ok := def.langCode(suffix)
			if !ok {
				def.addError(IncludeInvalidLang, full)
				return
			}
			lang = code
		}
		inc.Fields = addIncludeField(inc.Fields, IncludeField{Field: fd, Lang: lang})
	default:
		inc.Fields = addIncludeField(inc.Fields, IncludeField{Field: fd})
	}
}
