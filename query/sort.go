package query

import "github.com/atelier-saulx/based-sub007/schema"

// Sort orders the result by one field of the target type.
type Sort struct {
	Field *schema.FieldDescriptor
	Lang  uint8
	Desc  bool
}

// Sort orders the result by field. order is "asc", "desc" or absent.
func (def *Def) Sort(field string, order ...string) *Def {
	s := &Sort{Field: schema.ErrorField}
	def.Order = s
	if len(order) > 1 || (len(order) == 1 && order[0] != "" && order[0] != "asc" && order[0] != "desc") {
		def.addError(SortOrder, order)
	} else if len(order) == 1 {
		s.Desc = order[0] == "desc"
	}
	if def.Target.Kind == KindID || def.Target.Kind == KindAlias {
		def.addError(SortWrongTarget, field)
		return def
	}
	fd, suffix, ok := def.Target.Type.Lookup(field)
	if !ok {
		def.addError(SortENOENT, field)
		return def
	}
	switch fd.Type {
	case schema.TypeReference, schema.TypeReferences, schema.TypeVector, schema.TypeObject:
		def.addError(SortType, FieldPayload{Field: field, Type: fd.Type.String()})
		return def
	case schema.TypeText:
		lang := def.Lang
		if suffix != "" {
			lang, ok = def.langCode(suffix)
		}
		if !ok || lang == 0 {
			def.addError(SortLang, field)
			return def
		}
		s.Lang = lang
	}
	s.Field = fd
	return def
}
