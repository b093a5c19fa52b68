package query

import (
	"strings"

	"github.com/atelier-saulx/based-sub007/schema"
)

// DefaultSimilarityFn is used by vector searches that name no function.
const DefaultSimilarityFn = "cosineSimilarity"

// SearchField is a field a search term is matched against.
type SearchField struct {
	Field *schema.FieldDescriptor
	Lang  uint8
}

// Search ranks nodes by a text term or by vector similarity.
type Search struct {
	Term   string
	Vector []float32
	Fn     string
	Score  *float64
	Fields []SearchField
}

// Search ranks nodes by how well term matches fields. Without fields every
// string and text field of the type is searched.
func (def *Def) Search(term string, fields ...string) *Def {
	s := &Search{Term: term}
	def.Matching = s
	if strings.TrimSpace(term) == "" {
		def.addError(SearchIncorrectValue, term)
	}
	t := def.Target.Type
	if len(fields) == 0 {
		for _, fd := range t.Separate {
			if fd.Type == schema.TypeString || fd.Type == schema.TypeText {
				s.Fields = append(s.Fields, SearchField{Field: fd, Lang: def.Lang})
			}
		}
		for _, fd := range t.Main {
			if fd.Type == schema.TypeString {
				s.Fields = append(s.Fields, SearchField{Field: fd})
			}
		}
		if len(s.Fields) == 0 {
			def.addError(SearchType, t.Name)
		}
		return def
	}
	for _, f := range fields {
		fd, suffix, ok := t.Lookup(f)
		if !ok {
			def.addError(SearchENOENT, f)
			continue
		}
		switch fd.Type {
		case schema.TypeString, schema.TypeAlias:
			s.Fields = append(s.Fields, SearchField{Field: fd})
		case schema.TypeText:
			lang := def.Lang
			if suffix != "" {
				if lang, ok = def.langCode(suffix); !ok {
					def.addError(InvalidLang, f)
					continue
				}
			}
			s.Fields = append(s.Fields, SearchField{Field: fd, Lang: lang})
		default:
			def.addError(SearchType, FieldPayload{Field: f, Type: fd.Type.String()})
		}
	}
	return def
}

// SearchVector ranks nodes by the similarity of a vector field to vec.
func (def *Def) SearchVector(vec interface{}, field string, opts ...FilterOpts) *Def {
	s := &Search{Fn: DefaultSimilarityFn}
	def.Matching = s
	if len(opts) > 0 {
		if opts[0].Fn != "" {
			s.Fn = opts[0].Fn
		}
		s.Score = opts[0].Score
	}
	fd, ok := def.Target.Type.Field(field)
	if !ok {
		def.addError(SearchENOENT, field)
		return def
	}
	if fd.Type != schema.TypeVector {
		def.addError(SearchType, FieldPayload{Field: field, Type: fd.Type.String()})
		return def
	}
	v, ok := schema.ToVector(vec)
	if !ok || len(v) != int(fd.VectorSize) {
		def.addError(SearchIncorrectValue, FieldPayload{Field: field, Value: vec})
		return def
	}
	if _, ok := similarityFns[s.Fn]; !ok {
		def.addError(SearchIncorrectValue, FieldPayload{Field: field, Value: s.Fn})
		return def
	}
	s.Vector = v
	s.Fields = []SearchField{{Field: fd}}
	return def
}
