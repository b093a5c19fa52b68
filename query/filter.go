package query

import (
	"math"

	"github.com/atelier-saulx/based-sub007/schema"
)

// Operator is a filter operation.
type Operator string

const (
	OpEqual        Operator = "="
	OpNotEqual     Operator = "!="
	OpGreater      Operator = ">"
	OpLess         Operator = "<"
	OpGreaterEqual Operator = ">="
	OpLessEqual    Operator = "<="
	// OpHas matches lists and strings that include the value.
	OpHas       Operator = "has"
	OpLike      Operator = "like"
	OpExists    Operator = "exists"
	OpNotExists Operator = "!exists"
)

var operatorCodes = map[Operator]uint8{
	OpEqual:        1,
	OpNotEqual:     2,
	OpGreater:      3,
	OpLess:         4,
	OpGreaterEqual: 5,
	OpLessEqual:    6,
	OpHas:          7,
	OpLike:         8,
	OpExists:       9,
	OpNotExists:    10,
}

func (op Operator) isEquality() bool {
	return op == OpEqual || op == OpNotEqual
}

func (op Operator) isComparison() bool {
	return op == OpGreater || op == OpLess || op == OpGreaterEqual || op == OpLessEqual
}

func (op Operator) isExists() bool {
	return op == OpExists || op == OpNotExists
}

// Similarity functions accepted by like on vectors.
var similarityFns = map[string]uint8{
	"dotProduct":        1,
	"manhattanDistance": 2,
	"cosineSimilarity":  3,
	"euclideanDistance": 4,
}

// FilterOpts tunes like and vector matching.
type FilterOpts struct {
	// Fn is the similarity function of a vector match.
	Fn string
	// Score bounds the match distance. For strings it is an edit score in
	// [0,255].
	Score *float64
}

// Filter is one condition of a query.
type Filter struct {
	Field *schema.FieldDescriptor
	Via   []*schema.FieldDescriptor
	Edge  bool
	Lang  uint8
	Op    Operator
	Opts  FilterOpts
	Value interface{}
}

// FilterGroup holds conditions that must all match. Or is the next
// alternative group.
type FilterGroup struct {
	Conditions []*Filter
	Or         *FilterGroup
}

// Len counts the conditions of g and all its alternatives.
func (g *FilterGroup) Len() int {
	n := 0
	for ; g != nil; g = g.Or {
		n += len(g.Conditions)
	}
	return n
}

// Filter adds a condition that must hold together with the other conditions
// of the main group.
func (def *Def) Filter(field string, op Operator, value interface{}, opts ...FilterOpts) *Def {
	f := def.newFilter(field, op, value, opts)
	if def.Conditions == nil {
		def.Conditions = &FilterGroup{}
	}
	def.Conditions.Conditions = append(def.Conditions.Conditions, f)
	return def
}

// Or adds an alternative group holding a single condition. A node matches
// when it matches the main group or any alternative.
func (def *Def) Or(field string, op Operator, value interface{}, opts ...FilterOpts) *Def {
	f := def.newFilter(field, op, value, opts)
	if def.Conditions == nil {
		def.Conditions = &FilterGroup{}
	}
	g := def.Conditions
	for g.Or != nil {
		g = g.Or
	}
	g.Or = &FilterGroup{Conditions: []*Filter{f}}
	return def
}

func (def *Def) newFilter(field string, op Operator, value interface{}, opts []FilterOpts) *Filter {
	f := &Filter{Field: schema.ErrorField, Op: op, Value: value}
	if len(opts) > 0 {
		f.Opts = opts[0]
	}
	p, status := def.resolve(def.Target.Type, field)
	if status != resolved {
		def.addError(FilterENOENT, field)
		return f
	}
	if p.Lang != "" {
		code, ok := def.langCode(p.Lang)
		if !ok {
			def.addError(FilterInvalidLang, field)
			return f
		}
		f.Lang = code
	}
	if _, ok := operatorCodes[op]; !ok {
		def.addError(FilterOpENOENT, op)
		return f
	}
	fd := p.Field
	if def.SkipValidation {
		f.Value = coerceFilterValue(fd, value)
	} else {
		if !operatorAllowed(fd.Type, op) {
			def.addError(FilterOpField, FieldPayload{Field: field, Type: fd.Type.String(), Op: op})
			return f
		}
		v, code := normalizeFilterValue(fd, op, f.Opts, value)
		if code != 0 {
			def.addError(code, FieldPayload{Field: field, Type: fd.Type.String(), Op: op, Value: value})
			return f
		}
		f.Value = v
	}
	f.Field, f.Via, f.Edge = p.Field, p.Via, p.Edge
	return f
}

// operatorAllowed is the operator table per field type.
func operatorAllowed(t schema.Type, op Operator) bool {
	if op.isExists() {
		return true
	}
	switch {
	case t == schema.TypeReference:
		return op.isEquality()
	case t == schema.TypeReferences:
		return op != OpLike
	case t == schema.TypeVector:
		return !op.isComparison() && op != OpHas
	case t.IsStringLike():
		return !op.isComparison()
	case t == schema.TypeBoolean || t == schema.TypeEnum:
		return op.isEquality()
	case t.IsNumeric():
		return op.isEquality() || op.isComparison()
	}
	return false
}

// normalizeFilterValue checks a filter value against its field and returns
// the form the registrar encodes.
func normalizeFilterValue(fd *schema.FieldDescriptor, op Operator, opts FilterOpts, v interface{}) (interface{}, Code) {
	if op.isExists() {
		if v != nil {
			return nil, FilterInvalidVal
		}
		return nil, 0
	}
	switch {
	case fd.Type.IsReference():
		return normalizeRefs(v)
	case fd.Type == schema.TypeVector:
		vec, ok := schema.ToVector(v)
		if !ok || len(vec) != int(fd.VectorSize) {
			return nil, FilterInvalidVal
		}
		if op == OpLike {
			if _, ok := similarityFns[opts.Fn]; !ok {
				return nil, FilterInvalidOpts
			}
		}
		return vec, 0
	case fd.Type.IsStringLike():
		if op == OpLike && opts.Score != nil {
			s := *opts.Score
			if s < 0 || s > 255 || s != math.Trunc(s) {
				return nil, FilterInvalidOpts
			}
		}
		return eachValue(v, func(e interface{}) bool {
			switch x := e.(type) {
			case string:
				return true
			case []byte:
				return fd.Type == schema.TypeBinary && x != nil
			}
			return false
		})
	case fd.Type.IsTimestamp():
		if op.isComparison() {
			return scalar(v, func(e interface{}) bool { _, ok := schema.ToMillis(e); return ok })
		}
		return eachValue(v, func(e interface{}) bool { _, ok := schema.ToMillis(e); return ok })
	}
	valid := fd.Validate
	if fd.Type == schema.TypeCardinality {
		valid = func(e interface{}) bool { _, ok := schema.ToUint32(e); return ok }
	}
	if op.isComparison() {
		return scalar(v, valid)
	}
	return eachValue(v, valid)
}

// coerceFilterValue converts a value to the form the registrar encodes
// without checking it. Values it cannot convert are kept as given.
func coerceFilterValue(fd *schema.FieldDescriptor, v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch {
	case fd.Type.IsReference():
		if ids, code := normalizeRefs(v); code == 0 {
			return ids
		}
	case fd.Type == schema.TypeVector:
		if vec, ok := schema.ToVector(v); ok {
			return vec
		}
	}
	return v
}

func scalar(v interface{}, valid func(interface{}) bool) (interface{}, Code) {
	if _, isList := schema.ToList(v); isList || !valid(v) {
		return nil, FilterInvalidVal
	}
	return v, 0
}

// eachValue accepts a single value or a list of values.
func eachValue(v interface{}, valid func(interface{}) bool) (interface{}, Code) {
	if list, ok := schema.ToList(v); ok {
		if len(list) == 0 {
			return nil, FilterInvalidVal
		}
		for _, e := range list {
			if !valid(e) {
				return nil, FilterInvalidVal
			}
		}
		return list, 0
	}
	if v == nil || !valid(v) {
		return nil, FilterInvalidVal
	}
	return v, 0
}

// normalizeRefs turns {id: n} objects into bare ids, element-wise for lists.
func normalizeRefs(v interface{}) (interface{}, Code) {
	one := func(e interface{}) (uint32, bool) {
		if m, ok := e.(map[string]interface{}); ok {
			e = m["id"]
		}
		id, ok := schema.ToUint32(e)
		return id, ok && id != 0
	}
	if list, ok := schema.ToList(v); ok {
		if len(list) == 0 {
			return nil, FilterInvalidVal
		}
		ids := make([]uint32, len(list))
		for i, e := range list {
			id, ok := one(e)
			if !ok {
				return nil, FilterInvalidVal
			}
			ids[i] = id
		}
		return ids, 0
	}
	id, ok := one(v)
	if !ok {
		return nil, FilterInvalidVal
	}
	return id, 0
}
