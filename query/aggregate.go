package query

import (
	"math"

	"github.com/atelier-saulx/based-sub007/schema"
)

// AggFn is an aggregate function.
type AggFn uint8

const (
	AggCount AggFn = iota + 1
	AggSum
	AggAvg
	AggMin
	AggMax
)

// Named steps of a timestamp group, in milliseconds.
var namedSteps = map[string]uint32{
	"second": 1000,
	"minute": 60 * 1000,
	"hour":   60 * 60 * 1000,
	"day":    24 * 60 * 60 * 1000,
	"week":   7 * 24 * 60 * 60 * 1000,
}

// AggField is one aggregate. Field is nil for a count of nodes.
type AggField struct {
	Fn    AggFn
	Field *schema.FieldDescriptor
}

// Aggregate replaces node results by aggregates, optionally per group.
type Aggregate struct {
	Fields  []AggField
	GroupBy *schema.FieldDescriptor
	// Step buckets a timestamp group, in milliseconds. 0 groups by value.
	Step uint32
}

func (def *Def) aggregates() *Aggregate {
	if def.Aggregates == nil {
		def.Aggregates = &Aggregate{}
	}
	return def.Aggregates
}

func (def *Def) Count() *Def {
	a := def.aggregates()
	a.Fields = append(a.Fields, AggField{Fn: AggCount})
	return def
}

func (def *Def) Sum(fields ...string) *Def { return def.aggregate(AggSum, fields) }

func (def *Def) Avg(fields ...string) *Def { return def.aggregate(AggAvg, fields) }

func (def *Def) Min(fields ...string) *Def { return def.aggregate(AggMin, fields) }

func (def *Def) Max(fields ...string) *Def { return def.aggregate(AggMax, fields) }

func (def *Def) aggregate(fn AggFn, fields []string) *Def {
	a := def.aggregates()
	for _, f := range fields {
		fd, ok := def.Target.Type.Field(f)
		if !ok {
			def.addError(AggENOENT, f)
			continue
		}
		if !fd.Type.IsNumeric() {
			def.addError(AggType, FieldPayload{Field: f, Type: fd.Type.String()})
			continue
		}
		if fd.Type == schema.TypeCardinality && (fn == AggMin || fn == AggMax) {
			def.addError(AggNotImplemented, FieldPayload{Field: f, Type: fd.Type.String()})
			continue
		}
		a.Fields = append(a.Fields, AggField{Fn: fn, Field: fd})
	}
	return def
}

// GroupBy aggregates per distinct value of field. Timestamp fields accept a
// step, either a name ("hour", "day", ...) or a number of milliseconds.
func (def *Def) GroupBy(field string, step ...interface{}) *Def {
	a := def.aggregates()
	fd, ok := def.Target.Type.Field(field)
	if !ok {
		def.addError(AggENOENT, field)
		return def
	}
	switch fd.Type {
	case schema.TypeReference, schema.TypeReferences:
		def.addError(AggNotImplemented, FieldPayload{Field: field, Type: fd.Type.String()})
		return def
	case schema.TypeVector, schema.TypeBinary, schema.TypeJSON, schema.TypeObject, schema.TypeCardinality:
		def.addError(AggType, FieldPayload{Field: field, Type: fd.Type.String()})
		return def
	}
	a.GroupBy = fd
	if len(step) == 0 {
		return def
	}
	if !fd.Type.IsTimestamp() || len(step) > 1 {
		def.addError(AggInvalidStepType, FieldPayload{Field: field, Type: fd.Type.String(), Value: step})
		return def
	}
	if name, ok := step[0].(string); ok {
		ms, ok := namedSteps[name]
		if !ok {
			def.addError(AggInvalidStepType, FieldPayload{Field: field, Value: name})
			return def
		}
		a.Step = ms
		return def
	}
	ms, ok := schema.ToFloat(step[0])
	if !ok {
		def.addError(AggInvalidStepType, FieldPayload{Field: field, Value: step[0]})
		return def
	}
	if ms <= 0 || ms > math.MaxUint32 || ms != math.Trunc(ms) {
		def.addError(AggInvalidStepRange, FieldPayload{Field: field, Value: ms})
		return def
	}
	a.Step = uint32(ms)
	return def
}
