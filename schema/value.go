package schema

import (
	"math"
	"time"
)

// ToFloat converts any Go numeric value to a float64.
func ToFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// ToUint32 converts v to an id-sized integer. Fractions, negatives and values
// that overflow 32 bits are rejected.
func ToUint32(v interface{}) (uint32, bool) {
	f, ok := ToFloat(v)
	if !ok || f < 0 || f > math.MaxUint32 || f != math.Trunc(f) {
		return 0, false
	}
	return uint32(f), true
}

// ToMillis converts a timestamp value to unix milliseconds.
func ToMillis(v interface{}) (int64, bool) {
	if t, ok := v.(time.Time); ok {
		return t.UnixNano() / int64(time.Millisecond), true
	}
	f, ok := ToFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// ToList returns the elements of a slice value, or false when v is not a list.
func ToList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []uint32:
		out := make([]interface{}, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case []int:
		out := make([]interface{}, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	case []string:
		out := make([]interface{}, len(l))
		for i, x := range l {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}

// defaultValidator returns the value predicate installed on descriptors of
// type t.
func defaultValidator(fd *FieldDescriptor) func(interface{}) bool {
	t := fd.Type
	switch {
	case t.IsTimestamp():
		return func(v interface{}) bool {
			_, ok := ToMillis(v)
			return ok
		}
	case t == TypeNumber:
		return func(v interface{}) bool {
			f, ok := ToFloat(v)
			return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
		}
	case t == TypeBoolean:
		return func(v interface{}) bool {
			_, ok := v.(bool)
			return ok
		}
	case t == TypeEnum:
		return func(v interface{}) bool {
			_, ok := fd.EnumIndex(v)
			return ok
		}
	case t == TypeString || t == TypeAlias || t == TypeText:
		return func(v interface{}) bool {
			s, ok := v.(string)
			if !ok {
				return false
			}
			return fd.MaxBytes == 0 || len(s) <= int(fd.MaxBytes)
		}
	case t == TypeBinary:
		return func(v interface{}) bool {
			if v == nil {
				return true
			}
			_, ok := v.([]byte)
			return ok
		}
	case t == TypeVector:
		return func(v interface{}) bool {
			vec, ok := ToVector(v)
			return ok && (fd.VectorSize == 0 || len(vec) == int(fd.VectorSize))
		}
	}
	if min, max, ok := t.NumericRange(); ok {
		return func(v interface{}) bool {
			f, ok := ToFloat(v)
			return ok && f >= min && f <= max && f == math.Trunc(f)
		}
	}
	return func(interface{}) bool { return true }
}

// ToVector converts a numeric slice to float32 components.
func ToVector(v interface{}) ([]float32, bool) {
	switch vec := v.(type) {
	case []float32:
		return vec, true
	case []float64:
		out := make([]float32, len(vec))
		for i, x := range vec {
			out[i] = float32(x)
		}
		return out, true
	}
	return nil, false
}
