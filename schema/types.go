package schema

import "fmt"

// Type is the type tag of a field. The numeric values are shared with the
// engine and appear on the wire, so they must never be renumbered.
type Type uint8

const (
	TypeNull        Type = 0
	TypeTimestamp   Type = 1
	TypeCreated     Type = 2
	TypeUpdated     Type = 3
	TypeNumber      Type = 4
	TypeCardinality Type = 5
	TypeUint8       Type = 6
	TypeUint32      Type = 7
	TypeBoolean     Type = 9
	TypeEnum        Type = 10
	TypeString      Type = 11
	TypeText        Type = 12
	TypeReference   Type = 13
	TypeReferences  Type = 14
	TypeFixedRecord Type = 17
	TypeAlias       Type = 18
	TypeInt8        Type = 20
	TypeInt16       Type = 21
	TypeUint16      Type = 22
	TypeInt32       Type = 23
	TypeBinary      Type = 25
	TypeID          Type = 26
	TypeVector      Type = 27
	TypeJSON        Type = 28
	TypeObject      Type = 29
)

var typeNames = map[Type]string{
	TypeNull:        "null",
	TypeTimestamp:   "timestamp",
	TypeCreated:     "created",
	TypeUpdated:     "updated",
	TypeNumber:      "number",
	TypeCardinality: "cardinality",
	TypeUint8:       "uint8",
	TypeUint32:      "uint32",
	TypeBoolean:     "boolean",
	TypeEnum:        "enum",
	TypeString:      "string",
	TypeText:        "text",
	TypeReference:   "reference",
	TypeReferences:  "references",
	TypeFixedRecord: "microbuffer",
	TypeAlias:       "alias",
	TypeInt8:        "int8",
	TypeInt16:       "int16",
	TypeUint16:      "uint16",
	TypeInt32:       "int32",
	TypeBinary:      "binary",
	TypeID:          "id",
	TypeVector:      "vector",
	TypeJSON:        "json",
	TypeObject:      "object",
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType maps a schema type name to its tag.
func ParseType(name string) (Type, bool) {
	t, ok := typesByName[name]
	return t, ok
}

// FixedSize returns the number of bytes a value of type t occupies in the
// main record. Variable length types return 0.
func (t Type) FixedSize() uint16 {
	switch t {
	case TypeBoolean, TypeUint8, TypeInt8, TypeEnum:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32:
		return 4
	case TypeNumber, TypeTimestamp, TypeCreated, TypeUpdated:
		return 8
	}
	return 0
}

// IsNumeric reports whether values of t are numbers that can be compared,
// incremented and aggregated.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeNumber, TypeTimestamp, TypeCreated, TypeUpdated,
		TypeUint8, TypeInt8, TypeUint16, TypeInt16, TypeUint32, TypeInt32,
		TypeCardinality, TypeID:
		return true
	}
	return false
}

func (t Type) IsTimestamp() bool {
	return t == TypeTimestamp || t == TypeCreated || t == TypeUpdated
}

func (t Type) IsReference() bool {
	return t == TypeReference || t == TypeReferences
}

// IsStringLike reports whether values of t are matched as text.
func (t Type) IsStringLike() bool {
	switch t {
	case TypeString, TypeText, TypeBinary, TypeAlias, TypeJSON:
		return true
	}
	return false
}

// NumericRange returns the inclusive bounds of an integer type. ok is false
// for types without bounds.
func (t Type) NumericRange() (min, max float64, ok bool) {
	switch t {
	case TypeUint8:
		return 0, 255, true
	case TypeInt8:
		return -128, 127, true
	case TypeUint16:
		return 0, 65535, true
	case TypeInt16:
		return -32768, 32767, true
	case TypeUint32, TypeID:
		return 0, 4294967295, true
	case TypeInt32:
		return -2147483648, 2147483647, true
	}
	return 0, 0, false
}
