package modify

import "github.com/atelier-saulx/based-sub007/schema"

// Op is the opcode of a modify command.
type Op uint8

const (
	OpSwitchNode Op = 1
	// OpEdge carries the edge properties of the reference written just
	// before it.
	OpEdge       Op = 4
	OpSetPartial Op = 5
	OpSet        Op = 6
	OpIncrement  Op = 12
	OpDecrement  Op = 13
)

func (op Op) String() string {
	switch op {
	case OpSwitchNode:
		return "switch_node"
	case OpEdge:
		return "edge"
	case OpSetPartial:
		return "set_partial"
	case OpSet:
		return "set"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	}
	return "unknown"
}

// Wire tags of the command payloads.
const (
	TagString      = schema.TypeString
	TagBinary      = schema.TypeBinary
	TagSingleRef   = schema.TypeReference
	TagRefList     = schema.TypeReferences
	TagSketch      = schema.TypeCardinality
	TagFixedRecord = schema.TypeFixedRecord
)

const (
	// opcode, field id, type tag
	cmdPrefixSize = 3
	// prefix + 4 byte little-endian size
	cmdHeaderSize = cmdPrefixSize + 4
	// opcode, type id, node id, create flag
	switchNodeSize = 1 + 2 + 4 + 1
	// start, len, op, type tag
	partDescSize = 6
	sketchRegSize = 8
)

// Increment requests that a numeric field is incremented by By, or
// decremented when By is negative.
type Increment struct {
	By float64
}
