package modify

import (
	"encoding/binary"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/pingcap/errors"
)

// Command is one decoded modify command.
type Command struct {
	Op    Op
	Field uint8
	Tag   schema.Type

	// Payload is the raw payload of size-prefixed commands.
	Payload []byte
	// ID is the node id of a single reference.
	ID uint32

	// Set for SwitchNode.
	TypeID uint16
	Create bool

	// Set for partial records.
	RecordLen uint16
	Parts     []Part
	Record    []byte

	// Edges holds the nested commands of an OpEdge command.
	Edges []Command
}

// Part describes one field of a partial record.
type Part struct {
	Start uint16
	Len   uint16
	Op    Op
	Tag   schema.Type
}

// Value returns the bytes of p inside the record.
func (p Part) Value(record []byte) []byte {
	return record[p.Start : p.Start+p.Len]
}

// Decode parses a command buffer. It is the inverse of Encode and
// SwitchNode, used to inspect buffers before they are sent.
func Decode(b []byte) ([]Command, error) {
	var cmds []Command
	for len(b) > 0 {
		cmd, n, err := decodeOne(b)
		if err != nil {
			return cmds, err
		}
		cmds = append(cmds, cmd)
		b = b[n:]
	}
	return cmds, nil
}

func decodeOne(b []byte) (Command, int, error) {
	var cmd Command
	cmd.Op = Op(b[0])
	if cmd.Op == OpSwitchNode {
		if len(b) < switchNodeSize {
			return cmd, 0, errors.New("modify: truncated switch node")
		}
		cmd.TypeID = binary.LittleEndian.Uint16(b[1:])
		cmd.ID = binary.LittleEndian.Uint32(b[3:])
		cmd.Create = b[7] == 1
		return cmd, switchNodeSize, nil
	}
	if len(b) < cmdPrefixSize {
		return cmd, 0, errors.New("modify: truncated command")
	}
	cmd.Field = b[1]
	cmd.Tag = schema.Type(b[2])
	if cmd.Tag == TagSingleRef && cmd.Op != OpEdge {
		if len(b) < cmdPrefixSize+4 {
			return cmd, 0, errors.New("modify: truncated reference")
		}
		cmd.ID = binary.LittleEndian.Uint32(b[cmdPrefixSize:])
		return cmd, cmdPrefixSize + 4, nil
	}
	if len(b) < cmdHeaderSize {
		return cmd, 0, errors.New("modify: truncated header")
	}
	size := int(binary.LittleEndian.Uint32(b[cmdPrefixSize:]))
	if len(b) < cmdHeaderSize+size {
		return cmd, 0, errors.Errorf("modify: payload of %d bytes exceeds buffer", size)
	}
	cmd.Payload = b[cmdHeaderSize : cmdHeaderSize+size]
	switch {
	case cmd.Op == OpEdge:
		edges, err := Decode(cmd.Payload)
		if err != nil {
			return cmd, 0, errors.Annotate(err, "edge")
		}
		cmd.Edges = edges
	case cmd.Op == OpSetPartial && cmd.Tag == TagFixedRecord:
		if err := decodePartial(&cmd); err != nil {
			return cmd, 0, err
		}
	case cmd.Tag == TagFixedRecord:
		cmd.Record = cmd.Payload
		cmd.RecordLen = uint16(size)
	}
	return cmd, cmdHeaderSize + size, nil
}

func decodePartial(cmd *Command) error {
	p := cmd.Payload
	if len(p) < 2 {
		return errors.New("modify: truncated partial record")
	}
	cmd.RecordLen = binary.LittleEndian.Uint16(p)
	n := (len(p) - 2 - int(cmd.RecordLen)) / partDescSize
	if n < 0 || 2+n*partDescSize+int(cmd.RecordLen) != len(p) {
		return errors.New("modify: malformed partial record")
	}
	for i := 0; i < n; i++ {
		d := p[2+i*partDescSize:]
		part := Part{
			Start: binary.LittleEndian.Uint16(d),
			Len:   binary.LittleEndian.Uint16(d[2:]),
			Op:    Op(d[4]),
			Tag:   schema.Type(d[5]),
		}
		if part.Start+part.Len > cmd.RecordLen {
			return errors.Errorf("modify: part [%d,%d) outside record", part.Start, part.Start+part.Len)
		}
		cmd.Parts = append(cmd.Parts, part)
	}
	cmd.Record = p[2+n*partDescSize:]
	return nil
}
