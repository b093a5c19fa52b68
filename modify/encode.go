package modify

import (
	"math"
	"sort"

	"github.com/atelier-saulx/based-sub007/schema"
)

// Encode appends the commands that write values to the node selected by the
// last SwitchNode. Values are keyed by field name; nested maps address the
// fields of objects. Separate fields are written in ascending field id and
// are followed by at most one command for the main record.
//
// ErrRange means the command that did not fit was not written, nor anything
// after it. A *ModifyError stops encoding at the offending field; commands
// written before it stay in the buffer.
func Encode(ctx *Ctx, fs *schema.FieldSet, values map[string]interface{}) error {
	var sep, main []fieldValue
	if err := collect(fs, "", values, &sep, &main); err != nil {
		return err
	}
	sort.SliceStable(sep, func(i, j int) bool { return sep[i].fd.ID < sep[j].fd.ID })
	for _, f := range sep {
		if err := writeSeparate(ctx, f); err != nil {
			return err
		}
	}
	if len(main) == 0 {
		return nil
	}
	return writeMain(ctx, fs, main)
}

func collect(fs *schema.FieldSet, prefix string, values map[string]interface{}, sep, main *[]fieldValue) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path, v := k, values[k]
		if prefix != "" {
			path = prefix + "." + k
		}
		fd, ok := fs.Field(path)
		if !ok {
			return &ModifyError{Path: path, Value: v, Reason: "unknown field"}
		}
		if fd.Type == schema.TypeObject {
			m, ok := v.(map[string]interface{})
			if !ok {
				return newModifyError(fd, v, "expected an object")
			}
			if err := collect(fs, path, m, sep, main); err != nil {
				return err
			}
			continue
		}
		op, arg, err := classify(fd, v)
		if err != nil {
			return err
		}
		f := fieldValue{fd: fd, op: op, value: arg}
		if fd.IsMain() {
			*main = insertField(*main, f)
		} else {
			*sep = append(*sep, f)
		}
	}
	return nil
}

// classify picks the opcode of a value. Increments carry their magnitude.
func classify(fd *schema.FieldDescriptor, v interface{}) (Op, interface{}, error) {
	var (
		by          float64
		incremental bool
	)
	switch x := v.(type) {
	case Increment:
		by, incremental = x.By, true
	case map[string]interface{}:
		if n, ok := x["increment"]; ok {
			f, ok := schema.ToFloat(n)
			if !ok {
				return 0, nil, newModifyError(fd, v, "increment needs a number")
			}
			by, incremental = f, true
		}
	}
	if !incremental {
		return OpSet, v, nil
	}
	if !fd.IsMain() || !(fd.Type.IsNumeric() || fd.Type.IsTimestamp()) {
		return 0, nil, newModifyError(fd, v, "only numeric main fields can be incremented")
	}
	if by == 0 || math.IsNaN(by) || math.IsInf(by, 0) {
		return 0, nil, newModifyError(fd, v, "increment must be a non-zero number")
	}
	if by < 0 {
		return OpDecrement, -by, nil
	}
	return OpIncrement, by, nil
}
