package modify

import (
	"fmt"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/pingcap/errors"
)

// ErrRange is returned when a command does not fit in the remaining capacity
// of the buffer. Nothing of the command has been written; the caller should
// flush the buffer and retry the command in a fresh one.
var ErrRange = errors.New("modify: range error, buffer capacity exceeded")

// ErrUnresolved is the reason attached to a ModifyError when a pending
// reference has no id yet.
var ErrUnresolved = errors.New("modify: pending reference is not resolved")

// ModifyError reports a value that cannot be written to a field. It only
// affects that field; commands written earlier stay valid.
type ModifyError struct {
	Field  *schema.FieldDescriptor
	Path   string
	Value  interface{}
	Reason string
}

func (e *ModifyError) Error() string {
	t := "unknown"
	if e.Field != nil {
		t = e.Field.Type.String()
	}
	return fmt.Sprintf("modify: invalid value %v for %s field %q: %s", e.Value, t, e.Path, e.Reason)
}

func newModifyError(fd *schema.FieldDescriptor, v interface{}, reason string) *ModifyError {
	return &ModifyError{Field: fd, Path: fd.Path, Value: v, Reason: reason}
}

// IsModifyError reports whether err, or its cause, is a ModifyError.
func IsModifyError(err error) bool {
	_, ok := errors.Cause(err).(*ModifyError)
	return ok
}
