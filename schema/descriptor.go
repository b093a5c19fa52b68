package schema

import (
	"sort"
	"strings"
)

// MainFieldID is the field id reserved for the fixed-length main record.
const MainFieldID uint8 = 0

// FieldDescriptor describes one field of a type or of an edge. Descriptors are
// immutable and owned by the Snapshot that produced them.
type FieldDescriptor struct {
	// Path is the dotted path of the field inside its type, e.g. "address.city".
	Path string
	// ID is the field id on the wire. Fields stored in the main record share
	// MainFieldID and are addressed by Start and Len.
	ID   uint8
	Type Type
	// Start and Len locate a fixed field inside the main record.
	Start uint16
	Len   uint16
	// Separate is set for variable-length fields that are written as their
	// own command.
	Separate bool
	// Validate reports whether a value can be stored in this field.
	Validate func(v interface{}) bool

	MaxBytes   uint16
	VectorSize uint16
	Enum       []string
	// RefType is the target type name of reference fields.
	RefType string
	// Edges holds the edge properties of a reference field, or nil.
	Edges *FieldSet
}

// EnumIndex returns the stored index of an enum value.
func (fd *FieldDescriptor) EnumIndex(v interface{}) (uint8, bool) {
	if s, ok := v.(string); ok {
		for i, e := range fd.Enum {
			if e == s {
				return uint8(i), true
			}
		}
		return 0, false
	}
	if n, ok := ToUint32(v); ok && int(n) < len(fd.Enum) {
		return uint8(n), true
	}
	return 0, false
}

// IsMain reports whether the field lives in the main record.
func (fd *FieldDescriptor) IsMain() bool {
	return !fd.Separate && fd.Type != TypeObject
}

// FieldSet is a set of field descriptors split into separate and main
// fields. The main fields are packed into one MainLen bytes record and never
// overlap. A FieldSet describes both the props of a type and the props of a
// graph edge.
type FieldSet struct {
	Separate []*FieldDescriptor
	Main     []*FieldDescriptor
	MainLen  uint16

	byPath map[string]*FieldDescriptor
}

// EdgeFieldSet is the field set of the properties attached to a reference.
type EdgeFieldSet = FieldSet

func newFieldSet() *FieldSet {
	return &FieldSet{byPath: make(map[string]*FieldDescriptor)}
}

// Field returns the descriptor stored under path.
func (fs *FieldSet) Field(path string) (*FieldDescriptor, bool) {
	if fs == nil {
		return nil, false
	}
	fd, ok := fs.byPath[path]
	return fd, ok
}

// Paths returns all field paths in sorted order.
func (fs *FieldSet) Paths() []string {
	paths := make([]string, 0, len(fs.byPath))
	for p := range fs.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (fs *FieldSet) add(fd *FieldDescriptor) {
	fs.byPath[fd.Path] = fd
	switch {
	case fd.Type == TypeObject:
	case fd.Separate:
		fs.Separate = append(fs.Separate, fd)
	default:
		fs.Main = append(fs.Main, fd)
	}
}

// TypeDef is a compiled node type.
type TypeDef struct {
	Name string
	ID   uint16
	*FieldSet
}

// Lookup resolves a dotted path. When the full path is unknown but a prefix
// names a text field, the remainder is returned as the locale suffix
// ("title.en" resolves to title with suffix "en").
func (t *TypeDef) Lookup(path string) (fd *FieldDescriptor, suffix string, ok bool) {
	if fd, ok = t.Field(path); ok {
		return fd, "", true
	}
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return nil, "", false
	}
	if fd, ok = t.Field(path[:i]); ok && fd.Type == TypeText {
		return fd, path[i+1:], true
	}
	return nil, "", false
}

// Snapshot is one compiled version of the schema. A snapshot is identified by
// its Checksum; a new schema always yields a new snapshot.
type Snapshot struct {
	Checksum uint64
	Locales  []string

	types map[string]*TypeDef
	byID  map[uint16]*TypeDef
}

func (s *Snapshot) Type(name string) (*TypeDef, bool) {
	t, ok := s.types[name]
	return t, ok
}

func (s *Snapshot) TypeByID(id uint16) (*TypeDef, bool) {
	t, ok := s.byID[id]
	return t, ok
}

// LangCode returns the wire code of a locale. Codes start at 1; 0 means no
// locale.
func (s *Snapshot) LangCode(lang string) (uint8, bool) {
	for i, l := range s.Locales {
		if l == lang {
			return uint8(i + 1), true
		}
	}
	return 0, false
}

// ErrorField is the inert descriptor substituted for fields that failed
// validation so that building can continue.
var ErrorField = &FieldDescriptor{
	Path:     "__error",
	Type:     TypeNull,
	Separate: true,
	Validate: func(interface{}) bool { return false },
}

// EmptyType returns a stand-in type without fields.
func EmptyType(name string) *TypeDef {
	return &TypeDef{Name: name, FieldSet: newFieldSet()}
}
