package schema

import (
	"math"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/ghodss/yaml"
	json "github.com/goccy/go-json"
	"github.com/pingcap/errors"
)

// Strings up to this many bytes are stored inline in the main record.
const maxInlineString = 60

// Definition is the declarative form of a schema, as produced by the schema
// compiler or read from a YAML file.
type Definition struct {
	Locales []string         `json:"locales,omitempty"`
	Types   []TypeDefinition `json:"types"`
}

type TypeDefinition struct {
	Name  string           `json:"name"`
	Props []PropDefinition `json:"props"`
}

type PropDefinition struct {
	Name     string           `json:"name"`
	Type     string           `json:"type"`
	Ref      string           `json:"ref,omitempty"`
	MaxBytes uint16           `json:"maxBytes,omitempty"`
	Size     uint16           `json:"size,omitempty"`
	Enum     []string         `json:"enum,omitempty"`
	Props    []PropDefinition `json:"props,omitempty"`
	Edges    []PropDefinition `json:"edges,omitempty"`
}

// ParseYAML reads a YAML schema definition and compiles it.
func ParseYAML(data []byte) (*Snapshot, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Trace(err)
	}
	return Compile(&def)
}

// Compile lays out the fields of every type and returns the snapshot. The
// checksum is a fingerprint of the canonical definition, so compiling the same
// definition twice yields the same checksum.
func Compile(def *Definition) (*Snapshot, error) {
	canonical, err := json.Marshal(def)
	if err != nil {
		return nil, errors.Trace(err)
	}
	snap := &Snapshot{
		Checksum: farm.Fingerprint64(canonical),
		Locales:  append([]string(nil), def.Locales...),
		types:    make(map[string]*TypeDef, len(def.Types)),
		byID:     make(map[uint16]*TypeDef, len(def.Types)),
	}
	if snap.Checksum == 0 {
		snap.Checksum = 1
	}
	if len(def.Types) > math.MaxUint16 {
		return nil, errors.Errorf("schema: too many types (%d)", len(def.Types))
	}
	for i, td := range def.Types {
		if td.Name == "" {
			return nil, errors.Errorf("schema: type %d has no name", i)
		}
		if _, ok := snap.types[td.Name]; ok {
			return nil, errors.Errorf("schema: duplicate type %q", td.Name)
		}
		t := &TypeDef{Name: td.Name, ID: uint16(i + 1), FieldSet: newFieldSet()}
		snap.types[t.Name] = t
		snap.byID[t.ID] = t
	}
	for _, td := range def.Types {
		t := snap.types[td.Name]
		l := &layout{snap: snap, set: t.FieldSet}
		if err := l.addProps("", td.Props, false); err != nil {
			return nil, errors.Annotatef(err, "type %q", td.Name)
		}
	}
	return snap, nil
}

type layout struct {
	snap   *Snapshot
	set    *FieldSet
	nextID int
	offset int
}

func (l *layout) addProps(prefix string, props []PropDefinition, edge bool) error {
	for _, p := range props {
		if p.Name == "" || strings.Contains(p.Name, ".") {
			return errors.Errorf("schema: invalid prop name %q", p.Name)
		}
		if edge && !strings.HasPrefix(p.Name, "$") {
			return errors.Errorf("schema: edge prop %q must start with $", p.Name)
		}
		path := p.Name
		if prefix != "" {
			path = prefix + "." + p.Name
		}
		if _, ok := l.set.byPath[path]; ok {
			return errors.Errorf("schema: duplicate prop %q", path)
		}
		t, ok := ParseType(p.Type)
		if !ok {
			return errors.Errorf("schema: unknown type %q for %q", p.Type, path)
		}
		fd := &FieldDescriptor{Path: path, Type: t, MaxBytes: p.MaxBytes, VectorSize: p.Size, Enum: p.Enum}
		switch t {
		case TypeObject:
			if edge {
				return errors.Errorf("schema: edge prop %q cannot be an object", path)
			}
			l.set.add(fd)
			if err := l.addProps(path, p.Props, edge); err != nil {
				return err
			}
			continue
		case TypeReference, TypeReferences:
			if _, ok := l.snap.types[p.Ref]; !ok {
				return errors.Errorf("schema: %q references unknown type %q", path, p.Ref)
			}
			fd.RefType = p.Ref
			if len(p.Edges) > 0 {
				if edge {
					return errors.Errorf("schema: edge prop %q cannot have edges", path)
				}
				el := &layout{snap: l.snap, set: newFieldSet()}
				if err := el.addProps("", p.Edges, true); err != nil {
					return err
				}
				fd.Edges = el.set
			}
		case TypeEnum:
			if len(p.Enum) == 0 || len(p.Enum) > math.MaxUint8 {
				return errors.Errorf("schema: enum %q needs 1 to 255 values", path)
			}
		case TypeVector:
			if p.Size == 0 {
				return errors.Errorf("schema: vector %q needs a size", path)
			}
		case TypeNull, TypeFixedRecord, TypeID:
			return errors.Errorf("schema: type %q cannot be declared (%q)", p.Type, path)
		}
		if err := l.place(fd); err != nil {
			return err
		}
		fd.Validate = defaultValidator(fd)
		l.set.add(fd)
	}
	return nil
}

func (l *layout) place(fd *FieldDescriptor) error {
	size := int(fd.Type.FixedSize())
	if fd.Type == TypeString && fd.MaxBytes > 0 && fd.MaxBytes <= maxInlineString {
		size = int(fd.MaxBytes) + 1
	}
	if size == 0 {
		l.nextID++
		if l.nextID > math.MaxUint8 {
			return errors.Errorf("schema: too many separate fields at %q", fd.Path)
		}
		fd.ID = uint8(l.nextID)
		fd.Separate = true
		return nil
	}
	if l.offset+size > math.MaxUint16 {
		return errors.Errorf("schema: main record overflows at %q", fd.Path)
	}
	fd.ID = MainFieldID
	fd.Start = uint16(l.offset)
	fd.Len = uint16(size)
	l.offset += size
	l.set.MainLen = uint16(l.offset)
	return nil
}
