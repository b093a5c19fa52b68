package query

import (
	"fmt"
	"math"

	"github.com/atelier-saulx/based-sub007/schema"
)

// Kind is the shape of a query target. Its value is the query type byte on
// the wire.
type Kind uint8

const (
	KindAll Kind = iota
	KindID
	KindIDs
	KindAlias
)

const (
	MaxID = math.MaxUint32
	// DefaultMaxIDs bounds the length of an id list target.
	DefaultMaxIDs = 1000000
	DefaultLimit  = 1000
)

// DefaultRange is the range of queries that set none, or an invalid one.
var DefaultRange = Range{Offset: 0, Limit: DefaultLimit}

// Target is what a query reads: all nodes of a type, one id, a sorted list
// of ids or the node holding an alias value.
type Target struct {
	Kind       Kind
	Type       *schema.TypeDef
	ID         uint32
	IDs        []uint32
	Alias      *schema.FieldDescriptor
	AliasValue string
}

// Def is the plan of one query statement. Builder calls mutate it and
// collect problems in Errors instead of failing; HandleErrors reports them.
// A Def is owned by a single build and is discarded when the schema changes.
type Def struct {
	Schema *schema.Snapshot
	Target Target

	Conditions *FilterGroup
	Order      *Sort
	Window     Range
	Includes   *Include
	Matching   *Search
	Aggregates *Aggregate

	Lang           uint8
	LangName       string
	Errors         []ErrorEntry
	SchemaChecksum uint64

	// SkipValidation disables value and operator checks for trusted,
	// internally generated queries. Field lookups still happen.
	SkipValidation bool

	typeName string
	maxIDs   int
}

// Option configures a new Def.
type Option func(*Def)

func WithMaxIDs(n int) Option {
	return func(def *Def) {
		if n > 0 {
			def.maxIDs = n
		}
	}
}

func WithSkipValidation() Option {
	return func(def *Def) {
		def.SkipValidation = true
	}
}

// New starts a query on typeName. target is nil for all nodes, a number for
// one id, a list of numbers for several ids or a map holding an alias value.
func New(snap *schema.Snapshot, typeName string, target interface{}, opts ...Option) *Def {
	def := &Def{
		Schema:   snap,
		Window:   DefaultRange,
		typeName: typeName,
		maxIDs:   DefaultMaxIDs,
	}
	for _, opt := range opts {
		opt(def)
	}
	def.setTarget(typeName, target)
	return def
}

// Name is the display name used in error messages.
func (def *Def) Name() string {
	switch def.Target.Kind {
	case KindID:
		return fmt.Sprintf("%s:%d", def.typeName, def.Target.ID)
	case KindIDs:
		return fmt.Sprintf("%s (%d ids)", def.typeName, len(def.Target.IDs))
	case KindAlias:
		return fmt.Sprintf("%s %s=%q", def.typeName, def.Target.Alias.Path, def.Target.AliasValue)
	}
	return def.typeName
}

// Locale selects the locale used for text fields without a locale suffix.
func (def *Def) Locale(lang string) *Def {
	code, ok := def.Schema.LangCode(lang)
	if !ok {
		def.addError(InvalidLang, lang)
		return def
	}
	def.Lang, def.LangName = code, lang
	return def
}

func (def *Def) langCode(lang string) (uint8, bool) {
	return def.Schema.LangCode(lang)
}

// typeOf returns the type a reference field points to.
func (def *Def) typeOf(fd *schema.FieldDescriptor) *schema.TypeDef {
	if t, ok := def.Schema.Type(fd.RefType); ok {
		return t
	}
	return schema.EmptyType(fd.RefType)
}
