package query

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
)

// Code identifies a validation problem found while building a query.
type Code int

const (
	TargetInvalType Code = iota + 1
	TargetInvalAlias
	TargetExceedMaxIDs
	TargetInvalIDs
	TargetInvalID
	IncludeENOENT
	IncludeInvalidLang
	FilterENOENT
	FilterOpField
	FilterOpENOENT
	FilterInvalidVal
	FilterInvalidOpts
	FilterInvalidLang
	IncludeInvalidType
	SortENOENT
	SortType
	SortOrder
	SortWrongTarget
	RangeInvalidOffset
	RangeInvalidLimit
	InvalidLang
	SearchENOENT
	SearchType
	SearchIncorrectValue
	SortLang
	AggENOENT
	AggType
	AggInvalidStepType
	AggInvalidStepRange
	AggNotImplemented
)

var codeNames = map[Code]string{
	TargetInvalType:      "TARGET_INVAL_TYPE",
	TargetInvalAlias:     "TARGET_INVAL_ALIAS",
	TargetExceedMaxIDs:   "TARGET_EXCEED_MAX_IDS",
	TargetInvalIDs:       "TARGET_INVAL_IDS",
	TargetInvalID:        "TARGET_INVAL_ID",
	IncludeENOENT:        "INCLUDE_ENOENT",
	IncludeInvalidLang:   "INCLUDE_INVALID_LANG",
	FilterENOENT:         "FILTER_ENOENT",
	FilterOpField:        "FILTER_OP_FIELD",
	FilterOpENOENT:       "FILTER_OP_ENOENT",
	FilterInvalidVal:     "FILTER_INVALID_VAL",
	FilterInvalidOpts:    "FILTER_INVALID_OPTS",
	FilterInvalidLang:    "FILTER_INVALID_LANG",
	IncludeInvalidType:   "INCLUDE_INVALID_TYPE",
	SortENOENT:           "SORT_ENOENT",
	SortType:             "SORT_TYPE",
	SortOrder:            "SORT_ORDER",
	SortWrongTarget:      "SORT_WRONG_TARGET",
	RangeInvalidOffset:   "RANGE_INVALID_OFFSET",
	RangeInvalidLimit:    "RANGE_INVALID_LIMIT",
	InvalidLang:          "INVALID_LANG",
	SearchENOENT:         "SEARCH_ENOENT",
	SearchType:           "SEARCH_TYPE",
	SearchIncorrectValue: "SEARCH_INCORRECT_VALUE",
	SortLang:             "SORT_LANG",
	AggENOENT:            "AGG_ENOENT",
	AggType:              "AGG_TYPE",
	AggInvalidStepType:   "AGG_INVALID_STEP_TYPE",
	AggInvalidStepRange:  "AGG_INVALID_STEP_RANGE",
	AggNotImplemented:    "AGG_NOT_IMPLEMENTED",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// FieldPayload is the payload of errors about a field.
type FieldPayload struct {
	Field string      `json:"field"`
	Type  string      `json:"type,omitempty"`
	Op    Operator    `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

var formatters = map[Code]func(p interface{}) string{
	TargetInvalType:    func(p interface{}) string { return fmt.Sprintf("Type %s does not exist", render(p)) },
	TargetInvalAlias:   func(p interface{}) string { return fmt.Sprintf("Invalid alias target %s", render(p)) },
	TargetExceedMaxIDs: func(p interface{}) string { return fmt.Sprintf("Too many ids, got %s", render(p)) },
	TargetInvalIDs:     func(p interface{}) string { return fmt.Sprintf("Ids must be a list of positive integers, got %s", render(p)) },
	TargetInvalID:      func(p interface{}) string { return fmt.Sprintf("Id must be a positive integer, got %s", render(p)) },
	IncludeENOENT:      func(p interface{}) string { return fmt.Sprintf("Include: field %s does not exist", render(p)) },
	IncludeInvalidLang: func(p interface{}) string { return fmt.Sprintf("Include: invalid locale in %s", render(p)) },
	FilterENOENT:       func(p interface{}) string { return fmt.Sprintf("Filter: field %s does not exist", render(p)) },
	FilterOpField: func(p interface{}) string {
		if f, ok := p.(FieldPayload); ok {
			return fmt.Sprintf("Filter: operator %q is not allowed on %s field %q", f.Op, f.Type, f.Field)
		}
		return fmt.Sprintf("Filter: operator not allowed %s", render(p))
	},
	FilterOpENOENT:    func(p interface{}) string { return fmt.Sprintf("Filter: unknown operator %s", render(p)) },
	FilterInvalidVal:  func(p interface{}) string { return fmt.Sprintf("Filter: invalid value %s", render(p)) },
	FilterInvalidOpts: func(p interface{}) string { return fmt.Sprintf("Filter: invalid options %s", render(p)) },
	FilterInvalidLang: func(p interface{}) string { return fmt.Sprintf("Filter: invalid locale in %s", render(p)) },
	IncludeInvalidType: func(p interface{}) string {
		return fmt.Sprintf("Include: cannot include nested fields of %s", render(p))
	},
	SortENOENT:      func(p interface{}) string { return fmt.Sprintf("Sort: field %s does not exist", render(p)) },
	SortType:        func(p interface{}) string { return fmt.Sprintf("Sort: cannot sort on %s", render(p)) },
	SortOrder:       func(p interface{}) string { return fmt.Sprintf("Sort: order must be \"asc\" or \"desc\", got %s", render(p)) },
	SortWrongTarget: func(p interface{}) string { return fmt.Sprintf("Sort: cannot sort a single node query (%s)", render(p)) },
	RangeInvalidOffset: func(p interface{}) string {
		return fmt.Sprintf("Range: offset must be a non-negative integer, got %s", render(p))
	},
	RangeInvalidLimit: func(p interface{}) string {
		return fmt.Sprintf("Range: limit must be a positive integer, got %s", render(p))
	},
	InvalidLang:          func(p interface{}) string { return fmt.Sprintf("Invalid locale %s", render(p)) },
	SearchENOENT:         func(p interface{}) string { return fmt.Sprintf("Search: field %s does not exist", render(p)) },
	SearchType:           func(p interface{}) string { return fmt.Sprintf("Search: cannot search %s", render(p)) },
	SearchIncorrectValue: func(p interface{}) string { return fmt.Sprintf("Search: incorrect value %s", render(p)) },
	SortLang:             func(p interface{}) string { return fmt.Sprintf("Sort: no locale for text field %s", render(p)) },
	AggENOENT:            func(p interface{}) string { return fmt.Sprintf("Aggregate: field %s does not exist", render(p)) },
	AggType:              func(p interface{}) string { return fmt.Sprintf("Aggregate: cannot aggregate %s", render(p)) },
	AggInvalidStepType:   func(p interface{}) string { return fmt.Sprintf("Aggregate: invalid step %s", render(p)) },
	AggInvalidStepRange:  func(p interface{}) string { return fmt.Sprintf("Aggregate: step out of range %s", render(p)) },
	AggNotImplemented:    func(p interface{}) string { return fmt.Sprintf("Aggregate: not implemented %s", render(p)) },
}

func render(p interface{}) string {
	if s, ok := p.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(b)
}

// ErrorEntry is one accumulated validation problem.
type ErrorEntry struct {
	Code    Code        `json:"code"`
	Payload interface{} `json:"payload"`
}

func (e ErrorEntry) String() string {
	if f, ok := formatters[e.Code]; ok {
		return f(e.Payload)
	}
	return fmt.Sprintf("%s %s", e.Code, render(e.Payload))
}

// Error aggregates the validation problems of one query.
type Error struct {
	Name    string       `json:"name"`
	Entries []ErrorEntry `json:"errors"`
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query error: %s", e.Name)
	for _, entry := range e.Entries {
		b.WriteString("\n  ")
		b.WriteString(entry.String())
	}
	return b.String()
}

// JSON renders the entries for error reporting.
func (e *Error) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Has reports whether the error contains an entry with code c.
func (e *Error) Has(c Code) bool {
	for _, entry := range e.Entries {
		if entry.Code == c {
			return true
		}
	}
	return false
}

// HandleErrors is the single checkpoint for the problems accumulated by the
// builder calls on def. It returns nil or one *Error listing all of them.
func HandleErrors(def *Def) error {
	if len(def.Errors) == 0 {
		return nil
	}
	return &Error{Name: def.Name(), Entries: append([]ErrorEntry(nil), def.Errors...)}
}

func (def *Def) addError(code Code, payload interface{}) {
	def.Errors = append(def.Errors, ErrorEntry{Code: code, Payload: payload})
}
