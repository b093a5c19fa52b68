// Package mockschema provides compiled schema fixtures for tests.
package mockschema

import (
	"strings"

	"github.com/atelier-saulx/based-sub007/schema"
)

// Definition is the schema most tests run against. The user main record is
// laid out as:
//
//	age      uint8   [0,1)
//	score    uint32  [1,5)
//	balance  number  [5,13)
//	active   boolean [13,14)
//	born     timestamp [14,22)
//	level    enum    [22,23)
//	code     string  [23,28) (inline, maxBytes 4)
//
// The bestFriend edge record is 12 bytes: $rank [0,4), $weight [4,8),
// $extra [8,12). $note is a separate edge field.
const Definition = `
locales: [en, nl]
types:
  - name: user
    props:
      - {name: name, type: string}
      - {name: age, type: uint8}
      - {name: score, type: uint32}
      - {name: balance, type: number}
      - {name: active, type: boolean}
      - {name: born, type: timestamp}
      - {name: level, type: enum, enum: [low, mid, high]}
      - {name: code, type: string, maxBytes: 4}
      - {name: bio, type: text}
      - {name: avatar, type: binary}
      - {name: visits, type: cardinality}
      - {name: embedding, type: vector, size: 3}
      - name: address
        type: object
        props:
          - {name: email, type: alias}
          - {name: city, type: string}
      - name: bestFriend
        type: reference
        ref: user
        edges:
          - {name: $rank, type: uint32}
          - {name: $weight, type: uint32}
          - {name: $extra, type: uint32}
          - {name: $note, type: string}
      - {name: friends, type: references, ref: user}
  - name: counter
    props:
      - {name: count, type: uint32}
  - name: pair
    props:
      - {name: left, type: uint32}
      - {name: right, type: uint32}
`

// MustSnapshot compiles Definition.
func MustSnapshot() *schema.Snapshot {
	return MustCompile(Definition)
}

// MustCompile compiles a YAML definition and panics on error.
func MustCompile(def string) *schema.Snapshot {
	snap, err := schema.ParseYAML([]byte(def))
	if err != nil {
		panic(err)
	}
	return snap
}

// MustSnapshotWith compiles Definition with an extra prop appended to the
// counter type, which yields a snapshot with a different checksum.
func MustSnapshotWith(propName string) *schema.Snapshot {
	def := strings.Replace(Definition,
		"      - {name: count, type: uint32}\n",
		"      - {name: count, type: uint32}\n      - {name: "+propName+", type: uint8}\n", 1)
	return MustCompile(def)
}
