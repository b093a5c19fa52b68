package schema_test

import (
	"testing"
	"time"

	"github.com/atelier-saulx/based-sub007/schema"
	"github.com/atelier-saulx/based-sub007/schema/mockschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileLayout(t *testing.T) {
	snap := mockschema.MustSnapshot()
	user, ok := snap.Type("user")
	require.True(t, ok)
	assert.Equal(t, uint16(1), user.ID)
	assert.Equal(t, uint16(28), user.MainLen)

	expected := []struct {
		path       string
		start, len uint16
	}{
		{"age", 0, 1},
		{"score", 1, 4},
		{"balance", 5, 8},
		{"active", 13, 1},
		{"born", 14, 8},
		{"level", 22, 1},
		{"code", 23, 5},
	}
	for _, e := range expected {
		fd, ok := user.Field(e.path)
		require.True(t, ok, e.path)
		assert.False(t, fd.Separate, e.path)
		assert.Equal(t, schema.MainFieldID, fd.ID, e.path)
		assert.Equal(t, e.start, fd.Start, e.path)
		assert.Equal(t, e.len, fd.Len, e.path)
		assert.True(t, fd.Start+fd.Len <= user.MainLen)
	}

	name, _ := user.Field("name")
	assert.True(t, name.Separate)
	assert.Equal(t, uint8(1), name.ID)
	email, _ := user.Field("address.email")
	assert.Equal(t, schema.TypeAlias, email.Type)
	addr, _ := user.Field("address")
	assert.Equal(t, schema.TypeObject, addr.Type)
	assert.False(t, addr.IsMain())
}

func TestCompileEdges(t *testing.T) {
	snap := mockschema.MustSnapshot()
	user, _ := snap.Type("user")
	bf, ok := user.Field("bestFriend")
	require.True(t, ok)
	require.NotNil(t, bf.Edges)
	assert.Equal(t, "user", bf.RefType)
	assert.Equal(t, uint16(12), bf.Edges.MainLen)
	assert.Len(t, bf.Edges.Main, 3)
	assert.Len(t, bf.Edges.Separate, 1)
	note, ok := bf.Edges.Field("$note")
	require.True(t, ok)
	assert.Equal(t, uint8(1), note.ID)
}

func TestChecksumStable(t *testing.T) {
	a := mockschema.MustSnapshot()
	b := mockschema.MustSnapshot()
	c := mockschema.MustSnapshotWith("extra")
	assert.Equal(t, a.Checksum, b.Checksum)
	assert.NotEqual(t, a.Checksum, c.Checksum)
}

func TestLookupLocaleSuffix(t *testing.T) {
	user, _ := mockschema.MustSnapshot().Type("user")
	fd, suffix, ok := user.Lookup("bio.en")
	require.True(t, ok)
	assert.Equal(t, schema.TypeText, fd.Type)
	assert.Equal(t, "en", suffix)

	_, _, ok = user.Lookup("name.en")
	assert.False(t, ok)
	_, _, ok = user.Lookup("missing")
	assert.False(t, ok)
}

func TestCompileErrors(t *testing.T) {
	cases := []string{
		"types: [{name: a, props: [{name: x, type: nope}]}]",
		"types: [{name: a, props: [{name: x, type: reference, ref: b}]}]",
		"types: [{name: a, props: [{name: x, type: enum}]}]",
		"types: [{name: a, props: [{name: x, type: vector}]}]",
		"types: [{name: a}, {name: a}]",
		"types: [{name: a, props: [{name: x, type: uint8}, {name: x, type: uint8}]}]",
		"types: [{name: a, props: [{name: r, type: reference, ref: a, edges: [{name: nodollar, type: uint8}]}]}]",
	}
	for _, def := range cases {
		_, err := schema.ParseYAML([]byte(def))
		assert.Error(t, err, def)
	}
}

func TestDefaultValidators(t *testing.T) {
	user, _ := mockschema.MustSnapshot().Type("user")
	age, _ := user.Field("age")
	assert.True(t, age.Validate(12))
	assert.False(t, age.Validate(256))
	assert.False(t, age.Validate(1.5))
	assert.False(t, age.Validate("1"))

	born, _ := user.Field("born")
	assert.True(t, born.Validate(time.Now()))
	assert.True(t, born.Validate(int64(-5)))

	level, _ := user.Field("level")
	assert.True(t, level.Validate("mid"))
	assert.True(t, level.Validate(2))
	assert.False(t, level.Validate("none"))
	idx, _ := level.EnumIndex("high")
	assert.Equal(t, uint8(2), idx)

	code, _ := user.Field("code")
	assert.True(t, code.Validate("abcd"))
	assert.False(t, code.Validate("abcde"))

	emb, _ := user.Field("embedding")
	assert.True(t, emb.Validate([]float32{1, 2, 3}))
	assert.False(t, emb.Validate([]float32{1, 2}))
}

func TestToUint32(t *testing.T) {
	n, ok := schema.ToUint32(7)
	assert.True(t, ok)
	assert.Equal(t, uint32(7), n)
	_, ok = schema.ToUint32(-1)
	assert.False(t, ok)
	_, ok = schema.ToUint32(1.5)
	assert.False(t, ok)
	_, ok = schema.ToUint32(float64(1 << 33))
	assert.False(t, ok)
}
