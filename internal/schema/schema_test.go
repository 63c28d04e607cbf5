package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const noteJSON = `{
  "type": "record",
  "name": "note",
  "namespace": "com.example.notes",
  "fields": [
    {"name": "title", "type": "string"},
    {"name": "body", "type": ["null", "string"]},
    {"name": "stars", "type": "int"}
  ]
}`

const noteYAML = `
namespace: com.example.notes
name: note
type: record
fields:
  - name: title
    type: string
  - name: body
    type: [null, string]
  - name: stars
    type: int
`

func TestParse(t *testing.T) {
	def, err := ParseString(noteJSON)
	require.NoError(t, err)

	assert.Equal(t, "note", def.Name)
	assert.Equal(t, "com.example.notes", def.Namespace)
	assert.Equal(t, "com.example.notes.note", def.FullName())
	require.Len(t, def.Fields, 3)
	assert.Equal(t, Field{Name: "title", Type: String}, def.Fields[0])
	assert.Equal(t, Field{Name: "body", Type: String, Nullable: true}, def.Fields[1])
	assert.Equal(t, Int, def.Fields[2].Type)

	f, ok := def.Field("stars")
	assert.True(t, ok)
	assert.Equal(t, "INTEGER", f.Type.SQLType())
	_, ok = def.Field("missing")
	assert.False(t, ok)
}

func TestParseDottedName(t *testing.T) {
	def, err := ParseString(`{"type":"record","name":"a.b.c","fields":[{"name":"x","type":"long"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "c", def.Name)
	assert.Equal(t, "a.b", def.Namespace)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"not a document", `{`},
		{"wrong type", `{"type":"enum","name":"x","namespace":"a","fields":[]}`},
		{"missing name", `{"type":"record","namespace":"a","fields":[{"name":"x","type":"int"}]}`},
		{"missing namespace", `{"type":"record","name":"x","fields":[{"name":"x","type":"int"}]}`},
		{"bad namespace", `{"type":"record","name":"x","namespace":"a..b","fields":[{"name":"x","type":"int"}]}`},
		{"no fields", `{"type":"record","name":"x","namespace":"a","fields":[]}`},
		{"unknown field type", `{"type":"record","name":"x","namespace":"a","fields":[{"name":"x","type":"map"}]}`},
		{"wide union", `{"type":"record","name":"x","namespace":"a","fields":[{"name":"x","type":["int","string"]}]}`},
		{"null only union", `{"type":"record","name":"x","namespace":"a","fields":[{"name":"x","type":["null"]}]}`},
		{"duplicate field", `{"type":"record","name":"x","namespace":"a","fields":[{"name":"x","type":"int"},{"name":"x","type":"int"}]}`},
		{"reserved field", `{"type":"record","name":"x","namespace":"a","fields":[{"name":"_id","type":"int"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseString(tt.text)
			assert.Error(t, err)
		})
	}
}

func TestEqualIgnoresFormatting(t *testing.T) {
	a, err := ParseString(noteJSON)
	require.NoError(t, err)
	b, err := ParseString(noteYAML)
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.String(), b.String())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
}

func TestEqualDetectsChanges(t *testing.T) {
	a := MustParse(noteJSON)
	b := MustParse(`{"type":"record","name":"note","namespace":"com.example.notes","fields":[{"name":"title","type":"string"}]}`)

	assert.False(t, a.Equal(b))
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.False(t, a.Equal(nil))
}

func TestStringReparses(t *testing.T) {
	a := MustParse(noteYAML)
	b, err := ParseString(a.String())
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("{}") })
}
