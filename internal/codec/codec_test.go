package codec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vdb/internal/domain"
	"vdb/internal/schema"
)

var noteDef = schema.MustParse(`{
  "type": "record",
  "name": "note",
  "namespace": "notes",
  "doc": "true",
  "fields": [
    {"name": "title", "type": "string"},
    {"name": "body", "type": ["null", "string"]}
  ]
}`)

func sampleBundle() *Bundle {
	return NewBundle([]domain.SchemaRecord{
		{ID: 1, Name: noteDef.Name, Namespace: noteDef.Namespace, Definition: noteDef.String()},
	})
}

func TestRoundTrip(t *testing.T) {
	for _, format := range Formats() {
		t.Run(format, func(t *testing.T) {
			c, err := ForFormat(format)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, c.Export(sampleBundle(), &buf))

			parsed, err := c.Parse(&buf)
			require.NoError(t, err)
			assert.Equal(t, BundleVersion, parsed.Version)

			defs, err := parsed.Definitions()
			require.NoError(t, err)
			require.Len(t, defs, 1)
			assert.True(t, defs[0].Equal(noteDef))
			assert.Equal(t, int64(1), parsed.Schemas[0].ID)
		})
	}
}

func TestYAMLExportIsStructured(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(sampleBundle(), &buf))

	out := buf.String()
	assert.Contains(t, out, "type: record")
	assert.Contains(t, out, `["null", "string"]`)
	assert.NotContains(t, out, `{"`)
}

func TestYAMLParseAcceptsStringSchemas(t *testing.T) {
	in := `
version: 1
schemas:
  - name: note
    namespace: notes
    schema: '{"type":"record","name":"note","namespace":"notes","fields":[{"name":"title","type":"string"}]}'
`
	b, err := NewYAMLCodec().Parse(strings.NewReader(in))
	require.NoError(t, err)

	defs, err := b.Definitions()
	require.NoError(t, err)
	assert.Equal(t, "notes.note", defs[0].FullName())
}

func TestDefinitionsRejectsMismatch(t *testing.T) {
	b := sampleBundle()
	b.Schemas[0].Namespace = "other"

	_, err := b.Definitions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace")
}

func TestForFormat(t *testing.T) {
	c, err := ForFormat(" YML ")
	require.NoError(t, err)
	assert.Equal(t, "yaml", c.Format())

	_, err = ForFormat("ansible")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "json, yaml")
}

func TestJSONParseError(t *testing.T) {
	_, err := NewJSONCodec().Parse(strings.NewReader("{"))
	assert.Error(t, err)
}
