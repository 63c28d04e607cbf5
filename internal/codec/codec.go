// Package codec moves schema catalog snapshots in and out of vdb.
package codec

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"vdb/internal/domain"
	"vdb/internal/schema"
)

// BundleVersion is the snapshot format written by Export
const BundleVersion = 1

// Bundle is a portable snapshot of the schema catalog
type Bundle struct {
	Version int                   `json:"version"`
	Schemas []domain.SchemaRecord `json:"schemas"`
}

// NewBundle snapshots records
func NewBundle(records []domain.SchemaRecord) *Bundle {
	return &Bundle{Version: BundleVersion, Schemas: records}
}

// Definitions parses every record of the bundle, checking that the stored
// name and namespace agree with the definition text
func (b *Bundle) Definitions() ([]*schema.Definition, error) {
	defs := make([]*schema.Definition, 0, len(b.Schemas))
	for i, rec := range b.Schemas {
		def, err := schema.ParseString(rec.Definition)
		if err != nil {
			return nil, fmt.Errorf("schema %d (%s): %w", i, rec.Name, err)
		}
		if rec.Name != "" && rec.Name != def.Name {
			return nil, fmt.Errorf("schema %d: record name %q does not match definition %q", i, rec.Name, def.Name)
		}
		if rec.Namespace != "" && rec.Namespace != def.Namespace {
			return nil, fmt.Errorf("schema %d: record namespace %q does not match definition %q", i, rec.Namespace, def.Namespace)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Importer reads bundles in one format
type Importer interface {
	Parse(r io.Reader) (*Bundle, error)
	Format() string
}

// Exporter writes bundles in one format
type Exporter interface {
	Export(b *Bundle, w io.Writer) error
	Format() string
}

// Codec both reads and writes a format
type Codec interface {
	Importer
	Exporter
}

var codecs = map[string]Codec{
	"json": NewJSONCodec(),
	"yaml": NewYAMLCodec(),
	"yml":  NewYAMLCodec(),
}

// ForFormat returns the codec registered under name
func ForFormat(name string) (Codec, error) {
	c, ok := codecs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown format %q (want one of %s)", name, strings.Join(Formats(), ", "))
	}
	return c, nil
}

// Formats lists the canonical format names
func Formats() []string {
	seen := map[string]bool{}
	var names []string
	for _, c := range codecs {
		if !seen[c.Format()] {
			seen[c.Format()] = true
			names = append(names, c.Format())
		}
	}
	sort.Strings(names)
	return names
}
