// Package schema parses record definitions that describe a repository's
// entities.
//
// A definition is a JSON (or equivalent YAML) document:
//
//	{
//	  "type": "record",
//	  "name": "note",
//	  "namespace": "com.example.notes",
//	  "fields": [
//	    {"name": "title", "type": "string"},
//	    {"name": "body", "type": ["null", "string"]}
//	  ]
//	}
//
// Definitions compare structurally: two documents that differ only in key
// order, whitespace or encoding are equal.
package schema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"golang.org/x/crypto/blake2b"
	"sigs.k8s.io/yaml"
)

// TypeRecord is the only top-level definition type accepted
const TypeRecord = "record"

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Definition is a parsed record definition
type Definition struct {
	Name      string
	Namespace string
	Doc       string
	Fields    []Field

	canonical []byte
}

// Field is a single column of a record
type Field struct {
	Name     string
	Type     Primitive
	Nullable bool
	Doc      string
}

type document struct {
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Namespace string          `json:"namespace,omitempty"`
	Doc       string          `json:"doc,omitempty"`
	Fields    []fieldDocument `json:"fields"`
}

type fieldDocument struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
	Doc  string          `json:"doc,omitempty"`
}

// Parse reads a definition from JSON or YAML text
func Parse(text []byte) (*Definition, error) {
	data, err := yaml.YAMLToJSON(text)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if doc.Type != TypeRecord {
		return nil, fmt.Errorf("schema type must be %q, got %q", TypeRecord, doc.Type)
	}

	// A dotted name carries its own namespace.
	name, namespace := doc.Name, doc.Namespace
	if i := strings.LastIndex(name, "."); i >= 0 {
		namespace, name = name[:i], name[i+1:]
	}
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid schema name %q", doc.Name)
	}
	if namespace == "" {
		return nil, fmt.Errorf("schema %s has no namespace", name)
	}
	for _, part := range strings.Split(namespace, ".") {
		if !namePattern.MatchString(part) {
			return nil, fmt.Errorf("invalid schema namespace %q", namespace)
		}
	}
	if len(doc.Fields) == 0 {
		return nil, fmt.Errorf("schema %s has no fields", name)
	}

	def := &Definition{
		Name:      name,
		Namespace: namespace,
		Doc:       doc.Doc,
		Fields:    make([]Field, 0, len(doc.Fields)),
	}

	seen := make(map[string]bool, len(doc.Fields))
	for _, fd := range doc.Fields {
		f, err := parseField(fd)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("schema %s: duplicate field %q", name, f.Name)
		}
		seen[f.Name] = true
		def.Fields = append(def.Fields, f)
	}

	if def.canonical, err = canonicalize(def); err != nil {
		return nil, err
	}

	return def, nil
}

// canonicalize encodes the parsed form of def so that equivalent inputs,
// JSON or YAML, produce identical bytes
func canonicalize(def *Definition) ([]byte, error) {
	doc := document{
		Type:      TypeRecord,
		Name:      def.Name,
		Namespace: def.Namespace,
		Doc:       def.Doc,
		Fields:    make([]fieldDocument, 0, len(def.Fields)),
	}
	for _, f := range def.Fields {
		var typ any = string(f.Type)
		if f.Nullable {
			typ = []string{"null", string(f.Type)}
		}
		raw, err := json.Marshal(typ)
		if err != nil {
			return nil, err
		}
		doc.Fields = append(doc.Fields, fieldDocument{Name: f.Name, Type: raw, Doc: f.Doc})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("could not encode schema: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(data)
	if err != nil {
		return nil, fmt.Errorf("could not canonicalize schema: %w", err)
	}
	return out, nil
}

// ParseString is Parse for string input
func ParseString(text string) (*Definition, error) {
	return Parse([]byte(text))
}

// MustParse is like Parse but panics on error. Intended for built-in
// definitions
func MustParse(text string) *Definition {
	def, err := ParseString(text)
	if err != nil {
		panic(err)
	}
	return def
}

func parseField(fd fieldDocument) (Field, error) {
	if !namePattern.MatchString(fd.Name) {
		return Field{}, fmt.Errorf("invalid field name %q", fd.Name)
	}
	if IsReserved(fd.Name) {
		return Field{}, fmt.Errorf("field name %q is reserved", fd.Name)
	}

	f := Field{Name: fd.Name, Doc: fd.Doc}

	var single string
	if err := json.Unmarshal(fd.Type, &single); err == nil {
		p, err := parsePrimitive(single)
		if err != nil {
			return Field{}, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		f.Type = p
		return f, nil
	}

	var union []string
	if err := json.Unmarshal(fd.Type, &union); err != nil {
		return Field{}, fmt.Errorf("field %s: unsupported type %s", fd.Name, string(fd.Type))
	}
	for _, member := range union {
		// YAML reads a bare null member as JSON null, which decodes to "".
		if member == "null" || member == "" {
			f.Nullable = true
			continue
		}
		if f.Type != "" {
			return Field{}, fmt.Errorf("field %s: only unions with null are supported", fd.Name)
		}
		p, err := parsePrimitive(member)
		if err != nil {
			return Field{}, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		f.Type = p
	}
	if f.Type == "" {
		return Field{}, fmt.Errorf("field %s: union has no value type", fd.Name)
	}
	return f, nil
}

// FullName returns namespace.name
func (d *Definition) FullName() string {
	return d.Namespace + "." + d.Name
}

// Field returns the named field
func (d *Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Canonical returns the canonical JSON form of the definition
func (d *Definition) Canonical() []byte {
	return d.canonical
}

// String returns the canonical JSON text. This is the form stored in the
// catalog
func (d *Definition) String() string {
	return string(d.canonical)
}

// Equal reports whether d and other are structurally the same definition
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == other
	}
	return string(d.canonical) == string(other.canonical)
}

// Fingerprint returns the hex encoded BLAKE2b-256 digest of the canonical
// form
func (d *Definition) Fingerprint() string {
	sum := blake2b.Sum256(d.canonical)
	return hex.EncodeToString(sum[:])
}
