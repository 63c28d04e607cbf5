package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"vdb/internal/domain"
	"vdb/internal/schema"
)

// YAMLCodec handles YAML import/export. Definitions are written as nested
// mappings rather than embedded JSON strings
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

type yamlBundle struct {
	Version int          `yaml:"version"`
	Schemas []yamlRecord `yaml:"schemas"`
}

type yamlRecord struct {
	ID        int64     `yaml:"id,omitempty"`
	Name      string    `yaml:"name"`
	Namespace string    `yaml:"namespace,omitempty"`
	Schema    yaml.Node `yaml:"schema"`
}

// Parse imports a bundle from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*Bundle, error) {
	var y yamlBundle
	if err := yaml.NewDecoder(r).Decode(&y); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	b := &Bundle{Version: y.Version}
	if b.Version == 0 {
		b.Version = BundleVersion
	}
	for _, rec := range y.Schemas {
		text, err := schemaText(&rec.Schema)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", rec.Name, err)
		}
		b.Schemas = append(b.Schemas, domain.SchemaRecord{
			ID:         rec.ID,
			Name:       rec.Name,
			Namespace:  rec.Namespace,
			Definition: text,
		})
	}
	return b, nil
}

// schemaText accepts a definition written either as a mapping or as a string
func schemaText(node *yaml.Node) (string, error) {
	if node.Kind == yaml.ScalarNode {
		return node.Value, nil
	}
	data, err := yaml.Marshal(node)
	if err != nil {
		return "", err
	}
	def, err := schema.Parse(data)
	if err != nil {
		return "", err
	}
	return def.String(), nil
}

// Export writes b as YAML
func (c *YAMLCodec) Export(b *Bundle, w io.Writer) error {
	y := yamlBundle{Version: b.Version}
	for _, rec := range b.Schemas {
		var node yaml.Node
		// JSON is a subset of YAML; the stored text decodes into a mapping.
		if err := yaml.Unmarshal([]byte(rec.Definition), &node); err != nil {
			return fmt.Errorf("schema %s: %w", rec.Name, err)
		}
		body := &node
		if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
			body = node.Content[0]
		}
		setBlockStyle(body)
		y.Schemas = append(y.Schemas, yamlRecord{
			ID:        rec.ID,
			Name:      rec.Name,
			Namespace: rec.Namespace,
			Schema:    *body,
		})
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&y); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

// setBlockStyle clears the flow style inherited from JSON input, except on
// short sequences such as ["null", "string"] unions
func setBlockStyle(n *yaml.Node) {
	if n.Kind == yaml.SequenceNode && len(n.Content) > 0 && n.Content[0].Kind == yaml.ScalarNode {
		n.Style = yaml.FlowStyle
		return
	}
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		n.Style = 0
	}
	if n.Kind == yaml.ScalarNode {
		n.Style = 0
	}
	for _, c := range n.Content {
		setBlockStyle(c)
	}
}
