package codec

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse imports a bundle from JSON
func (c *JSONCodec) Parse(r io.Reader) (*Bundle, error) {
	var b Bundle
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if b.Version == 0 {
		b.Version = BundleVersion
	}
	return &b, nil
}

// Export writes b as indented JSON
func (c *JSONCodec) Export(b *Bundle, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(b); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
