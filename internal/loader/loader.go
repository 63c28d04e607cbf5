// Package loader reads schema definition files from disk.
//
// A file holds one definition in JSON, or one or more YAML documents
// separated by "---".
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"vdb/internal/schema"
)

// Extensions lists the file suffixes read as schema definitions
var Extensions = []string{".json", ".yaml", ".yml"}

// Registrar records parsed definitions
type Registrar interface {
	RegisterSchema(ctx context.Context, def *schema.Definition) error
}

// IsSchemaFile reports whether path names a schema definition file
func IsSchemaFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadFile reads every definition in the file at path
func LoadFile(path string) ([]*schema.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	defs, err := ParseDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ParseDocuments parses each YAML document in data as a definition.
// JSON input is a single YAML document
func ParseDocuments(data []byte) ([]*schema.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var defs []*schema.Definition
	for i := 0; ; i++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if isEmpty(&node) {
			continue
		}

		text, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		def, err := schema.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		defs = append(defs, def)
	}

	if len(defs) == 0 {
		return nil, errors.New("no schema definitions found")
	}
	return defs, nil
}

func isEmpty(node *yaml.Node) bool {
	if node.Kind == 0 {
		return true
	}
	if node.Kind == yaml.DocumentNode {
		return len(node.Content) == 0 || isEmpty(node.Content[0])
	}
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

// LoadDir reads every schema file below dir, in lexical path order
func LoadDir(dir string) ([]*schema.Definition, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSchemaFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan schema dir: %w", err)
	}
	sort.Strings(paths)

	var defs []*schema.Definition
	for _, path := range paths {
		fileDefs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return defs, nil
}

// Register records defs with r in order and stops at the first failure.
// It returns the number of definitions registered
func Register(ctx context.Context, r Registrar, defs []*schema.Definition) (int, error) {
	for i, def := range defs {
		if err := r.RegisterSchema(ctx, def); err != nil {
			return i, fmt.Errorf("register %s: %w", def.FullName(), err)
		}
	}
	return len(defs), nil
}
