package domain

import (
	"fmt"
	"strings"

	vdberrors "vdb/internal/errors"
)

// RepositoryConfig describes a repository known to the registry
type RepositoryConfig struct {
	Name        string `json:"name" yaml:"name"`
	Namespace   string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Schema      string `json:"schema,omitempty" yaml:"schema,omitempty"`
	HandlerType string `json:"handler_type,omitempty" yaml:"handler_type,omitempty"`
}

// HasSchema reports whether the repository is built from its schema definition
func (c RepositoryConfig) HasSchema() bool {
	return strings.TrimSpace(c.Schema) != ""
}

// Validate checks the config invariants
func (c RepositoryConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return vdberrors.New(vdberrors.CodeInvalidConfig, "repository config has no name")
	}
	if strings.Contains(c.Name, "/") {
		return vdberrors.Newf(vdberrors.CodeInvalidConfig, "repository name %q contains '/'", c.Name)
	}
	if !c.HasSchema() && strings.TrimSpace(c.HandlerType) == "" {
		return vdberrors.WithMetadata(vdberrors.CodeInvalidConfig,
			fmt.Sprintf("repository %s needs a schema or a handler type", c.Name),
			map[string]string{"repository": c.Name})
	}
	return nil
}

// Strategy names how the handler for c is constructed
func (c RepositoryConfig) Strategy() string {
	if c.HasSchema() {
		return "schema"
	}
	return "factory"
}
