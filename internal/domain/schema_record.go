package domain

// SchemaRecord is one row of the schema catalog
type SchemaRecord struct {
	ID         int64  `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Namespace  string `json:"namespace" yaml:"namespace"`
	Definition string `json:"schema" yaml:"schema"`
}

// Config returns the repository config a catalogued schema resolves to.
// Schema-backed repositories are keyed by namespace
func (r SchemaRecord) Config() RepositoryConfig {
	return RepositoryConfig{
		Name:      r.Namespace,
		Namespace: r.Namespace,
		Schema:    r.Definition,
	}
}
