package sqlite

import (
	"vdb/internal/repository"
	"vdb/internal/schema"
)

// HandlerTypeKeyValue names the built-in key/value handler
const HandlerTypeKeyValue = "kv"

var keyValueDefinition = schema.MustParse(`{
  "type": "record",
  "name": "entry",
  "namespace": "vdb.kv",
  "doc": "String values addressed by a unique key",
  "fields": [
    {"name": "key", "type": "string"},
    {"name": "value", "type": ["null", "string"]}
  ]
}`)

// KeyValueDefinition returns the record served by the key/value handler
func KeyValueDefinition() *schema.Definition {
	return keyValueDefinition
}

// NewKeyValueHandler creates a handler storing entries with unique keys
func NewKeyValueHandler() (repository.Handler, error) {
	return NewSchemaHandler(keyValueDefinition, WithUniqueIndex("key"))
}

// RegisterFactories adds the built-in handler types to f
func RegisterFactories(f *repository.Factories) error {
	return f.Register(HandlerTypeKeyValue, NewKeyValueHandler)
}
