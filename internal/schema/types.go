package schema

import "fmt"

// Primitive is a field value type
type Primitive string

const (
	String  Primitive = "string"
	Int     Primitive = "int"
	Long    Primitive = "long"
	Float   Primitive = "float"
	Double  Primitive = "double"
	Boolean Primitive = "boolean"
	Bytes   Primitive = "bytes"
)

// ColumnID is the row identifier column every entity table carries
const ColumnID = "_id"

func parsePrimitive(s string) (Primitive, error) {
	switch p := Primitive(s); p {
	case String, Int, Long, Float, Double, Boolean, Bytes:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported type %q", s)
	}
}

// SQLType returns the SQLite column affinity for p
func (p Primitive) SQLType() string {
	switch p {
	case Int, Long, Boolean:
		return "INTEGER"
	case Float, Double:
		return "REAL"
	case Bytes:
		return "BLOB"
	default:
		return "TEXT"
	}
}

// IsReserved reports whether name collides with a column managed by the
// storage layer
func IsReserved(name string) bool {
	return name == ColumnID
}
