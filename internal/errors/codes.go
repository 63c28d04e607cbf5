// Package errors provides the coded error taxonomy shared by the registry,
// the schema catalog and the access proxy.
package errors

import "net/http"

// Code is a machine-readable error code
type Code string

const (
	// CodeUnknown represents an unknown error
	CodeUnknown Code = "UNKNOWN"

	// Resolution errors
	CodeUnregisteredRepository  Code = "UNREGISTERED_REPOSITORY"
	CodeBareRepositoryReference Code = "BARE_REPOSITORY_REFERENCE"
	CodeInvalidIdentifier       Code = "INVALID_IDENTIFIER"
	CodeInvalidConfig           Code = "INVALID_CONFIG"

	// Construction errors
	CodeHandlerConstructionFailed Code = "HANDLER_CONSTRUCTION_FAILED"

	// Catalog errors
	CodeCatalogUnavailable Code = "CATALOG_UNAVAILABLE"
	CodeSchemaNotFound     Code = "SCHEMA_NOT_FOUND"

	// Handler errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
)

// HTTPStatus maps domain codes to HTTP status codes
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBareRepositoryReference,
		CodeInvalidIdentifier,
		CodeInvalidConfig,
		CodeInvalidArgument:
		return http.StatusBadRequest

	case CodeUnregisteredRepository,
		CodeSchemaNotFound,
		CodeNotFound:
		return http.StatusNotFound

	case CodeConflict:
		return http.StatusConflict

	case CodeCatalogUnavailable:
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}
