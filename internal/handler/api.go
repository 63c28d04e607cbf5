package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"vdb/internal/codec"
	"vdb/internal/domain"
	vdberrors "vdb/internal/errors"
	"vdb/internal/schema"
)

// maxSchemaBytes bounds a schema upload
const maxSchemaBytes = 1 << 20

// Catalog lists stored schemas
type Catalog interface {
	Records(ctx context.Context) ([]domain.SchemaRecord, error)
}

// SchemaAdder registers a schema and starts serving it
type SchemaAdder interface {
	AddSchema(ctx context.Context, def *schema.Definition) error
}

// RepositoryLister reports registered repositories
type RepositoryLister interface {
	Configs() []domain.RepositoryConfig
	Built(name string) bool
}

// RepositoryStatus describes one registered repository
type RepositoryStatus struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
	Strategy  string `json:"strategy"`
	Built     bool   `json:"built"`
}

// SchemaSummary is returned after a schema upload
type SchemaSummary struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace"`
	Fingerprint string `json:"fingerprint"`
}

// APIHandler serves the catalog and registry endpoints
type APIHandler struct {
	catalog Catalog
	schemas SchemaAdder
	repos   RepositoryLister
	logger  *slog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(catalog Catalog, schemas SchemaAdder, repos RepositoryLister, logger *slog.Logger) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{catalog: catalog, schemas: schemas, repos: repos, logger: logger}
}

// Register installs the API routes on mux
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/schemas", h.ListSchemas)
	mux.HandleFunc("POST /api/schemas", h.RegisterSchema)
	mux.HandleFunc("GET /api/schemas/export", h.ExportSchemas)
	mux.HandleFunc("GET /api/repositories", h.ListRepositories)
	mux.HandleFunc("GET /healthz", h.Health)
}

// ListSchemas returns every catalogued schema
func (h *APIHandler) ListSchemas(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.Records(r.Context())
	if err != nil {
		writeFailure(w, h.logger, "Failed to list schemas", err)
		return
	}
	if records == nil {
		records = []domain.SchemaRecord{}
	}
	writeJSON(w, h.logger, records, http.StatusOK)
}

// RegisterSchema accepts a JSON or YAML definition
func (h *APIHandler) RegisterSchema(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSchemaBytes+1))
	if err != nil {
		writeFailure(w, h.logger, "Invalid request body", invalid("%v", err))
		return
	}
	if len(body) > maxSchemaBytes {
		writeFailure(w, h.logger, "Invalid request body", invalid("schema exceeds %d bytes", maxSchemaBytes))
		return
	}

	def, err := schema.Parse(body)
	if err != nil {
		writeFailure(w, h.logger, "Invalid schema", vdberrors.Wrap(vdberrors.CodeInvalidArgument, "invalid schema", err))
		return
	}

	if err := h.schemas.AddSchema(r.Context(), def); err != nil {
		writeFailure(w, h.logger, "Failed to register schema", err)
		return
	}

	writeJSON(w, h.logger, SchemaSummary{
		Name:        def.Name,
		Namespace:   def.Namespace,
		Fingerprint: def.Fingerprint(),
	}, http.StatusCreated)
}

// ExportSchemas writes the catalog as a bundle in the requested format
func (h *APIHandler) ExportSchemas(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	c, err := codec.ForFormat(format)
	if err != nil {
		writeFailure(w, h.logger, "Invalid format", invalid("%v", err))
		return
	}

	records, err := h.catalog.Records(r.Context())
	if err != nil {
		writeFailure(w, h.logger, "Failed to export schemas", err)
		return
	}

	if c.Format() == "yaml" {
		w.Header().Set("Content-Type", "application/x-yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Disposition", "attachment; filename=catalog."+c.Format())

	if err := c.Export(codec.NewBundle(records), w); err != nil {
		// Headers are already written
		h.logger.Error("failed to export schemas", "error", err)
	}
}

// ListRepositories reports every registered repository
func (h *APIHandler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	configs := h.repos.Configs()
	out := make([]RepositoryStatus, 0, len(configs))
	for _, c := range configs {
		out = append(out, RepositoryStatus{
			Name:      c.Name,
			Namespace: c.Namespace,
			Strategy:  c.Strategy(),
			Built:     h.repos.Built(c.Name),
		})
	}
	writeJSON(w, h.logger, out, http.StatusOK)
}

// Health reports liveness
func (h *APIHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.logger, map[string]any{
		"status":       "ok",
		"repositories": len(h.repos.Configs()),
	}, http.StatusOK)
}
