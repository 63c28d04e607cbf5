package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	vdberrors "vdb/internal/errors"
	"vdb/internal/proxy"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, resp ErrorResponse, statusCode int) {
	writeJSON(w, logger, resp, statusCode)
}

// writeFailure reports err with the status its code maps to. Server-side
// faults are logged
func writeFailure(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, "error", err)
	}
	resp := ErrorResponse{Error: message, Details: err.Error()}
	if code := vdberrors.CodeOf(err); code != vdberrors.CodeUnknown {
		resp.Code = string(code)
	}
	writeError(w, logger, resp, status)
}

func statusOf(err error) int {
	if errors.Is(err, proxy.ErrNotAttached) {
		return http.StatusServiceUnavailable
	}
	return vdberrors.CodeOf(err).HTTPStatus()
}

func invalid(format string, args ...any) error {
	return vdberrors.Newf(vdberrors.CodeInvalidArgument, format, args...)
}
