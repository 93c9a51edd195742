package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rpggio/folio/internal/domain/mutation"
	"github.com/rpggio/folio/internal/repository"
	"github.com/rpggio/folio/internal/sandbox"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type     string              `json:"type,omitempty"`
	Title    string              `json:"title,omitempty"`
	Status   int                 `json:"status,omitempty"`
	Detail   string              `json:"detail,omitempty"`
	Instance string              `json:"instance,omitempty"`
	Errors   map[string][]string `json:"errors,omitempty"`
	Usages   []mutation.Usage    `json:"usages,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title, detail string, errs map[string][]string) {
	writeProblem(w, Problem{Title: title, Status: status, Detail: detail, Errors: errs})
}

func writeProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeError maps a domain error to its HTTP status.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	p := Problem{Detail: err.Error(), Instance: r.URL.Path}

	var inUse *mutation.InUseError
	switch {
	case errors.As(err, &inUse):
		p.Status, p.Title, p.Usages = http.StatusConflict, "in use", inUse.Usages
	case errors.Is(err, sandbox.ErrSessionLimit):
		p.Status, p.Title = http.StatusTooManyRequests, "too many sandbox sessions"
	case errors.Is(err, mutation.ErrInvalidSnapshot):
		p.Status, p.Title = http.StatusUnprocessableEntity, "invalid snapshot"
	case errors.Is(err, repository.ErrNotFound):
		p.Status, p.Title = http.StatusNotFound, "not found"
	case errors.Is(err, repository.ErrConflict):
		p.Status, p.Title = http.StatusConflict, "conflict"
	case errors.Is(err, repository.ErrInvalidInput):
		p.Status, p.Title = http.StatusBadRequest, "invalid input"
	case errors.Is(err, repository.ErrIOFailure):
		p.Status, p.Title = http.StatusServiceUnavailable, "storage unavailable"
	default:
		p.Status, p.Title, p.Detail = http.StatusInternalServerError, "internal error", ""
	}

	if p.Status >= 500 {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", p.Status, "error", err)
	}
	writeProblem(w, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
