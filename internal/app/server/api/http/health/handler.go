package health

import (
	"context"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

const (
	StatusOK       = "OK"
	StatusDegraded = "DEGRADED"
)

// Counter is the part of a repository the health check calls.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	repositories map[string]Counter
	log          *slog.Logger
	middleware   huma.Middlewares
}

func NewHandler(repositories map[string]Counter, log *slog.Logger, middleware huma.Middlewares) *Handler {
	return &Handler{
		repositories: repositories,
		log:          log.With("component", "health_handler"),
		middleware:   middleware,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.storageStatusOp(), h.healthCheck)
}

func (h *Handler) healthCheck(ctx context.Context, _ *Input) (*Output, error) {
	h.log.Debug("health check request received")

	names := make([]string, 0, len(h.repositories))
	for name := range h.repositories {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := Response{Status: StatusOK, Storage: make(map[string]string, len(names))}
	for _, name := range names {
		if _, err := h.repositories[name].Count(ctx); err != nil {
			h.log.Warn("repository is not answering", "repository", name, "error", err)
			resp.Status = StatusDegraded
			resp.Storage[name] = err.Error()
			continue
		}
		resp.Storage[name] = StatusOK
	}

	return &Output{Body: resp}, nil
}
