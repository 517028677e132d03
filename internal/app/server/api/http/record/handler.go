package record

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"

	"archivist/internal/domain/record"
)

// History gives read access to both repositories. *record.Recorder implements it.
type History interface {
	Snapshots() record.Repository
	Versions() record.Repository
}

type Handler struct {
	history    History
	log        *slog.Logger
	middleware huma.Middlewares
}

func NewHandler(history History, log *slog.Logger, mws huma.Middlewares) *Handler {
	return &Handler{
		history:    history,
		log:        log.With("component", "record_handler"),
		middleware: mws,
	}
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, h.listOp(), h.list)
	huma.Register(api, h.latestOp(), h.latest)
	huma.Register(api, h.findOp(), h.find)
	huma.Register(api, h.contentOp(), h.content)
}

func (h *Handler) repository(collection string) (record.Repository, error) {
	switch collection {
	case CollectionSnapshots:
		return h.history.Snapshots(), nil
	case CollectionVersions:
		return h.history.Versions(), nil
	default:
		return nil, huma.Error404NotFound("unknown collection " + collection)
	}
}

func (h *Handler) list(ctx context.Context, input *listInput) (*listOutput, error) {
	repo, err := h.repository(input.Collection)
	if err != nil {
		return nil, err
	}

	resp := listResponse{Records: []recordResponse{}}
	for rec, err := range repo.Iterate(ctx, record.FindOptions{DeferContentLoading: true}) {
		if err != nil {
			h.log.Error("failed to list records", "collection", input.Collection, "error", err)
			return nil, huma.Error500InternalServerError("failed to list records", err)
		}
		if input.Service != "" && rec.ServiceID != input.Service {
			continue
		}
		if input.Type != "" && rec.DocumentType != input.Type {
			continue
		}
		resp.Total++
		if input.Limit == 0 || len(resp.Records) < input.Limit {
			resp.Records = append(resp.Records, toResponse(rec))
		}
	}

	return &listOutput{Body: resp}, nil
}

func (h *Handler) latest(ctx context.Context, input *latestInput) (*findOutput, error) {
	repo, err := h.repository(input.Collection)
	if err != nil {
		return nil, err
	}

	rec, err := repo.FindLatest(ctx, input.Service, input.Type)
	if err != nil {
		h.log.Error("failed to find latest record", "collection", input.Collection, "error", err)
		return nil, huma.Error500InternalServerError("failed to find latest record", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound("no record for " + input.Service + " " + input.Type)
	}

	return &findOutput{Body: toResponse(rec)}, nil
}

func (h *Handler) find(ctx context.Context, input *findInput) (*findOutput, error) {
	rec, err := h.findByID(ctx, input)
	if err != nil {
		return nil, err
	}
	return &findOutput{Body: toResponse(rec)}, nil
}

func (h *Handler) content(ctx context.Context, input *findInput) (*contentOutput, error) {
	rec, err := h.findByID(ctx, input)
	if err != nil {
		return nil, err
	}
	if !rec.IsContentLoaded() {
		repo, _ := h.repository(input.Collection)
		if err := repo.LoadRecordContent(ctx, rec); err != nil {
			return nil, huma.Error500InternalServerError("failed to load record content", err)
		}
	}

	return &contentOutput{
		ContentType: rec.MimeType,
		Body:        rec.Content,
	}, nil
}

func (h *Handler) findByID(ctx context.Context, input *findInput) (*record.Record, error) {
	repo, err := h.repository(input.Collection)
	if err != nil {
		return nil, err
	}

	rec, err := repo.FindByID(ctx, input.ID)
	if err != nil {
		h.log.Error("failed to find record", "collection", input.Collection, "id", input.ID, "error", err)
		return nil, huma.Error500InternalServerError("failed to find record", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound("record " + input.ID + " not found")
	}
	return rec, nil
}
