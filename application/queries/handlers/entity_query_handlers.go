package handlers

import (
	"context"

	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/application/queries"
	"stash-backend/application/queries/bus"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

// GetEntityHandler fetches a single entity.
type GetEntityHandler struct {
	entityRepo ports.EntityRepository
	logger     *zap.Logger
}

// NewGetEntityHandler creates a new get entity handler
func NewGetEntityHandler(entityRepo ports.EntityRepository, logger *zap.Logger) *GetEntityHandler {
	return &GetEntityHandler{entityRepo: entityRepo, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *GetEntityHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.GetEntityQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}
	return h.entityRepo.FindByID(ctx, query.UserID, query.Ref())
}

// ListEntitiesHandler pages through a user's entities.
type ListEntitiesHandler struct {
	entityRepo ports.EntityRepository
	logger     *zap.Logger
}

// NewListEntitiesHandler creates a new list entities handler
func NewListEntitiesHandler(entityRepo ports.EntityRepository, logger *zap.Logger) *ListEntitiesHandler {
	return &ListEntitiesHandler{entityRepo: entityRepo, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *ListEntitiesHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.ListEntitiesQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}

	ct, err := valueObjectType(query.ContentType)
	if err != nil {
		return nil, err
	}
	filter := ports.EntityFilter{
		Type:            &ct,
		Tag:             query.Tag,
		IncludeArchived: query.IncludeArchived,
		IncludeDeleted:  query.IncludeDeleted,
	}
	page := common.PageParams{Limit: query.Limit, Offset: query.Offset}.Normalize()

	items, total, err := h.entityRepo.FindByUser(ctx, query.UserID, filter, page)
	if err != nil {
		return nil, err
	}
	return common.NewPage(items, total, page), nil
}

// CheckStalenessHandler answers the editor's "am I still current" probe.
type CheckStalenessHandler struct {
	entityRepo ports.EntityRepository
	logger     *zap.Logger
}

// NewCheckStalenessHandler creates a new staleness handler
func NewCheckStalenessHandler(entityRepo ports.EntityRepository, logger *zap.Logger) *CheckStalenessHandler {
	return &CheckStalenessHandler{entityRepo: entityRepo, logger: logger}
}

// Handle implements bus.QueryHandler. A missing or soft-deleted entity is a
// deleted result, not an error; editors need that signal to show a terminal
// state instead of a conflict dialog.
func (h *CheckStalenessHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.CheckStalenessQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}

	entity, err := h.entityRepo.FindByID(ctx, query.UserID, query.Ref())
	if err != nil {
		if errors.IsNotFound(err) {
			return queries.StalenessResult{Deleted: true}, nil
		}
		return nil, err
	}
	if entity.IsDeleted() {
		return queries.StalenessResult{Deleted: true, LiveToken: entity.Token()}, nil
	}
	return queries.StalenessResult{
		Stale:     entity.Token() != query.LoadedToken,
		LiveToken: entity.Token(),
		Version:   entity.Version,
	}, nil
}

func valueObjectType(contentType string) (valueobjects.ContentType, error) {
	return valueobjects.ParseContentType(contentType)
}
