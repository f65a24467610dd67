package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/application/queries"
	"stash-backend/application/queries/bus"
	"stash-backend/application/services"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

// ListEntityHistoryHandler pages through one entity's log, newest first.
type ListEntityHistoryHandler struct {
	historyRepo ports.HistoryRepository
	logger      *zap.Logger
}

// NewListEntityHistoryHandler creates a new entity history handler
func NewListEntityHistoryHandler(historyRepo ports.HistoryRepository, logger *zap.Logger) *ListEntityHistoryHandler {
	return &ListEntityHistoryHandler{historyRepo: historyRepo, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *ListEntityHistoryHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.ListEntityHistoryQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}

	page := common.PageParams{Limit: query.Limit, Offset: query.Offset}.Normalize()
	entries, total, err := h.historyRepo.ListForEntity(ctx, query.Ref(), page)
	if err != nil {
		return nil, err
	}
	normalizeAll(h.logger, entries)
	return common.NewPage(entries, total, page), nil
}

// ListUserHistoryHandler pages through the caller's activity view.
type ListUserHistoryHandler struct {
	historyRepo ports.HistoryRepository
	logger      *zap.Logger
}

// NewListUserHistoryHandler creates a new user history handler
func NewListUserHistoryHandler(historyRepo ports.HistoryRepository, logger *zap.Logger) *ListUserHistoryHandler {
	return &ListUserHistoryHandler{historyRepo: historyRepo, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *ListUserHistoryHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.ListUserHistoryQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}

	filter := ports.HistoryFilter{
		Sources:   query.Sources,
		StartDate: query.StartDate,
		EndDate:   query.EndDate,
	}
	for _, ct := range query.ContentTypes {
		parsed, err := valueobjects.ParseContentType(ct)
		if err != nil {
			return nil, err
		}
		filter.ContentTypes = append(filter.ContentTypes, parsed)
	}
	for _, a := range query.Actions {
		action := versioning.Action(a)
		if !action.IsValid() {
			return nil, errors.NewValidationError(
				fmt.Sprintf("unknown action %q (valid: %v)", a, versioning.AllActions))
		}
		filter.Actions = append(filter.Actions, action)
	}

	page := common.PageParams{Limit: query.Limit, Offset: query.Offset}.Normalize()
	entries, total, err := h.historyRepo.ListForUser(ctx, query.UserID, filter, page)
	if err != nil {
		return nil, err
	}
	normalizeAll(h.logger, entries)
	return common.NewPage(entries, total, page), nil
}

// DiffVersionHandler compares a version against its content predecessor.
type DiffVersionHandler struct {
	reconstructor *services.Reconstructor
	logger        *zap.Logger
}

// NewDiffVersionHandler creates a new diff handler
func NewDiffVersionHandler(reconstructor *services.Reconstructor, logger *zap.Logger) *DiffVersionHandler {
	return &DiffVersionHandler{reconstructor: reconstructor, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *DiffVersionHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.DiffVersionQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}
	return h.reconstructor.Diff(ctx, query.UserID, query.Ref(), query.Version)
}

// normalizeAll repairs legacy rows before they leave the read path, so
// consumers only ever see the target invariant.
func normalizeAll(logger *zap.Logger, entries []*versioning.HistoryEntry) {
	repaired := 0
	for _, e := range entries {
		if e.Normalize() {
			repaired++
		}
	}
	if repaired > 0 {
		logger.Warn("Normalized legacy history rows", zap.Int("count", repaired))
	}
}
