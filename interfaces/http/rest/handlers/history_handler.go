package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stash-backend/application/queries"
	querybus "stash-backend/application/queries/bus"
	"stash-backend/application/services"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/auth"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

// HistoryHandler serves the version log read endpoints.
type HistoryHandler struct {
	queryBus   *querybus.QueryBus
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(queryBus *querybus.QueryBus, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		queryBus:   queryBus,
		errHandler: errors.NewErrorHandler(logger, false),
		logger:     logger,
	}
}

// ListForEntity handles GET /history/{type}/{id}
func (h *HistoryHandler) ListForEntity(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	page := common.ExtractPageParams(r)
	result, err := h.queryBus.Ask(r.Context(), queries.ListEntityHistoryQuery{
		UserID:      user.UserID,
		ContentType: chi.URLParam(r, "type"),
		EntityID:    chi.URLParam(r, "id"),
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toHistoryPage(result.(common.Page[*versioning.HistoryEntry])))
}

// ListForUser handles GET /history, the cross-entity activity feed.
// Filters: content_types, actions, sources (repeatable, bracket suffix
// accepted), start_date, end_date.
func (h *HistoryHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	q := r.URL.Query()
	page := common.ExtractPageParams(r)
	query := queries.ListUserHistoryQuery{
		UserID:       user.UserID,
		ContentTypes: multiParam(q, "content_types"),
		Actions:      multiParam(q, "actions"),
		Sources:      multiParam(q, "sources"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}

	if query.StartDate, err = parseTimeParam(q.Get("start_date")); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid start_date: "+err.Error()))
		return
	}
	if query.EndDate, err = parseTimeParam(q.Get("end_date")); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid end_date: "+err.Error()))
		return
	}

	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toHistoryPage(result.(common.Page[*versioning.HistoryEntry])))
}

// Diff handles GET /history/{type}/{id}/diff?version=N
func (h *HistoryHandler) Diff(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	version, err := strconv.Atoi(r.URL.Query().Get("version"))
	if err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("version must be a number"))
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.DiffVersionQuery{
		UserID:      user.UserID,
		ContentType: chi.URLParam(r, "type"),
		EntityID:    chi.URLParam(r, "id"),
		Version:     version,
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toDiffResponse(result.(*services.DiffResult)))
}
