package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stash-backend/application/commands"
	commandbus "stash-backend/application/commands/bus"
	"stash-backend/application/queries"
	querybus "stash-backend/application/queries/bus"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/auth"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
	"stash-backend/pkg/observability"
	"stash-backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// EntityHandler serves the CRUD, lifecycle, restore and staleness endpoints
// for all three content types. The {type} route parameter selects which.
type EntityHandler struct {
	commandBus *commandbus.CommandBus
	queryBus   *querybus.QueryBus
	metrics    *observability.Metrics
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewEntityHandler creates a new entity handler
func NewEntityHandler(
	commandBus *commandbus.CommandBus,
	queryBus *querybus.QueryBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *EntityHandler {
	return &EntityHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		metrics:    metrics,
		errHandler: errors.NewErrorHandler(logger, false),
		logger:     logger,
	}
}

// CreateEntityRequest is the body for POST /{type}s
type CreateEntityRequest struct {
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content"`
	URL     string   `json:"url,omitempty" validate:"omitempty,url"`
	Name    string   `json:"name,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateEntityRequest is the body for PATCH /{type}s/{id}. Absent fields are
// untouched. ExpectedUpdatedAt is the concurrency token from the last read;
// omitting it makes the save an explicit unconditional overwrite.
type UpdateEntityRequest struct {
	Title   *string   `json:"title,omitempty"`
	Content *string   `json:"content,omitempty"`
	URL     *string   `json:"url,omitempty"`
	Name    *string   `json:"name,omitempty"`
	Tags    *[]string `json:"tags,omitempty"`

	ExpectedUpdatedAt *string `json:"expected_updated_at,omitempty"`
}

// Create handles POST /{type}s
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	var req CreateEntityRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError(err.Error()))
		return
	}

	contentType := chi.URLParam(r, "type")
	cmd := commands.CreateEntityCommand{
		UserID:      user.UserID,
		ContentType: contentType,
		Title:       req.Title,
		Content:     req.Content,
		URL:         req.URL,
		Name:        req.Name,
		Tags:        req.Tags,
		Actor:       actorFromRequest(r, user),
	}

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	entity := result.(*entities.Entity)

	h.metrics.SavesTotal.WithLabelValues(contentType, "create").Inc()
	h.metrics.HistoryAppends.Inc()
	common.RespondJSON(w, http.StatusCreated, toEntityResponse(entity))
}

// Get handles GET /{type}s/{id}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.GetEntityQuery{
		UserID:      user.UserID,
		ContentType: chi.URLParam(r, "type"),
		EntityID:    chi.URLParam(r, "id"),
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toEntityResponse(result.(*entities.Entity)))
}

// List handles GET /{type}s
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	page := common.ExtractPageParams(r)
	result, err := h.queryBus.Ask(r.Context(), queries.ListEntitiesQuery{
		UserID:          user.UserID,
		ContentType:     chi.URLParam(r, "type"),
		Tag:             r.URL.Query().Get("tag"),
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
		IncludeDeleted:  r.URL.Query().Get("include_deleted") == "true",
		Limit:           page.Limit,
		Offset:          page.Offset,
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toEntityPage(result.(common.Page[*entities.Entity])))
}

// Update handles PATCH /{type}s/{id}. A stale expected_updated_at produces
// 409 with the live server state; nothing is written.
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	var req UpdateEntityRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	contentType := chi.URLParam(r, "type")
	cmd := commands.UpdateEntityCommand{
		UserID:        user.UserID,
		ContentType:   contentType,
		EntityID:      chi.URLParam(r, "id"),
		Title:         req.Title,
		Content:       req.Content,
		URL:           req.URL,
		Name:          req.Name,
		Tags:          req.Tags,
		ExpectedToken: req.ExpectedUpdatedAt,
		Actor:         actorFromRequest(r, user),
	}

	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		if errors.IsConflict(err) {
			h.metrics.ConflictsTotal.WithLabelValues(contentType).Inc()
		}
		h.errHandler.Handle(w, r, err)
		return
	}
	entity := result.(*entities.Entity)

	h.metrics.SavesTotal.WithLabelValues(contentType, "update").Inc()
	h.metrics.HistoryAppends.Inc()
	common.RespondJSON(w, http.StatusOK, toEntityResponse(entity))
}

// Restore handles POST /history/{type}/{id}/restore/{version}
func (h *EntityHandler) Restore(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("version must be a number"))
		return
	}

	contentType := chi.URLParam(r, "type")
	result, err := h.commandBus.Send(r.Context(), commands.RestoreEntityCommand{
		UserID:        user.UserID,
		ContentType:   contentType,
		EntityID:      chi.URLParam(r, "id"),
		TargetVersion: version,
		Actor:         actorFromRequest(r, user),
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}
	entity := result.(*entities.Entity)

	h.metrics.RestoresTotal.WithLabelValues(contentType).Inc()
	h.metrics.HistoryAppends.Inc()
	common.RespondJSON(w, http.StatusOK, toEntityResponse(entity))
}

// Lifecycle returns a handler for one audit action endpoint: DELETE
// /{type}s/{id} and the undelete/archive/unarchive POSTs.
func (h *EntityHandler) Lifecycle(action versioning.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := auth.GetUserFromContext(r.Context())
		if err != nil {
			h.errHandler.Handle(w, r, err)
			return
		}

		result, err := h.commandBus.Send(r.Context(), commands.ChangeLifecycleCommand{
			UserID:      user.UserID,
			ContentType: chi.URLParam(r, "type"),
			EntityID:    chi.URLParam(r, "id"),
			Action:      action,
			Actor:       actorFromRequest(r, user),
		})
		if err != nil {
			h.errHandler.Handle(w, r, err)
			return
		}
		entity := result.(*entities.Entity)

		h.metrics.HistoryAppends.Inc()
		common.RespondJSON(w, http.StatusOK, toEntityResponse(entity))
	}
}

// Staleness handles GET /{type}s/{id}/staleness?since=<token>
func (h *EntityHandler) Staleness(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.CheckStalenessQuery{
		UserID:      user.UserID,
		ContentType: chi.URLParam(r, "type"),
		EntityID:    chi.URLParam(r, "id"),
		LoadedToken: r.URL.Query().Get("since"),
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, result)
}

// actorFromRequest attributes a mutation to the calling client. The
// X-Client-Source header distinguishes surfaces sharing one account
// (web app, extension, CLI); absent, the save is recorded as "api".
func actorFromRequest(r *http.Request, user *auth.UserContext) commands.Actor {
	source := r.Header.Get("X-Client-Source")
	if source == "" {
		source = "api"
	}
	return commands.Actor{
		Source:      source,
		AuthType:    user.AuthType,
		TokenPrefix: user.TokenPrefix,
	}
}
