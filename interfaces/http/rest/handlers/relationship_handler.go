package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stash-backend/application/commands"
	commandbus "stash-backend/application/commands/bus"
	"stash-backend/application/queries"
	querybus "stash-backend/application/queries/bus"
	"stash-backend/domain/relationships"
	"stash-backend/pkg/auth"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
	"stash-backend/pkg/utils"
)

// RelationshipHandler serves the cross-entity link endpoints.
type RelationshipHandler struct {
	commandBus *commandbus.CommandBus
	queryBus   *querybus.QueryBus
	errHandler *errors.ErrorHandler
	logger     *zap.Logger
}

// NewRelationshipHandler creates a new relationship handler
func NewRelationshipHandler(
	commandBus *commandbus.CommandBus,
	queryBus *querybus.QueryBus,
	logger *zap.Logger,
) *RelationshipHandler {
	return &RelationshipHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errHandler: errors.NewErrorHandler(logger, false),
		logger:     logger,
	}
}

// LinkRequest is the body for POST /relationships.
type LinkRequest struct {
	SourceType string `json:"source_type" validate:"required"`
	SourceID   string `json:"source_id" validate:"required,uuid"`
	TargetType string `json:"target_type" validate:"required"`
	TargetID   string `json:"target_id" validate:"required,uuid"`

	RelationType string `json:"relation_type,omitempty"`
	Description  string `json:"description,omitempty"`

	SourceHint *DisplayHintRequest `json:"source_hint,omitempty"`
	TargetHint *DisplayHintRequest `json:"target_hint,omitempty"`
}

// DisplayHintRequest carries client-known endpoint labels for edges created
// before the client has fetched the other side.
type DisplayHintRequest struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Name  string `json:"name,omitempty"`
}

// List handles GET /relationships?entity_type=&entity_id=
func (h *RelationshipHandler) List(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	result, err := h.queryBus.Ask(r.Context(), queries.ListRelationshipsQuery{
		UserID:      user.UserID,
		ContentType: r.URL.Query().Get("entity_type"),
		EntityID:    r.URL.Query().Get("entity_id"),
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, toLinkedItemResponses(result.([]relationships.LinkedItem)))
}

// Link handles POST /relationships. Linking an already linked pair is
// idempotent and returns the existing edge.
func (h *RelationshipHandler) Link(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	var req LinkRequest
	if err := common.ParseJSONBody(w, r, &req, maxBodyBytes); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.errHandler.Handle(w, r, errors.NewValidationError(err.Error()))
		return
	}

	result, err := h.commandBus.Send(r.Context(), commands.LinkEntitiesCommand{
		UserID:       user.UserID,
		SourceType:   req.SourceType,
		SourceID:     req.SourceID,
		TargetType:   req.TargetType,
		TargetID:     req.TargetID,
		RelationType: req.RelationType,
		Description:  req.Description,
		SourceHint:   req.SourceHint.toCommand(),
		TargetHint:   req.TargetHint.toCommand(),
	})
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, toRelationshipResponse(result.(*relationships.Relationship)))
}

// Unlink handles DELETE /relationships/{id}
func (h *RelationshipHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	if _, err := h.commandBus.Send(r.Context(), commands.UnlinkEntitiesCommand{
		UserID:         user.UserID,
		RelationshipID: chi.URLParam(r, "id"),
	}); err != nil {
		h.errHandler.Handle(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (d *DisplayHintRequest) toCommand() *commands.DisplayHint {
	if d == nil {
		return nil
	}
	return &commands.DisplayHint{Title: d.Title, URL: d.URL, Name: d.Name}
}
