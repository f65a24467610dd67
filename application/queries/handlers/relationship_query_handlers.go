package handlers

import (
	"context"

	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/application/queries"
	"stash-backend/application/queries/bus"
	"stash-backend/domain/relationships"
	"stash-backend/pkg/errors"
)

// ListRelationshipsHandler lists every edge touching an entity, resolved to
// that entity's perspective and in display order. The other side's display
// fields are re-read from the entity table so renames, deletes and archive
// flips show on the next list, not whatever was denormalized at link time.
type ListRelationshipsHandler struct {
	relRepo    ports.RelationshipRepository
	entityRepo ports.EntityRepository
	logger     *zap.Logger
}

// NewListRelationshipsHandler creates a new list relationships handler
func NewListRelationshipsHandler(relRepo ports.RelationshipRepository, entityRepo ports.EntityRepository, logger *zap.Logger) *ListRelationshipsHandler {
	return &ListRelationshipsHandler{relRepo: relRepo, entityRepo: entityRepo, logger: logger}
}

// Handle implements bus.QueryHandler
func (h *ListRelationshipsHandler) Handle(ctx context.Context, q bus.Query) (interface{}, error) {
	query, ok := q.(queries.ListRelationshipsQuery)
	if !ok {
		return nil, errors.NewInternalError("unexpected query type")
	}
	self := query.Ref()

	edges, err := h.relRepo.FindForEntity(ctx, query.UserID, self)
	if err != nil {
		return nil, err
	}

	items := make([]relationships.LinkedItem, 0, len(edges))
	for _, edge := range edges {
		other, _, err := edge.OtherSide(self)
		if err != nil {
			h.logger.Warn("Skipping edge that does not touch the queried entity",
				zap.String("relationshipID", edge.ID),
				zap.String("entity", self.Key()),
			)
			continue
		}

		entity, err := h.entityRepo.FindByID(ctx, query.UserID, other)
		switch {
		case err == nil:
			edge.RefreshDisplay(other, relationships.Display{
				Title:    entity.Title,
				URL:      entity.URL,
				Name:     entity.Name,
				Deleted:  entity.IsDeleted(),
				Archived: entity.IsArchived(),
			})
		case errors.IsNotFound(err):
			// Hard-removed endpoint. The stored display is the best we have.
		default:
			return nil, err
		}

		item, err := relationships.LinkedItemFor(edge, self)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	relationships.SortLinkedItems(items)
	return items, nil
}
