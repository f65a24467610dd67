package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	"stash-backend/domain/events"
	"stash-backend/pkg/errors"
)

// UnlinkEntitiesHandler removes relationship edges by id.
type UnlinkEntitiesHandler struct {
	relRepo   ports.RelationshipRepository
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewUnlinkEntitiesHandler creates a new unlink entities handler
func NewUnlinkEntitiesHandler(
	relRepo ports.RelationshipRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *UnlinkEntitiesHandler {
	return &UnlinkEntitiesHandler{
		relRepo:   relRepo,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle removes the edge. The result is nil; there is nothing to return.
func (h *UnlinkEntitiesHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.UnlinkEntitiesCommand)
	if !ok {
		return nil, errors.NewInternalError("unexpected command type")
	}

	rel, err := h.relRepo.FindByID(ctx, cmd.UserID, cmd.RelationshipID)
	if err != nil {
		return nil, err
	}

	if err := h.relRepo.Delete(ctx, cmd.UserID, cmd.RelationshipID); err != nil {
		return nil, err
	}

	if err := h.publisher.Publish(ctx, events.NewEntitiesUnlinked(rel.ID, rel.Source, rel.Target, cmd.UserID, time.Now().UTC())); err != nil {
		h.logger.Warn("Failed to publish event", zap.Error(err))
	}

	h.logger.Info("Entities unlinked", zap.String("relationshipID", cmd.RelationshipID))
	return nil, nil
}
