package handlers

import (
	"context"

	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/events"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/errors"
)

// ChangeLifecycleHandler runs audit actions: delete, undelete, archive and
// unarchive. These refresh the concurrency token but never the content
// version.
type ChangeLifecycleHandler struct {
	entityRepo ports.EntityRepository
	uow        ports.UnitOfWork
	publisher  ports.EventPublisher
	logger     *zap.Logger
}

// NewChangeLifecycleHandler creates a new lifecycle handler
func NewChangeLifecycleHandler(
	entityRepo ports.EntityRepository,
	uow ports.UnitOfWork,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *ChangeLifecycleHandler {
	return &ChangeLifecycleHandler{
		entityRepo: entityRepo,
		uow:        uow,
		publisher:  publisher,
		logger:     logger,
	}
}

// Handle executes the lifecycle transition and returns the updated entity.
// Audit actions carry no client token; losing a write race re-reads the
// entity and re-applies the transition.
func (h *ChangeLifecycleHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.ChangeLifecycleCommand)
	if !ok {
		return nil, errors.NewInternalError("unexpected command type")
	}

	var entity *entities.Entity
	for attempt := 0; ; attempt++ {
		var err error
		entity, err = h.attempt(ctx, cmd)
		if err == nil {
			break
		}
		if errors.IsConflict(err) && attempt+1 < maxOverwriteRetries {
			continue
		}
		return nil, err
	}

	h.publish(ctx, events.NewEntityLifecycleChanged(entity.Ref(), cmd.UserID, cmd.Action, entity.UpdatedAt))

	h.logger.Info("Entity lifecycle changed",
		zap.String("entityID", entity.ID),
		zap.String("action", string(cmd.Action)),
	)
	return entity, nil
}

// attempt runs one read-transition-commit cycle.
func (h *ChangeLifecycleHandler) attempt(ctx context.Context, cmd commands.ChangeLifecycleCommand) (*entities.Entity, error) {
	entity, err := h.entityRepo.FindByID(ctx, cmd.UserID, cmd.Ref())
	if err != nil {
		return nil, err
	}
	baseToken := entity.Token()

	switch cmd.Action {
	case versioning.ActionDelete:
		err = entity.SoftDelete()
	case versioning.ActionUndelete:
		err = entity.Undelete()
	case versioning.ActionArchive:
		err = entity.Archive()
	case versioning.ActionUnarchive:
		err = entity.Unarchive()
	default:
		err = errors.NewValidationError("unknown lifecycle action")
	}
	if err != nil {
		return nil, err
	}

	entry, err := versioning.NewAuditEntry(entity.Ref(), cmd.UserID, cmd.Action, metadataOf(entity), actorOf(cmd.Actor))
	if err != nil {
		return nil, err
	}

	write := ports.EntityWrite{Entity: entity, Entry: entry, BaseToken: baseToken}
	if err := h.uow.CommitEntityWrite(ctx, write); err != nil {
		return nil, err
	}
	return entity, nil
}

func (h *ChangeLifecycleHandler) publish(ctx context.Context, ev events.DomainEvent) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish event", zap.String("eventType", ev.GetEventType()), zap.Error(err))
	}
}
