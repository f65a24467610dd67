package handlers

import (
	"context"

	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	"stash-backend/application/services"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/events"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/errors"
)

// RestoreEntityHandler reverts an entity to a prior content version. The
// revert is forward-only: it appends a new version whose content equals the
// target's, never rewriting the log.
type RestoreEntityHandler struct {
	entityRepo    ports.EntityRepository
	uow           ports.UnitOfWork
	reconstructor *services.Reconstructor
	publisher     ports.EventPublisher
	logger        *zap.Logger
}

// NewRestoreEntityHandler creates a new restore entity handler
func NewRestoreEntityHandler(
	entityRepo ports.EntityRepository,
	uow ports.UnitOfWork,
	reconstructor *services.Reconstructor,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *RestoreEntityHandler {
	return &RestoreEntityHandler{
		entityRepo:    entityRepo,
		uow:           uow,
		reconstructor: reconstructor,
		publisher:     publisher,
		logger:        logger,
	}
}

// Handle executes the restore and returns the entity at its new version so
// callers can resynchronize and drop any conflicting local edits. A restore
// that loses a write race re-reads and re-applies on top of the winner.
func (h *RestoreEntityHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.RestoreEntityCommand)
	if !ok {
		return nil, errors.NewInternalError("unexpected command type")
	}
	ref := cmd.Ref()

	var entity *entities.Entity
	for attempt := 0; ; attempt++ {
		var err error
		entity, err = h.attempt(ctx, cmd, ref)
		if err == nil {
			break
		}
		if errors.IsConflict(err) && attempt+1 < maxOverwriteRetries {
			continue
		}
		return nil, err
	}

	h.publish(ctx, events.NewEntityRestored(ref, cmd.UserID, cmd.TargetVersion, entity.Version, entity.UpdatedAt))

	h.logger.Info("Entity restored",
		zap.String("entityID", entity.ID),
		zap.Int("targetVersion", cmd.TargetVersion),
		zap.Int("newVersion", entity.Version),
	)
	return entity, nil
}

// attempt runs one read-restore-commit cycle.
func (h *RestoreEntityHandler) attempt(ctx context.Context, cmd commands.RestoreEntityCommand, ref valueobjects.EntityRef) (*entities.Entity, error) {
	entity, err := h.entityRepo.FindByID(ctx, cmd.UserID, ref)
	if err != nil {
		return nil, err
	}
	baseToken := entity.Token()

	snap, err := h.reconstructor.ContentAt(ctx, ref, cmd.TargetVersion)
	if err != nil {
		return nil, err
	}

	changed := changedByRestore(entity.Content, entity.Title, entity.URL, entity.Name, snap)
	if err := entity.Restore(snap.Content, snap.Metadata.Title, snap.Metadata.URL, snap.Metadata.Name, snap.Metadata.Tags); err != nil {
		return nil, err
	}

	entry, err := versioning.NewContentEntry(
		ref, cmd.UserID, versioning.ActionRestore, entity.Version,
		entity.Content, metadataOf(entity), changed, actorOf(cmd.Actor),
	)
	if err != nil {
		return nil, err
	}

	write := ports.EntityWrite{Entity: entity, Entry: entry, BaseToken: baseToken}
	if err := h.uow.CommitEntityWrite(ctx, write); err != nil {
		return nil, err
	}
	return entity, nil
}

func (h *RestoreEntityHandler) publish(ctx context.Context, ev events.DomainEvent) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish event", zap.String("eventType", ev.GetEventType()), zap.Error(err))
	}
}

func changedByRestore(content, title, url, name string, snap *services.Snapshot) []string {
	var changed []string
	if title != snap.Metadata.Title {
		changed = append(changed, "title")
	}
	if content != snap.Content {
		changed = append(changed, "content")
	}
	if url != snap.Metadata.URL {
		changed = append(changed, "url")
	}
	if name != snap.Metadata.Name {
		changed = append(changed, "name")
	}
	return changed
}
