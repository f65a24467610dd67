package handlers

import (
	"context"

	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/validators"
	"stash-backend/domain/events"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/errors"
)

// maxOverwriteRetries bounds the internal read-mutate-commit cycles a
// tokenless write gets when it loses a race against another writer.
const maxOverwriteRetries = 3

// UpdateEntityHandler handles entity update commands, including the
// concurrency token check on conditional saves.
type UpdateEntityHandler struct {
	entityRepo ports.EntityRepository
	uow        ports.UnitOfWork
	validator  *validators.EntityValidator
	publisher  ports.EventPublisher
	logger     *zap.Logger
}

// NewUpdateEntityHandler creates a new update entity handler
func NewUpdateEntityHandler(
	entityRepo ports.EntityRepository,
	uow ports.UnitOfWork,
	validator *validators.EntityValidator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *UpdateEntityHandler {
	return &UpdateEntityHandler{
		entityRepo: entityRepo,
		uow:        uow,
		validator:  validator,
		publisher:  publisher,
		logger:     logger,
	}
}

// Handle executes the update and returns the entity with its new version
// and concurrency token. A stale ExpectedToken yields a conflict error
// carrying the live server state; nothing is written in that case. An
// overwrite (no token) that loses a write race is re-read and re-applied
// on top of the winner instead of surfacing a conflict.
func (h *UpdateEntityHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.UpdateEntityCommand)
	if !ok {
		return nil, errors.NewInternalError("unexpected command type")
	}

	var entity *entities.Entity
	var changed []string
	for attempt := 0; ; attempt++ {
		var err error
		entity, changed, err = h.attempt(ctx, cmd)
		if err == nil {
			break
		}
		if cmd.ExpectedToken == nil && errors.IsConflict(err) && attempt+1 < maxOverwriteRetries {
			h.logger.Debug("Overwrite lost a write race, retrying",
				zap.String("entityID", cmd.EntityID),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, err
	}

	forced := cmd.ExpectedToken == nil
	h.publish(ctx, events.NewEntityUpdated(entity.Ref(), cmd.UserID, entity.Version, changed, forced, entity.UpdatedAt))

	h.logger.Info("Entity updated",
		zap.String("entityID", entity.ID),
		zap.Int("version", entity.Version),
		zap.Strings("changedFields", changed),
		zap.Bool("forced", forced),
	)
	return entity, nil
}

// attempt runs one read-mutate-commit cycle.
func (h *UpdateEntityHandler) attempt(ctx context.Context, cmd commands.UpdateEntityCommand) (*entities.Entity, []string, error) {
	entity, err := h.entityRepo.FindByID(ctx, cmd.UserID, cmd.Ref())
	if err != nil {
		return nil, nil, err
	}
	if entity.IsDeleted() {
		return nil, nil, errors.NewGoneError("entity has been deleted")
	}

	// Fast-path staleness check. The authoritative check is the conditional
	// write inside the unit of work; this only saves a doomed round trip.
	if cmd.ExpectedToken != nil && *cmd.ExpectedToken != entity.Token() {
		return nil, nil, conflictWith(entity)
	}
	baseToken := entity.Token()

	changed, err := entity.ApplyChange(entities.ContentChange{
		Title:   cmd.Title,
		Content: cmd.Content,
		URL:     cmd.URL,
		Name:    cmd.Name,
		Tags:    cmd.Tags,
	})
	if err != nil {
		return nil, nil, err
	}

	if err := h.validator.Validate(entity); err != nil {
		return nil, nil, err
	}

	entry, err := versioning.NewContentEntry(
		entity.Ref(), cmd.UserID, versioning.ActionUpdate, entity.Version,
		entity.Content, metadataOf(entity), changed, actorOf(cmd.Actor),
	)
	if err != nil {
		return nil, nil, err
	}

	write := ports.EntityWrite{Entity: entity, Entry: entry, ExpectedToken: cmd.ExpectedToken, BaseToken: baseToken}
	if err := h.uow.CommitEntityWrite(ctx, write); err != nil {
		return nil, nil, err
	}
	return entity, changed, nil
}

func (h *UpdateEntityHandler) publish(ctx context.Context, ev events.DomainEvent) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish event", zap.String("eventType", ev.GetEventType()), zap.Error(err))
	}
}

// conflictWith builds the structured conflict response from the live row.
func conflictWith(entity *entities.Entity) error {
	return errors.NewConflictError("entity was modified by another session", map[string]interface{}{
		"updated_at": entity.Token(),
		"version":    entity.Version,
		"title":      entity.Title,
	})
}
