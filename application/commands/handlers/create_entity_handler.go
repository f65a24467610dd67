package handlers

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/commands/bus"
	"stash-backend/application/ports"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/validators"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/events"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/errors"
)

// CreateEntityHandler handles entity creation commands
type CreateEntityHandler struct {
	uow       ports.UnitOfWork
	validator *validators.EntityValidator
	publisher ports.EventPublisher
	logger    *zap.Logger
}

// NewCreateEntityHandler creates a new create entity handler
func NewCreateEntityHandler(
	uow ports.UnitOfWork,
	validator *validators.EntityValidator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *CreateEntityHandler {
	return &CreateEntityHandler{
		uow:       uow,
		validator: validator,
		publisher: publisher,
		logger:    logger,
	}
}

// Handle executes the create entity command and returns the new entity.
func (h *CreateEntityHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.CreateEntityCommand)
	if !ok {
		return nil, errors.NewInternalError("unexpected command type")
	}

	contentType, err := valueobjects.ParseContentType(cmd.ContentType)
	if err != nil {
		return nil, err
	}

	entity := entities.NewEntity(uuid.New().String(), cmd.UserID, contentType, cmd.Title, cmd.Content)
	entity.URL = cmd.URL
	entity.Name = cmd.Name
	entity.Tags = entities.NormalizeTags(cmd.Tags)

	if err := h.validator.Validate(entity); err != nil {
		return nil, err
	}

	entry, err := versioning.NewContentEntry(
		entity.Ref(), cmd.UserID, versioning.ActionCreate, entity.Version,
		entity.Content, metadataOf(entity), nil, actorOf(cmd.Actor),
	)
	if err != nil {
		return nil, err
	}

	write := ports.EntityWrite{Entity: entity, Entry: entry, IsNew: true}
	if err := h.uow.CommitEntityWrite(ctx, write); err != nil {
		return nil, err
	}

	h.publish(ctx, events.NewEntityCreated(entity.Ref(), cmd.UserID, entity.Title, entity.UpdatedAt))

	h.logger.Info("Entity created",
		zap.String("entityID", entity.ID),
		zap.String("contentType", string(entity.Type)),
		zap.String("userID", cmd.UserID),
	)
	return entity, nil
}

func (h *CreateEntityHandler) publish(ctx context.Context, ev events.DomainEvent) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish event", zap.String("eventType", ev.GetEventType()), zap.Error(err))
	}
}

func metadataOf(e *entities.Entity) versioning.Metadata {
	return versioning.Metadata{
		Title:    e.Title,
		URL:      e.URL,
		Name:     e.Name,
		Tags:     e.Tags,
		Archived: e.IsArchived(),
		Deleted:  e.IsDeleted(),
	}
}

func actorOf(a commands.Actor) versioning.Actor {
	return versioning.Actor{Source: a.Source, AuthType: a.AuthType, TokenPrefix: a.TokenPrefix}
}
