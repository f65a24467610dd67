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
	"stash-backend/domain/relationships"
	"stash-backend/pkg/errors"
)

// LinkEntitiesHandler creates canonical relationship edges.
type LinkEntitiesHandler struct {
	entityRepo ports.EntityRepository
	relRepo    ports.RelationshipRepository
	publisher  ports.EventPublisher
	displays   *services.DisplayCache
	logger     *zap.Logger
}

// NewLinkEntitiesHandler creates a new link entities handler
func NewLinkEntitiesHandler(
	entityRepo ports.EntityRepository,
	relRepo ports.RelationshipRepository,
	publisher ports.EventPublisher,
	logger *zap.Logger,
) *LinkEntitiesHandler {
	return &LinkEntitiesHandler{
		entityRepo: entityRepo,
		relRepo:    relRepo,
		publisher:  publisher,
		displays:   services.NewDisplayCache(),
		logger:     logger,
	}
}

// Handle creates the edge and returns it. Linking a pair that is already
// linked returns the existing edge without writing anything.
func (h *LinkEntitiesHandler) Handle(ctx context.Context, c bus.Command) (interface{}, error) {
	cmd, ok := c.(commands.LinkEntitiesCommand)
	if !ok {
		return nil, errors.NewInternalError("unexpected command type")
	}

	sourceRef, err := refOf(cmd.SourceType, cmd.SourceID)
	if err != nil {
		return nil, err
	}
	targetRef, err := refOf(cmd.TargetType, cmd.TargetID)
	if err != nil {
		return nil, err
	}

	sourceDisplay, err := h.resolveDisplay(ctx, cmd.UserID, sourceRef, cmd.SourceHint)
	if err != nil {
		return nil, err
	}
	targetDisplay, err := h.resolveDisplay(ctx, cmd.UserID, targetRef, cmd.TargetHint)
	if err != nil {
		return nil, err
	}

	rel, err := relationships.NewRelationship(cmd.UserID, sourceRef, targetRef,
		sourceDisplay, targetDisplay, cmd.RelationType, cmd.Description)
	if err != nil {
		return nil, err
	}

	saved, err := h.relRepo.Save(ctx, rel)
	if err != nil {
		return nil, err
	}

	if saved.ID == rel.ID {
		h.publish(ctx, events.NewEntitiesLinked(saved.ID, saved.Source, saved.Target, cmd.UserID, saved.RelationType, saved.CreatedAt))
		h.logger.Info("Entities linked",
			zap.String("relationshipID", saved.ID),
			zap.String("source", saved.Source.Key()),
			zap.String("target", saved.Target.Key()),
		)
	}
	return saved, nil
}

// resolveDisplay builds endpoint display fields from the live entity.
// Server data always wins; the hint only fills in when the entity row has
// nothing better, which should not happen for persisted endpoints. Resolved
// displays go through the cache so pickers linking the same entity
// repeatedly reuse the confirmed labels.
func (h *LinkEntitiesHandler) resolveDisplay(ctx context.Context, userID string, ref valueobjects.EntityRef, hint *commands.DisplayHint) (relationships.Display, error) {
	if hint != nil {
		h.displays.Seed(ref, relationships.Display{Title: hint.Title, URL: hint.URL, Name: hint.Name})
	}

	entity, err := h.entityRepo.FindByID(ctx, userID, ref)
	if err != nil {
		return relationships.Display{}, err
	}
	d := displayOf(entity)
	if d.Title == "" && d.URL == "" && d.Name == "" {
		if staged, ok := h.displays.Get(ref); ok {
			d.Title, d.URL, d.Name = staged.Title, staged.URL, staged.Name
		}
	}

	h.displays.PutServer(ref, d)
	return d, nil
}

func (h *LinkEntitiesHandler) publish(ctx context.Context, ev events.DomainEvent) {
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.logger.Warn("Failed to publish event", zap.String("eventType", ev.GetEventType()), zap.Error(err))
	}
}

func refOf(contentType, id string) (valueobjects.EntityRef, error) {
	return valueobjects.NewEntityRef(contentType, id)
}

func displayOf(e *entities.Entity) relationships.Display {
	return relationships.Display{
		Title:    e.Title,
		URL:      e.URL,
		Name:     e.Name,
		Deleted:  e.IsDeleted(),
		Archived: e.IsArchived(),
	}
}
