package ports

import (
	"context"
	"time"

	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/events"
	"stash-backend/domain/relationships"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/common"
)

// EntityFilter narrows entity listings.
type EntityFilter struct {
	Type            *valueobjects.ContentType
	Tag             string
	IncludeArchived bool
	IncludeDeleted  bool
}

// HistoryFilter narrows the cross-entity activity view. Slice filters are
// OR-ed within a field and AND-ed across fields.
type HistoryFilter struct {
	ContentTypes []valueobjects.ContentType
	Actions      []versioning.Action
	Sources      []string
	StartDate    *time.Time
	EndDate      *time.Time
}

// EntityRepository reads entity rows. All mutations go through UnitOfWork so
// they stay atomic with their history append.
type EntityRepository interface {
	FindByID(ctx context.Context, userID string, ref valueobjects.EntityRef) (*entities.Entity, error)
	FindByUser(ctx context.Context, userID string, filter EntityFilter, page common.PageParams) ([]*entities.Entity, int, error)
}

// HistoryRepository reads the append-only log. Appends happen only inside
// UnitOfWork commits.
type HistoryRepository interface {
	// ListForEntity returns one page of an entity's log, newest first.
	ListForEntity(ctx context.Context, ref valueobjects.EntityRef, page common.PageParams) ([]*versioning.HistoryEntry, int, error)
	// ListAllForEntity returns the entity's complete log for reconstruction.
	ListAllForEntity(ctx context.Context, ref valueobjects.EntityRef) ([]*versioning.HistoryEntry, error)
	// ListForUser returns one page of the caller's activity across all
	// entities, newest first.
	ListForUser(ctx context.Context, userID string, filter HistoryFilter, page common.PageParams) ([]*versioning.HistoryEntry, int, error)
}

// RelationshipRepository stores canonical edges.
type RelationshipRepository interface {
	// Save persists an edge. When an edge for the same unordered pair
	// already exists, Save returns the existing edge and writes nothing.
	Save(ctx context.Context, rel *relationships.Relationship) (*relationships.Relationship, error)
	FindByID(ctx context.Context, userID, relationshipID string) (*relationships.Relationship, error)
	FindForEntity(ctx context.Context, userID string, ref valueobjects.EntityRef) ([]*relationships.Relationship, error)
	Delete(ctx context.Context, userID, relationshipID string) error
}

// EntityWrite is one atomic mutation: the entity row and the history entry
// describing it commit together or not at all.
type EntityWrite struct {
	Entity *entities.Entity
	Entry  *versioning.HistoryEntry

	// ExpectedToken is the concurrency token the caller's view is based on.
	// Nil means the caller asked for an overwrite. For creates it is
	// ignored; the write instead requires that no row exists yet.
	ExpectedToken *string

	// BaseToken is the row's token as read just before the mutation was
	// applied. Every non-create write is conditioned on it, including
	// overwrites, so two racing writers can never assign the same content
	// version. Handlers retry the read-mutate-commit cycle when an
	// overwrite loses this race; a stale ExpectedToken is never retried.
	BaseToken string

	IsNew bool
}

// UnitOfWork commits entity mutations atomically with their history append.
// A token mismatch returns a conflict error carrying the live server state;
// the write is not applied, not even partially.
type UnitOfWork interface {
	CommitEntityWrite(ctx context.Context, write EntityWrite) error
}

// EventPublisher delivers domain events after a successful commit. Delivery
// is best effort; publish failures are logged, never rolled back into the
// write path.
type EventPublisher interface {
	Publish(ctx context.Context, events ...events.DomainEvent) error
}
