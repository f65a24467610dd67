package events

import (
	"time"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetUserID() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetUserID() string       { return e.UserID }

// Entity Events

// EntityCreated is raised when a new entity is created at version 1
type EntityCreated struct {
	BaseEvent
	Ref   valueobjects.EntityRef `json:"ref"`
	Title string                 `json:"title"`
}

// NewEntityCreated creates an EntityCreated event
func NewEntityCreated(ref valueobjects.EntityRef, userID, title string, timestamp time.Time) EntityCreated {
	return EntityCreated{
		BaseEvent: BaseEvent{
			AggregateID: ref.Key(),
			EventType:   "entity.created",
			UserID:      userID,
			Timestamp:   timestamp,
		},
		Ref:   ref,
		Title: title,
	}
}

// EntityUpdated is raised when an entity gains a new content version
type EntityUpdated struct {
	BaseEvent
	Ref           valueobjects.EntityRef `json:"ref"`
	Version       int                    `json:"version"`
	ChangedFields []string               `json:"changed_fields,omitempty"`
	Forced        bool                   `json:"forced,omitempty"`
}

// NewEntityUpdated creates an EntityUpdated event. Forced marks writes that
// deliberately skipped the concurrency check.
func NewEntityUpdated(ref valueobjects.EntityRef, userID string, version int, changedFields []string, forced bool, timestamp time.Time) EntityUpdated {
	return EntityUpdated{
		BaseEvent: BaseEvent{
			AggregateID: ref.Key(),
			EventType:   "entity.updated",
			UserID:      userID,
			Timestamp:   timestamp,
		},
		Ref:           ref,
		Version:       version,
		ChangedFields: changedFields,
		Forced:        forced,
	}
}

// EntityRestored is raised when an entity is reverted to a prior version
type EntityRestored struct {
	BaseEvent
	Ref           valueobjects.EntityRef `json:"ref"`
	TargetVersion int                    `json:"target_version"`
	NewVersion    int                    `json:"new_version"`
}

// NewEntityRestored creates an EntityRestored event
func NewEntityRestored(ref valueobjects.EntityRef, userID string, targetVersion, newVersion int, timestamp time.Time) EntityRestored {
	return EntityRestored{
		BaseEvent: BaseEvent{
			AggregateID: ref.Key(),
			EventType:   "entity.restored",
			UserID:      userID,
			Timestamp:   timestamp,
		},
		Ref:           ref,
		TargetVersion: targetVersion,
		NewVersion:    newVersion,
	}
}

// EntityLifecycleChanged is raised for audit actions: delete, undelete,
// archive and unarchive
type EntityLifecycleChanged struct {
	BaseEvent
	Ref    valueobjects.EntityRef `json:"ref"`
	Action versioning.Action      `json:"action"`
}

// NewEntityLifecycleChanged creates an EntityLifecycleChanged event
func NewEntityLifecycleChanged(ref valueobjects.EntityRef, userID string, action versioning.Action, timestamp time.Time) EntityLifecycleChanged {
	return EntityLifecycleChanged{
		BaseEvent: BaseEvent{
			AggregateID: ref.Key(),
			EventType:   "entity." + string(action),
			UserID:      userID,
			Timestamp:   timestamp,
		},
		Ref:    ref,
		Action: action,
	}
}

// Relationship Events

// EntitiesLinked is raised when a relationship edge is created
type EntitiesLinked struct {
	BaseEvent
	RelationshipID string                 `json:"relationship_id"`
	Source         valueobjects.EntityRef `json:"source"`
	Target         valueobjects.EntityRef `json:"target"`
	RelationType   string                 `json:"relation_type"`
}

// NewEntitiesLinked creates an EntitiesLinked event
func NewEntitiesLinked(relationshipID string, source, target valueobjects.EntityRef, userID, relationType string, timestamp time.Time) EntitiesLinked {
	return EntitiesLinked{
		BaseEvent: BaseEvent{
			AggregateID: relationshipID,
			EventType:   "entities.linked",
			UserID:      userID,
			Timestamp:   timestamp,
		},
		RelationshipID: relationshipID,
		Source:         source,
		Target:         target,
		RelationType:   relationType,
	}
}

// EntitiesUnlinked is raised when a relationship edge is removed
type EntitiesUnlinked struct {
	BaseEvent
	RelationshipID string                 `json:"relationship_id"`
	Source         valueobjects.EntityRef `json:"source"`
	Target         valueobjects.EntityRef `json:"target"`
}

// NewEntitiesUnlinked creates an EntitiesUnlinked event
func NewEntitiesUnlinked(relationshipID string, source, target valueobjects.EntityRef, userID string, timestamp time.Time) EntitiesUnlinked {
	return EntitiesUnlinked{
		BaseEvent: BaseEvent{
			AggregateID: relationshipID,
			EventType:   "entities.unlinked",
			UserID:      userID,
			Timestamp:   timestamp,
		},
		RelationshipID: relationshipID,
		Source:         source,
		Target:         target,
	}
}
