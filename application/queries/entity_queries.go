package queries

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

// GetEntityQuery fetches one entity with its concurrency token.
type GetEntityQuery struct {
	UserID      string
	ContentType string
	EntityID    string
}

// Validate implements bus.Query
func (q GetEntityQuery) Validate() error {
	return validateTarget(q.UserID, q.ContentType, q.EntityID)
}

// Ref returns the target entity reference. Valid only after Validate.
func (q GetEntityQuery) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(q.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: q.EntityID}
}

// ListEntitiesQuery pages through a user's entities of one type.
type ListEntitiesQuery struct {
	UserID          string
	ContentType     string
	Tag             string
	IncludeArchived bool
	IncludeDeleted  bool
	Limit           int
	Offset          int
}

// Validate implements bus.Query
func (q ListEntitiesQuery) Validate() error {
	if q.UserID == "" {
		return errors.NewValidationError("user id is required")
	}
	if _, err := valueobjects.ParseContentType(q.ContentType); err != nil {
		return err
	}
	return nil
}

// CacheKey implements bus.CacheKeyer
func (q ListEntitiesQuery) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s:%t:%t:%d:%d",
		q.UserID, q.ContentType, strings.ToLower(q.Tag),
		q.IncludeArchived, q.IncludeDeleted, q.Limit, q.Offset)
}

// CheckStalenessQuery compares a session's loaded token against the live
// row. Editors poll this on focus to learn they are stale before wasting a
// save.
type CheckStalenessQuery struct {
	UserID      string
	ContentType string
	EntityID    string
	LoadedToken string
}

// Validate implements bus.Query
func (q CheckStalenessQuery) Validate() error {
	if err := validateTarget(q.UserID, q.ContentType, q.EntityID); err != nil {
		return err
	}
	if q.LoadedToken == "" {
		return errors.NewValidationError("loaded token is required")
	}
	return nil
}

// Ref returns the target entity reference. Valid only after Validate.
func (q CheckStalenessQuery) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(q.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: q.EntityID}
}

// StalenessResult is the probe's answer. Deleted is terminal: the editor
// shows an "entity deleted" state instead of a conflict dialog.
type StalenessResult struct {
	Stale     bool   `json:"stale"`
	Deleted   bool   `json:"deleted"`
	LiveToken string `json:"updated_at,omitempty"`
	Version   int    `json:"version,omitempty"`
}

func validateTarget(userID, contentType, entityID string) error {
	if userID == "" {
		return errors.NewValidationError("user id is required")
	}
	if _, err := valueobjects.ParseContentType(contentType); err != nil {
		return err
	}
	if _, err := uuid.Parse(entityID); err != nil {
		return errors.NewValidationError("entity id must be a valid UUID")
	}
	return nil
}
