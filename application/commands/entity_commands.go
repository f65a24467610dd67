package commands

import (
	"github.com/google/uuid"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/errors"
)

// Actor carries request provenance into history entries.
type Actor struct {
	Source      string
	AuthType    string
	TokenPrefix string
}

// CreateEntityCommand creates a new entity at content version 1.
type CreateEntityCommand struct {
	UserID      string
	ContentType string
	Title       string
	Content     string
	URL         string
	Name        string
	Tags        []string
	Actor       Actor
}

// Validate implements bus.Command
func (c CreateEntityCommand) Validate() error {
	if c.UserID == "" {
		return errors.NewValidationError("user id is required")
	}
	if _, err := valueobjects.ParseContentType(c.ContentType); err != nil {
		return err
	}
	return nil
}

// UpdateEntityCommand applies a partial edit. Nil fields are untouched.
// ExpectedToken carries the concurrency token the caller loaded; nil means
// the caller explicitly chose an unconditional overwrite.
type UpdateEntityCommand struct {
	UserID      string
	ContentType string
	EntityID    string

	Title   *string
	Content *string
	URL     *string
	Name    *string
	Tags    *[]string

	ExpectedToken *string
	Actor         Actor
}

// Validate implements bus.Command
func (c UpdateEntityCommand) Validate() error {
	if err := validateTarget(c.UserID, c.ContentType, c.EntityID); err != nil {
		return err
	}
	if c.Title == nil && c.Content == nil && c.URL == nil && c.Name == nil && c.Tags == nil {
		return errors.NewValidationError("update contains no fields")
	}
	return nil
}

// Ref returns the target entity reference. Valid only after Validate.
func (c UpdateEntityCommand) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(c.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: c.EntityID}
}

// RestoreEntityCommand reverts an entity to a prior content version by
// appending a new forward version.
type RestoreEntityCommand struct {
	UserID        string
	ContentType   string
	EntityID      string
	TargetVersion int
	Actor         Actor
}

// Validate implements bus.Command
func (c RestoreEntityCommand) Validate() error {
	if err := validateTarget(c.UserID, c.ContentType, c.EntityID); err != nil {
		return err
	}
	if c.TargetVersion < 1 {
		return errors.NewValidationError("target version must be at least 1")
	}
	return nil
}

// Ref returns the target entity reference. Valid only after Validate.
func (c RestoreEntityCommand) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(c.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: c.EntityID}
}

// ChangeLifecycleCommand runs one audit action: delete, undelete, archive or
// unarchive. Audit actions never produce a content version.
type ChangeLifecycleCommand struct {
	UserID      string
	ContentType string
	EntityID    string
	Action      versioning.Action
	Actor       Actor
}

// Validate implements bus.Command
func (c ChangeLifecycleCommand) Validate() error {
	if err := validateTarget(c.UserID, c.ContentType, c.EntityID); err != nil {
		return err
	}
	if !c.Action.IsAudit() {
		return errors.NewValidationError("lifecycle actions are delete, undelete, archive and unarchive")
	}
	return nil
}

// Ref returns the target entity reference. Valid only after Validate.
func (c ChangeLifecycleCommand) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(c.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: c.EntityID}
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
