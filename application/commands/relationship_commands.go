package commands

import (
	"github.com/google/uuid"

	"stash-backend/pkg/errors"
)

// DisplayHint is the caller-supplied label for an endpoint whose server copy
// the client has not fetched yet. Server data always supersedes it.
type DisplayHint struct {
	Title string
	URL   string
	Name  string
}

// LinkEntitiesCommand creates the canonical edge between two entities. The
// operation is idempotent: linking an already linked pair returns the
// existing edge.
type LinkEntitiesCommand struct {
	UserID string

	SourceType string
	SourceID   string
	TargetType string
	TargetID   string

	RelationType string
	Description  string

	SourceHint *DisplayHint
	TargetHint *DisplayHint
}

// Validate implements bus.Command
func (c LinkEntitiesCommand) Validate() error {
	if err := validateTarget(c.UserID, c.SourceType, c.SourceID); err != nil {
		return err
	}
	if err := validateTarget(c.UserID, c.TargetType, c.TargetID); err != nil {
		return err
	}
	if c.SourceType == c.TargetType && c.SourceID == c.TargetID {
		return errors.NewValidationError("an entity cannot be linked to itself")
	}
	return nil
}

// UnlinkEntitiesCommand removes an edge by id.
type UnlinkEntitiesCommand struct {
	UserID         string
	RelationshipID string
}

// Validate implements bus.Command
func (c UnlinkEntitiesCommand) Validate() error {
	if c.UserID == "" {
		return errors.NewValidationError("user id is required")
	}
	if _, err := uuid.Parse(c.RelationshipID); err != nil {
		return errors.NewValidationError("relationship id must be a valid UUID")
	}
	return nil
}
