package queries

import (
	"stash-backend/domain/core/valueobjects"
)

// ListRelationshipsQuery returns every edge touching one entity, resolved to
// that entity's perspective and in display order.
type ListRelationshipsQuery struct {
	UserID      string
	ContentType string
	EntityID    string
}

// Validate implements bus.Query
func (q ListRelationshipsQuery) Validate() error {
	return validateTarget(q.UserID, q.ContentType, q.EntityID)
}

// Ref returns the entity whose edges are listed. Valid only after Validate.
func (q ListRelationshipsQuery) Ref() valueobjects.EntityRef {
	ct, _ := valueobjects.ParseContentType(q.ContentType)
	return valueobjects.EntityRef{Type: ct, ID: q.EntityID}
}
