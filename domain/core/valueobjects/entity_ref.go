package valueobjects

import (
	"fmt"

	"github.com/google/uuid"
)

// EntityRef identifies one content entity by (type, id). It is the key
// used for relationship endpoints and display-cache lookups.
type EntityRef struct {
	Type ContentType `json:"type"`
	ID   string      `json:"id"`
}

// NewEntityRef validates and builds an EntityRef
func NewEntityRef(contentType, id string) (EntityRef, error) {
	t, err := ParseContentType(contentType)
	if err != nil {
		return EntityRef{}, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return EntityRef{}, fmt.Errorf("invalid entity id %q: %w", id, err)
	}
	return EntityRef{Type: t, ID: id}, nil
}

// Key returns the canonical "type:id" cache/map key for this ref
func (r EntityRef) Key() string {
	return string(r.Type) + ":" + r.ID
}

// Equals reports whether two refs identify the same entity
func (r EntityRef) Equals(other EntityRef) bool {
	return r.Type == other.Type && r.ID == other.ID
}

// IsZero reports whether the ref is unset
func (r EntityRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// Less defines the canonical ordering over refs: by type, then by id.
// Relationship rows always store their endpoints in this order so that
// linking A to B and B to A resolve to the same row.
func (r EntityRef) Less(other EntityRef) bool {
	if r.Type != other.Type {
		return r.Type < other.Type
	}
	return r.ID < other.ID
}

// CanonicalPair orders two refs canonically, returning (source, target).
func CanonicalPair(a, b EntityRef) (EntityRef, EntityRef) {
	if b.Less(a) {
		return b, a
	}
	return a, b
}
