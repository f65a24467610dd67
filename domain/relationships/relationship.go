package relationships

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

// DefaultRelationType is used when the caller does not name the link kind.
const DefaultRelationType = "related"

// Display holds the denormalized fields of one endpoint, copied at link time
// and refreshed opportunistically, so relationship lists render without a
// join against the entity table.
type Display struct {
	Title    string
	URL      string
	Name     string
	Deleted  bool
	Archived bool
}

// Label is what listings show for this endpoint. Empty when the endpoint has
// no usable display data yet.
func (d Display) Label() string {
	if d.Title != "" {
		return d.Title
	}
	if d.Name != "" {
		return d.Name
	}
	return d.URL
}

// Relationship is the single canonical edge between two entities. The
// endpoints are always stored in canonical order, so linking A to B and B to
// A address the same row. Which side a caller named "source" is never
// recoverable from the row, and never matters.
type Relationship struct {
	ID     string
	UserID string

	Source valueobjects.EntityRef
	Target valueobjects.EntityRef

	SourceDisplay Display
	TargetDisplay Display

	RelationType string
	Description  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewRelationship creates a canonical edge between a and b. The endpoint
// displays follow their refs through the canonical reordering.
func NewRelationship(userID string, a, b valueobjects.EntityRef, aDisplay, bDisplay Display, relationType, description string) (*Relationship, error) {
	if a.IsZero() || b.IsZero() {
		return nil, errors.NewValidationError("both relationship endpoints are required")
	}
	if a.Equals(b) {
		return nil, errors.NewValidationError("an entity cannot be linked to itself")
	}
	if relationType == "" {
		relationType = DefaultRelationType
	}

	source, target := valueobjects.CanonicalPair(a, b)
	sourceDisplay, targetDisplay := aDisplay, bDisplay
	if !source.Equals(a) {
		sourceDisplay, targetDisplay = bDisplay, aDisplay
	}

	now := time.Now().UTC()
	return &Relationship{
		ID:            uuid.New().String(),
		UserID:        userID,
		Source:        source,
		Target:        target,
		SourceDisplay: sourceDisplay,
		TargetDisplay: targetDisplay,
		RelationType:  relationType,
		Description:   description,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// PairKey identifies the unordered endpoint pair. Two edges with the same
// PairKey are the same edge.
func (r *Relationship) PairKey() string {
	return r.Source.Key() + "|" + r.Target.Key()
}

// Touches reports whether the edge has ref as one of its endpoints.
func (r *Relationship) Touches(ref valueobjects.EntityRef) bool {
	return r.Source.Equals(ref) || r.Target.Equals(ref)
}

// OtherSide returns the endpoint opposite to self.
func (r *Relationship) OtherSide(self valueobjects.EntityRef) (valueobjects.EntityRef, Display, error) {
	switch {
	case r.Source.Equals(self):
		return r.Target, r.TargetDisplay, nil
	case r.Target.Equals(self):
		return r.Source, r.SourceDisplay, nil
	default:
		return valueobjects.EntityRef{}, Display{}, errors.NewValidationError("entity is not an endpoint of this relationship")
	}
}

// RefreshDisplay replaces the stored display fields for the endpoint
// matching ref. Server-derived data always wins over whatever was staged at
// link time.
func (r *Relationship) RefreshDisplay(ref valueobjects.EntityRef, d Display) bool {
	switch {
	case r.Source.Equals(ref):
		r.SourceDisplay = d
	case r.Target.Equals(ref):
		r.TargetDisplay = d
	default:
		return false
	}
	r.UpdatedAt = time.Now().UTC()
	return true
}

// LinkedItem is one relationship resolved to a caller's perspective: the
// other side's identity and display fields, regardless of canonical
// direction.
type LinkedItem struct {
	RelationshipID string
	Ref            valueobjects.EntityRef
	Title          string
	URL            string
	Name           string
	Deleted        bool
	Archived       bool
	RelationType   string
	Description    string
	CreatedAt      time.Time
}

// LinkedItemFor resolves the edge from self's point of view.
func LinkedItemFor(r *Relationship, self valueobjects.EntityRef) (LinkedItem, error) {
	other, display, err := r.OtherSide(self)
	if err != nil {
		return LinkedItem{}, err
	}
	return LinkedItem{
		RelationshipID: r.ID,
		Ref:            other,
		Title:          display.Title,
		URL:            display.URL,
		Name:           display.Name,
		Deleted:        display.Deleted,
		Archived:       display.Archived,
		RelationType:   r.RelationType,
		Description:    r.Description,
		CreatedAt:      r.CreatedAt,
	}, nil
}

// SortLinkedItems orders items the way listings display them: grouped by the
// linked entity's type (bookmarks, notes, prompts), then alphabetically by
// label with unlabeled items last.
func SortLinkedItems(items []LinkedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := items[i].Ref.Type.DisplayRank(), items[j].Ref.Type.DisplayRank()
		if ri != rj {
			return ri < rj
		}
		li := strings.ToLower(label(items[i]))
		lj := strings.ToLower(label(items[j]))
		if (li == "") != (lj == "") {
			return li != ""
		}
		return li < lj
	})
}

func label(item LinkedItem) string {
	if item.Title != "" {
		return item.Title
	}
	if item.Name != "" {
		return item.Name
	}
	return item.URL
}
