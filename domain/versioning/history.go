package versioning

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

// Action identifies what a history entry records.
type Action string

const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionRestore   Action = "restore"
	ActionDelete    Action = "delete"
	ActionUndelete  Action = "undelete"
	ActionArchive   Action = "archive"
	ActionUnarchive Action = "unarchive"
)

// AllActions lists every recognized action, content actions first.
var AllActions = []Action{
	ActionCreate, ActionUpdate, ActionRestore,
	ActionDelete, ActionUndelete, ActionArchive, ActionUnarchive,
}

// IsContent reports whether the action produces a new content version.
func (a Action) IsContent() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionRestore
}

// IsAudit reports whether the action is a lifecycle transition that carries
// no content version.
func (a Action) IsAudit() bool {
	switch a {
	case ActionDelete, ActionUndelete, ActionArchive, ActionUnarchive:
		return true
	}
	return false
}

// IsValid reports whether the action is one of the recognized values.
func (a Action) IsValid() bool {
	return a.IsContent() || a.IsAudit()
}

// Metadata is the denormalized copy of display-relevant entity fields stored
// alongside each content version, so history lists and diffs render without
// re-fetching the entity.
type Metadata struct {
	Title    string   `json:"title"`
	URL      string   `json:"url,omitempty"`
	Name     string   `json:"name,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Archived bool     `json:"archived,omitempty"`
	Deleted  bool     `json:"deleted,omitempty"`
}

// Actor records who or what produced an entry, for the activity view.
type Actor struct {
	Source      string
	AuthType    string
	TokenPrefix string
}

// HistoryEntry is one immutable row of an entity's append-only log.
//
// Content actions (create, update, restore) carry a non-null Version and a
// full content snapshot. Audit actions (delete, undelete, archive, unarchive)
// carry a nil Version and nil Content; they record that something happened,
// not a new revision.
type HistoryEntry struct {
	ID          string
	ContentType valueobjects.ContentType
	ContentID   string
	UserID      string
	Action      Action

	Version *int
	Content *string

	MetadataSnapshot Metadata

	// ChangedFields is nil for audit actions and for rows written before the
	// field existed. It drives UI change indicators only; reconstruction
	// never depends on it.
	ChangedFields []string

	Source      string
	AuthType    string
	TokenPrefix string

	CreatedAt time.Time
}

// NewContentEntry builds an entry for a content action at the given version.
func NewContentEntry(ref valueobjects.EntityRef, userID string, action Action, version int, content string, meta Metadata, changedFields []string, actor Actor) (*HistoryEntry, error) {
	if !action.IsContent() {
		return nil, errors.NewValidationError(fmt.Sprintf("action %q is not a content action", action))
	}
	if version < 1 {
		return nil, errors.NewValidationError("content versions start at 1")
	}
	v := version
	c := content
	return &HistoryEntry{
		ID:               uuid.New().String(),
		ContentType:      ref.Type,
		ContentID:        ref.ID,
		UserID:           userID,
		Action:           action,
		Version:          &v,
		Content:          &c,
		MetadataSnapshot: meta,
		ChangedFields:    changedFields,
		Source:           actor.Source,
		AuthType:         actor.AuthType,
		TokenPrefix:      actor.TokenPrefix,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// NewAuditEntry builds an entry for a lifecycle action. It never carries a
// version or content.
func NewAuditEntry(ref valueobjects.EntityRef, userID string, action Action, meta Metadata, actor Actor) (*HistoryEntry, error) {
	if !action.IsAudit() {
		return nil, errors.NewValidationError(fmt.Sprintf("action %q is not an audit action", action))
	}
	return &HistoryEntry{
		ID:               uuid.New().String(),
		ContentType:      ref.Type,
		ContentID:        ref.ID,
		UserID:           userID,
		Action:           action,
		MetadataSnapshot: meta,
		Source:           actor.Source,
		AuthType:         actor.AuthType,
		TokenPrefix:      actor.TokenPrefix,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// IsContentEntry reports whether the entry is addressable by version.
func (h *HistoryEntry) IsContentEntry() bool {
	return h.Action.IsContent() && h.Version != nil
}

// RestoreEligible reports whether the entry can be the target of a restore.
// Eligibility is judged by action, never by version presence alone.
func (h *HistoryEntry) RestoreEligible() bool {
	return h.IsContentEntry()
}

// Normalize repairs rows that predate the audit/content split: audit actions
// written with a spurious version number are stripped of it on the read path
// so the target invariant holds everywhere downstream. It returns true when
// the entry needed repair.
func (h *HistoryEntry) Normalize() bool {
	if h.Action.IsAudit() && h.Version != nil {
		h.Version = nil
		h.Content = nil
		return true
	}
	return false
}

// Ref returns the entity reference the entry belongs to.
func (h *HistoryEntry) Ref() valueobjects.EntityRef {
	return valueobjects.EntityRef{Type: h.ContentType, ID: h.ContentID}
}

// LatestContentVersion returns the highest content version among entries,
// ignoring audit rows even when they are chronologically newest. Returns 0
// when no content entry exists.
func LatestContentVersion(entries []*HistoryEntry) int {
	latest := 0
	for _, e := range entries {
		if e.IsContentEntry() && *e.Version > latest {
			latest = *e.Version
		}
	}
	return latest
}

// ContentEntryAt finds the content entry recorded at exactly the given
// version, or a NotFound error if no content action produced that version.
func ContentEntryAt(entries []*HistoryEntry, version int) (*HistoryEntry, error) {
	for _, e := range entries {
		if e.IsContentEntry() && *e.Version == version {
			return e, nil
		}
	}
	return nil, errors.NewNotFoundError(fmt.Sprintf("no content version %d exists", version))
}

// PredecessorOf returns the content entry with the highest version strictly
// below the given version, or nil when the version is the first.
func PredecessorOf(entries []*HistoryEntry, version int) *HistoryEntry {
	var pred *HistoryEntry
	for _, e := range entries {
		if !e.IsContentEntry() || *e.Version >= version {
			continue
		}
		if pred == nil || *e.Version > *pred.Version {
			pred = e
		}
	}
	return pred
}

// ValidateChain checks the per-entity invariant: content versions, ordered
// ascending, start at 1 and have no gaps or duplicates. It returns
// human-readable problems instead of an error because a broken chain in
// legacy data degrades reads with warnings, it does not block them.
func ValidateChain(entries []*HistoryEntry) []string {
	versions := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IsContentEntry() {
			versions = append(versions, *e.Version)
		}
	}
	sort.Ints(versions)

	var problems []string
	expect := 1
	for _, v := range versions {
		switch {
		case v == expect:
			expect++
		case v < expect:
			problems = append(problems, fmt.Sprintf("duplicate content version %d", v))
		default:
			problems = append(problems, fmt.Sprintf("missing content versions %d through %d", expect, v-1))
			expect = v + 1
		}
	}
	return problems
}

// SortNewestFirst orders entries by creation time descending. The sort is
// stable, so entries written in the same instant keep their insertion order.
func SortNewestFirst(entries []*HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
