package entities

import (
	"time"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
	"stash-backend/pkg/utils"
)

// Entity is the aggregate root for every saved item: bookmarks, notes and
// prompt templates share one shape and differ only in which optional fields
// they populate (URL for bookmarks, Name for prompts).
type Entity struct {
	ID     string
	UserID string
	Type   valueobjects.ContentType

	Title   string
	Content string
	URL     string
	Name    string
	Tags    []string

	ArchivedAt *time.Time
	DeletedAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version counts content revisions. Audit actions (delete, archive and
	// their inverses) never advance it.
	Version int
}

// ContentChange describes a partial update. Nil fields are left untouched.
type ContentChange struct {
	Title   *string
	Content *string
	URL     *string
	Name    *string
	Tags    *[]string
}

// NewEntity creates a first-version entity owned by userID.
func NewEntity(id, userID string, contentType valueobjects.ContentType, title, content string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:        id,
		UserID:    userID,
		Type:      contentType,
		Title:     title,
		Content:   content,
		Tags:      []string{},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Token returns the opaque concurrency token clients echo back on writes.
// It is the UpdatedAt timestamp at nanosecond precision, so any persisted
// mutation invalidates all previously issued tokens.
func (e *Entity) Token() string {
	return e.UpdatedAt.UTC().Format(utils.TokenFormat)
}

// Ref returns the entity's typed reference.
func (e *Entity) Ref() valueobjects.EntityRef {
	return valueobjects.EntityRef{Type: e.Type, ID: e.ID}
}

// IsDeleted reports whether the entity is soft deleted.
func (e *Entity) IsDeleted() bool {
	return e.DeletedAt != nil
}

// IsArchived reports whether the entity is archived.
func (e *Entity) IsArchived() bool {
	return e.ArchivedAt != nil
}

// touch advances UpdatedAt, guaranteeing it moves strictly forward even when
// two mutations land inside the same clock tick.
func (e *Entity) touch() {
	now := time.Now().UTC()
	if !now.After(e.UpdatedAt) {
		now = e.UpdatedAt.Add(time.Nanosecond)
	}
	e.UpdatedAt = now
}

// ApplyChange applies a partial content update, advances the version and
// returns the names of the fields that actually changed. Applying a change
// that alters nothing still counts as a revision so the caller gets a fresh
// token and history row.
func (e *Entity) ApplyChange(change ContentChange) ([]string, error) {
	if e.IsDeleted() {
		return nil, errors.NewGoneError("entity has been deleted")
	}

	var changed []string
	if change.Title != nil && *change.Title != e.Title {
		e.Title = *change.Title
		changed = append(changed, "title")
	}
	if change.Content != nil && *change.Content != e.Content {
		e.Content = *change.Content
		changed = append(changed, "content")
	}
	if change.URL != nil && *change.URL != e.URL {
		e.URL = *change.URL
		changed = append(changed, "url")
	}
	if change.Name != nil && *change.Name != e.Name {
		e.Name = *change.Name
		changed = append(changed, "name")
	}
	if change.Tags != nil && !equalTags(*change.Tags, e.Tags) {
		e.Tags = NormalizeTags(*change.Tags)
		changed = append(changed, "tags")
	}

	e.Version++
	e.touch()
	return changed, nil
}

// Restore overwrites the content and metadata with a historical snapshot and
// records it as a new forward revision rather than rewinding the version.
func (e *Entity) Restore(content, title, url, name string, tags []string) error {
	if e.IsDeleted() {
		return errors.NewGoneError("entity has been deleted")
	}
	e.Content = content
	e.Title = title
	e.URL = url
	e.Name = name
	e.Tags = NormalizeTags(tags)
	e.Version++
	e.touch()
	return nil
}

// SoftDelete marks the entity deleted. The row and its history survive.
func (e *Entity) SoftDelete() error {
	if e.IsDeleted() {
		return errors.NewValidationError("entity is already deleted")
	}
	now := time.Now().UTC()
	e.DeletedAt = &now
	e.touch()
	return nil
}

// Undelete clears the deletion marker.
func (e *Entity) Undelete() error {
	if !e.IsDeleted() {
		return errors.NewValidationError("entity is not deleted")
	}
	e.DeletedAt = nil
	e.touch()
	return nil
}

// Archive hides the entity from default listings without deleting it.
func (e *Entity) Archive() error {
	if e.IsDeleted() {
		return errors.NewGoneError("entity has been deleted")
	}
	if e.IsArchived() {
		return errors.NewValidationError("entity is already archived")
	}
	now := time.Now().UTC()
	e.ArchivedAt = &now
	e.touch()
	return nil
}

// Unarchive returns the entity to default listings.
func (e *Entity) Unarchive() error {
	if e.IsDeleted() {
		return errors.NewGoneError("entity has been deleted")
	}
	if !e.IsArchived() {
		return errors.NewValidationError("entity is not archived")
	}
	e.ArchivedAt = nil
	e.touch()
	return nil
}

// DisplayLabel picks the best human-readable label for listings and
// relationship previews.
func (e *Entity) DisplayLabel() string {
	if e.Title != "" {
		return e.Title
	}
	if e.Name != "" {
		return e.Name
	}
	if e.URL != "" {
		return e.URL
	}
	return e.ID
}

// HasTag reports whether the entity carries the given tag.
func (e *Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeTags drops empty and duplicate tags, preserving first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
