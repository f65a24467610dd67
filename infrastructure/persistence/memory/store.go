// Package memory provides in-process implementations of the persistence
// ports. They back unit and handler tests and local development without a
// DynamoDB endpoint, and they enforce the same semantics as the real store:
// atomic entity+history commits, conditional writes on the concurrency
// token, and one canonical edge per unordered pair.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"stash-backend/application/ports"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/events"
	"stash-backend/domain/relationships"
	"stash-backend/domain/versioning"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

// Store holds all in-memory state behind one mutex, which is what makes the
// commit path atomic. Port implementations are exposed as views over the
// shared state.
type Store struct {
	mu sync.RWMutex

	// entities keyed by userID then ref key
	entities map[string]map[string]*entities.Entity
	// history keyed by ref key, in append order
	history map[string][]*versioning.HistoryEntry
	// historyOwner maps ref key to owning user for the activity view
	historyOwner map[string]string
	// relationships keyed by userID then relationship id
	relationships map[string]map[string]*relationships.Relationship
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entities:      make(map[string]map[string]*entities.Entity),
		history:       make(map[string][]*versioning.HistoryEntry),
		historyOwner:  make(map[string]string),
		relationships: make(map[string]map[string]*relationships.Relationship),
	}
}

// Entities returns the store's EntityRepository view.
func (s *Store) Entities() ports.EntityRepository { return &entityRepo{s} }

// History returns the store's HistoryRepository view.
func (s *Store) History() ports.HistoryRepository { return &historyRepo{s} }

// Relationships returns the store's RelationshipRepository view.
func (s *Store) Relationships() ports.RelationshipRepository { return &relationshipRepo{s} }

// UnitOfWork returns the store's atomic write port.
func (s *Store) UnitOfWork() ports.UnitOfWork { return &unitOfWork{s} }

// --- EntityRepository ---

type entityRepo struct{ s *Store }

// FindByID returns the entity, including soft-deleted rows. Reads need
// deleted rows for staleness probes and history views.
func (r *entityRepo) FindByID(_ context.Context, userID string, ref valueobjects.EntityRef) (*entities.Entity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.findLocked(userID, ref)
}

func (s *Store) findLocked(userID string, ref valueobjects.EntityRef) (*entities.Entity, error) {
	byRef, ok := s.entities[userID]
	if !ok {
		return nil, errors.NewNotFoundError("entity not found")
	}
	e, ok := byRef[ref.Key()]
	if !ok {
		return nil, errors.NewNotFoundError("entity not found")
	}
	return cloneEntity(e), nil
}

// FindByUser lists entities matching the filter, newest first.
func (r *entityRepo) FindByUser(_ context.Context, userID string, filter ports.EntityFilter, page common.PageParams) ([]*entities.Entity, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*entities.Entity
	for _, e := range r.s.entities[userID] {
		if filter.Type != nil && e.Type != *filter.Type {
			continue
		}
		if !filter.IncludeDeleted && e.IsDeleted() {
			continue
		}
		if !filter.IncludeArchived && e.IsArchived() {
			continue
		}
		if filter.Tag != "" && !e.HasTag(filter.Tag) {
			continue
		}
		matched = append(matched, cloneEntity(e))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	return common.SlicePage(matched, page).Items, len(matched), nil
}

// --- HistoryRepository ---

type historyRepo struct{ s *Store }

// ListForEntity returns one page of the entity's log, newest first.
func (r *historyRepo) ListForEntity(_ context.Context, ref valueobjects.EntityRef, page common.PageParams) ([]*versioning.HistoryEntry, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	all := cloneEntries(r.s.history[ref.Key()])
	versioning.SortNewestFirst(all)
	return common.SlicePage(all, page).Items, len(all), nil
}

// ListAllForEntity returns the complete log in append order.
func (r *historyRepo) ListAllForEntity(_ context.Context, ref valueobjects.EntityRef) ([]*versioning.HistoryEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return cloneEntries(r.s.history[ref.Key()]), nil
}

// ListForUser returns one page of the user's activity, newest first.
func (r *historyRepo) ListForUser(_ context.Context, userID string, filter ports.HistoryFilter, page common.PageParams) ([]*versioning.HistoryEntry, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var matched []*versioning.HistoryEntry
	for key, entries := range r.s.history {
		if r.s.historyOwner[key] != userID {
			continue
		}
		for _, e := range entries {
			if matchesFilter(e, filter) {
				clone := *e
				matched = append(matched, &clone)
			}
		}
	}
	versioning.SortNewestFirst(matched)
	return common.SlicePage(matched, page).Items, len(matched), nil
}

func matchesFilter(e *versioning.HistoryEntry, filter ports.HistoryFilter) bool {
	if len(filter.ContentTypes) > 0 && !containsType(filter.ContentTypes, e.ContentType) {
		return false
	}
	if len(filter.Actions) > 0 && !containsAction(filter.Actions, e.Action) {
		return false
	}
	if len(filter.Sources) > 0 && !containsFold(filter.Sources, e.Source) {
		return false
	}
	if filter.StartDate != nil && e.CreatedAt.Before(*filter.StartDate) {
		return false
	}
	if filter.EndDate != nil && e.CreatedAt.After(*filter.EndDate) {
		return false
	}
	return true
}

// --- UnitOfWork ---

type unitOfWork struct{ s *Store }

// CommitEntityWrite applies the entity mutation and its history append under
// one lock so they are atomic. A stale expected token rejects the whole
// write and returns a conflict carrying the live server state.
func (u *unitOfWork) CommitEntityWrite(_ context.Context, write ports.EntityWrite) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	e := write.Entity
	refKey := e.Ref().Key()

	byRef, ok := u.s.entities[e.UserID]
	if !ok {
		byRef = make(map[string]*entities.Entity)
		u.s.entities[e.UserID] = byRef
	}

	live, exists := byRef[refKey]
	if write.IsNew {
		if exists {
			return errors.NewConflictError("entity already exists", serverState(live))
		}
	} else {
		if !exists {
			return errors.NewNotFoundError("entity not found")
		}
		if write.ExpectedToken != nil && live.Token() != *write.ExpectedToken {
			return errors.NewConflictError("entity was modified by another session", serverState(live))
		}
		// Even overwrites are conditioned on the row as read, so racing
		// writers cannot double-assign a content version.
		if write.ExpectedToken == nil && live.Token() != write.BaseToken {
			return errors.NewConflictError("entity was modified by another session", serverState(live))
		}
	}

	byRef[refKey] = cloneEntity(e)

	entryClone := *write.Entry
	u.s.history[refKey] = append(u.s.history[refKey], &entryClone)
	u.s.historyOwner[refKey] = e.UserID
	return nil
}

func serverState(live *entities.Entity) map[string]interface{} {
	return map[string]interface{}{
		"updated_at": live.Token(),
		"version":    live.Version,
		"title":      live.Title,
	}
}

// --- RelationshipRepository ---

type relationshipRepo struct{ s *Store }

// Save persists the edge unless one already exists for the same unordered
// pair, in which case the existing edge is returned untouched.
func (r *relationshipRepo) Save(_ context.Context, rel *relationships.Relationship) (*relationships.Relationship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	byID, ok := r.s.relationships[rel.UserID]
	if !ok {
		byID = make(map[string]*relationships.Relationship)
		r.s.relationships[rel.UserID] = byID
	}
	for _, existing := range byID {
		if existing.PairKey() == rel.PairKey() {
			clone := *existing
			return &clone, nil
		}
	}
	clone := *rel
	byID[rel.ID] = &clone
	result := clone
	return &result, nil
}

// FindByID returns the edge by id.
func (r *relationshipRepo) FindByID(_ context.Context, userID, relationshipID string) (*relationships.Relationship, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rel, ok := r.s.relationships[userID][relationshipID]
	if !ok {
		return nil, errors.NewNotFoundError("relationship not found")
	}
	clone := *rel
	return &clone, nil
}

// FindForEntity returns every edge touching ref.
func (r *relationshipRepo) FindForEntity(_ context.Context, userID string, ref valueobjects.EntityRef) ([]*relationships.Relationship, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*relationships.Relationship
	for _, rel := range r.s.relationships[userID] {
		if rel.Touches(ref) {
			clone := *rel
			out = append(out, &clone)
		}
	}
	return out, nil
}

// Delete removes the edge by id.
func (r *relationshipRepo) Delete(_ context.Context, userID, relationshipID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.relationships[userID][relationshipID]; !ok {
		return errors.NewNotFoundError("relationship not found")
	}
	delete(r.s.relationships[userID], relationshipID)
	return nil
}

// --- EventPublisher ---

// Recorder collects published events for assertions.
type Recorder struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

// NewRecorder creates an empty event recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Publish implements ports.EventPublisher
func (r *Recorder) Publish(_ context.Context, evs ...events.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []events.DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.DomainEvent(nil), r.events...)
}

// --- helpers ---

func cloneEntity(e *entities.Entity) *entities.Entity {
	clone := *e
	clone.Tags = append([]string(nil), e.Tags...)
	return &clone
}

func cloneEntries(entries []*versioning.HistoryEntry) []*versioning.HistoryEntry {
	out := make([]*versioning.HistoryEntry, len(entries))
	for i, e := range entries {
		clone := *e
		out[i] = &clone
	}
	return out
}

func containsType(types []valueobjects.ContentType, t valueobjects.ContentType) bool {
	for _, c := range types {
		if c == t {
			return true
		}
	}
	return false
}

func containsAction(actions []versioning.Action, a versioning.Action) bool {
	for _, c := range actions {
		if c == a {
			return true
		}
	}
	return false
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
