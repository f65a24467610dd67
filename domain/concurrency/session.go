package concurrency

import (
	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

// SessionState tracks where an open editing session stands relative to the
// server copy of its entity.
type SessionState string

const (
	// StateClean: the session's loaded token matches the server, as far as
	// the session knows.
	StateClean SessionState = "clean"
	// StateStale: the server row changed since load. With no local edits the
	// fix is a non-destructive reload; with local edits the decision is
	// deferred until the user tries to save.
	StateStale SessionState = "stale"
	// StateConflict: a save was rejected because the token was out of date.
	// The user must choose a resolution.
	StateConflict SessionState = "conflict"
	// StateDeleted: the entity disappeared server-side. Terminal: there is
	// nothing to merge against.
	StateDeleted SessionState = "deleted"
)

// EditSession models one client editing one entity. It never performs I/O;
// callers feed it observations (live tokens, save rejections) and it answers
// what state the session is in and which token a save should carry.
type EditSession struct {
	Ref    valueobjects.EntityRef
	UserID string

	state       SessionState
	loadedToken string
	serverToken string
	dirty       bool
}

// NewEditSession opens a session for an entity loaded at the given token.
func NewEditSession(ref valueobjects.EntityRef, userID, loadedToken string) *EditSession {
	return &EditSession{
		Ref:         ref,
		UserID:      userID,
		state:       StateClean,
		loadedToken: loadedToken,
		serverToken: loadedToken,
	}
}

// State returns the current session state.
func (s *EditSession) State() SessionState { return s.state }

// Dirty reports whether the session holds unsaved local edits.
func (s *EditSession) Dirty() bool { return s.dirty }

// LoadedToken returns the token the session's content is based on. Saves
// send this as expected_updated_at.
func (s *EditSession) LoadedToken() string { return s.loadedToken }

// ServerToken returns the most recently observed live token.
func (s *EditSession) ServerToken() string { return s.serverToken }

// IsTerminal reports whether no further edits can be saved in this session.
func (s *EditSession) IsTerminal() bool { return s.state == StateDeleted }

// MarkDirty records that the user changed something locally.
func (s *EditSession) MarkDirty() error {
	if s.IsTerminal() {
		return errors.NewGoneError("entity has been deleted")
	}
	s.dirty = true
	return nil
}

// ObserveServer feeds the session a freshly fetched live token, from a
// periodic poll or an on-focus re-check. A differing token marks the session
// stale; it never discards local edits on its own.
func (s *EditSession) ObserveServer(liveToken string) {
	if s.IsTerminal() || s.state == StateConflict {
		return
	}
	s.serverToken = liveToken
	if liveToken == s.loadedToken {
		if s.state == StateStale {
			s.state = StateClean
		}
		return
	}
	s.state = StateStale
}

// ObserveDeleted records that the server no longer has the entity. The
// session is terminal from here on.
func (s *EditSession) ObserveDeleted() {
	s.state = StateDeleted
}

// ObserveConflict records a save rejected with a token mismatch, carrying
// the live token from the conflict response.
func (s *EditSession) ObserveConflict(liveToken string) error {
	if s.IsTerminal() {
		return errors.NewGoneError("entity has been deleted")
	}
	s.serverToken = liveToken
	s.state = StateConflict
	return nil
}

// ResolveLoadServer discards local edits and adopts the live entity the
// caller has re-fetched at liveToken.
func (s *EditSession) ResolveLoadServer(liveToken string) error {
	if s.IsTerminal() {
		return errors.NewGoneError("entity has been deleted")
	}
	s.loadedToken = liveToken
	s.serverToken = liveToken
	s.dirty = false
	s.state = StateClean
	return nil
}

// ResolveForceSave records that the user chose to overwrite the server copy
// and the unconditional save succeeded, returning newToken.
func (s *EditSession) ResolveForceSave(newToken string) error {
	if s.IsTerminal() {
		return errors.NewGoneError("entity has been deleted")
	}
	s.loadedToken = newToken
	s.serverToken = newToken
	s.dirty = false
	s.state = StateClean
	return nil
}

// Dismiss closes the conflict dialog without writing anything. The session
// keeps its local edits and stays stale until the user resolves it for real.
func (s *EditSession) Dismiss() error {
	if s.state != StateConflict {
		return errors.NewValidationError("no conflict to dismiss")
	}
	s.state = StateStale
	return nil
}

// SaveSucceeded records a normal successful save, resynchronizing the
// session at the token the server returned.
func (s *EditSession) SaveSucceeded(newToken string) error {
	if s.IsTerminal() {
		return errors.NewGoneError("entity has been deleted")
	}
	s.loadedToken = newToken
	s.serverToken = newToken
	s.dirty = false
	s.state = StateClean
	return nil
}
