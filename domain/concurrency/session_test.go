package concurrency

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

func newSession(t *testing.T) *EditSession {
	t.Helper()
	ref, err := valueobjects.NewEntityRef(string(valueobjects.ContentTypeNote), uuid.New().String())
	require.NoError(t, err)
	return NewEditSession(ref, "user-1", "t0")
}

func TestObserveServer_MarksStaleOnTokenChange(t *testing.T) {
	s := newSession(t)
	assert.Equal(t, StateClean, s.State())

	s.ObserveServer("t0")
	assert.Equal(t, StateClean, s.State())

	s.ObserveServer("t1")
	assert.Equal(t, StateStale, s.State())
	assert.Equal(t, "t1", s.ServerToken())
	// staleness never touches what the session is based on
	assert.Equal(t, "t0", s.LoadedToken())
}

func TestObserveServer_StaleWithLocalEditsDefersResolution(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.MarkDirty())
	s.ObserveServer("t1")

	assert.Equal(t, StateStale, s.State())
	assert.True(t, s.Dirty())
}

func TestConflictResolutions(t *testing.T) {
	t.Run("load server version", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.MarkDirty())
		require.NoError(t, s.ObserveConflict("t1"))
		assert.Equal(t, StateConflict, s.State())

		require.NoError(t, s.ResolveLoadServer("t1"))
		assert.Equal(t, StateClean, s.State())
		assert.False(t, s.Dirty())
		assert.Equal(t, "t1", s.LoadedToken())
	})

	t.Run("force save", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.MarkDirty())
		require.NoError(t, s.ObserveConflict("t1"))

		require.NoError(t, s.ResolveForceSave("t2"))
		assert.Equal(t, StateClean, s.State())
		assert.Equal(t, "t2", s.LoadedToken())
		assert.False(t, s.Dirty())
	})

	t.Run("dismiss keeps edits", func(t *testing.T) {
		s := newSession(t)
		require.NoError(t, s.MarkDirty())
		require.NoError(t, s.ObserveConflict("t1"))

		require.NoError(t, s.Dismiss())
		assert.Equal(t, StateStale, s.State())
		assert.True(t, s.Dirty())
		assert.Equal(t, "t0", s.LoadedToken())
	})

	t.Run("dismiss without conflict fails", func(t *testing.T) {
		s := newSession(t)
		assert.True(t, errors.IsValidation(s.Dismiss()))
	})
}

func TestObserveServer_IgnoredDuringConflict(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.ObserveConflict("t1"))

	s.ObserveServer("t2")
	assert.Equal(t, StateConflict, s.State())
	assert.Equal(t, "t1", s.ServerToken())
}

func TestDeletedIsTerminal(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.MarkDirty())
	s.ObserveDeleted()

	assert.Equal(t, StateDeleted, s.State())
	assert.True(t, s.IsTerminal())

	assert.True(t, errors.IsGone(s.MarkDirty()))
	assert.True(t, errors.IsGone(s.ObserveConflict("t1")))
	assert.True(t, errors.IsGone(s.ResolveLoadServer("t1")))
	assert.True(t, errors.IsGone(s.ResolveForceSave("t1")))
	assert.True(t, errors.IsGone(s.SaveSucceeded("t1")))

	s.ObserveServer("t9")
	assert.Equal(t, StateDeleted, s.State())
}

func TestSaveSucceeded_Resynchronizes(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.MarkDirty())
	s.ObserveServer("t0")

	require.NoError(t, s.SaveSucceeded("t1"))
	assert.Equal(t, StateClean, s.State())
	assert.Equal(t, "t1", s.LoadedToken())
	assert.False(t, s.Dirty())
}
