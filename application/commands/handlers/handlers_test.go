package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stash-backend/application/commands"
	"stash-backend/application/ports"
	"stash-backend/application/services"
	"stash-backend/domain/config"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/validators"
	"stash-backend/domain/relationships"
	"stash-backend/domain/versioning"
	"stash-backend/infrastructure/persistence/memory"
	"stash-backend/pkg/errors"
)

type fixture struct {
	store     *memory.Store
	recorder  *memory.Recorder
	create    *CreateEntityHandler
	update    *UpdateEntityHandler
	restore   *RestoreEntityHandler
	lifecycle *ChangeLifecycleHandler
	link      *LinkEntitiesHandler
	unlink    *UnlinkEntitiesHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	recorder := memory.NewRecorder()
	logger := zap.NewNop()
	validator := validators.NewEntityValidator(config.DefaultDomainConfig())
	reconstructor := services.NewReconstructor(store.Entities(), store.History(), logger)

	return &fixture{
		store:     store,
		recorder:  recorder,
		create:    NewCreateEntityHandler(store.UnitOfWork(), validator, recorder, logger),
		update:    NewUpdateEntityHandler(store.Entities(), store.UnitOfWork(), validator, recorder, logger),
		restore:   NewRestoreEntityHandler(store.Entities(), store.UnitOfWork(), reconstructor, recorder, logger),
		lifecycle: NewChangeLifecycleHandler(store.Entities(), store.UnitOfWork(), recorder, logger),
		link:      NewLinkEntitiesHandler(store.Entities(), store.Relationships(), recorder, logger),
		unlink:    NewUnlinkEntitiesHandler(store.Relationships(), recorder, logger),
	}
}

func (f *fixture) createNote(t *testing.T, userID, title, content string) *entities.Entity {
	t.Helper()
	result, err := f.create.Handle(context.Background(), commands.CreateEntityCommand{
		UserID:      userID,
		ContentType: "note",
		Title:       title,
		Content:     content,
		Actor:       commands.Actor{Source: "api", AuthType: "jwt"},
	})
	require.NoError(t, err)
	return result.(*entities.Entity)
}

func (f *fixture) updateContent(t *testing.T, e *entities.Entity, content string, token *string) (*entities.Entity, error) {
	t.Helper()
	result, err := f.update.Handle(context.Background(), commands.UpdateEntityCommand{
		UserID:        e.UserID,
		ContentType:   string(e.Type),
		EntityID:      e.ID,
		Content:       &content,
		ExpectedToken: token,
	})
	if err != nil {
		return nil, err
	}
	return result.(*entities.Entity), nil
}

func strPtr(s string) *string { return &s }

func (f *fixture) entityLog(t *testing.T, e *entities.Entity) []*versioning.HistoryEntry {
	t.Helper()
	entries, err := f.store.History().ListAllForEntity(context.Background(), e.Ref())
	require.NoError(t, err)
	return entries
}

func TestCreate_StartsAtVersionOneWithHistory(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "hello")

	assert.Equal(t, 1, e.Version)
	assert.NotEmpty(t, e.Token())

	log := f.entityLog(t, e)
	require.Len(t, log, 1)
	assert.Equal(t, versioning.ActionCreate, log[0].Action)
	require.NotNil(t, log[0].Version)
	assert.Equal(t, 1, *log[0].Version)
	assert.Equal(t, "hello", *log[0].Content)
}

func TestUpdate_WithCurrentTokenApplies(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")
	token := e.Token()

	updated, err := f.updateContent(t, e, "v2", &token)
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.NotEqual(t, token, updated.Token())
	assert.Len(t, f.entityLog(t, e), 2)
}

func TestUpdate_WithStaleTokenConflictsAndWritesNothing(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")
	staleToken := e.Token()

	// another session wins the race
	current, err := f.updateContent(t, e, "other session", &staleToken)
	require.NoError(t, err)

	_, err = f.updateContent(t, e, "my edit", &staleToken)
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	state, ok := errors.ServerState(err)
	require.True(t, ok)
	assert.Equal(t, current.Token(), state["updated_at"])

	live, ferr := f.store.Entities().FindByID(context.Background(), "user-1", e.Ref())
	require.NoError(t, ferr)
	assert.Equal(t, "other session", live.Content)
	assert.Equal(t, 2, live.Version)
	assert.Len(t, f.entityLog(t, e), 2)
}

func TestUpdate_WithoutTokenAlwaysApplies(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")
	token := e.Token()

	_, err := f.updateContent(t, e, "other session", &token)
	require.NoError(t, err)

	// explicit overwrite after a conflict: no token at all
	forced, err := f.updateContent(t, e, "my version", nil)
	require.NoError(t, err)

	assert.Equal(t, "my version", forced.Content)
	assert.Equal(t, 3, forced.Version)

	log := f.entityLog(t, e)
	require.Len(t, log, 3)
	assert.Equal(t, versioning.ActionUpdate, log[2].Action)
}

// racingUOW rejects the first n commits the way a lost conditional write
// does, then delegates.
type racingUOW struct {
	inner    ports.UnitOfWork
	failures int
	commits  int
}

func (u *racingUOW) CommitEntityWrite(ctx context.Context, write ports.EntityWrite) error {
	u.commits++
	if u.failures > 0 {
		u.failures--
		return errors.NewConflictError("entity was modified by another session", nil)
	}
	return u.inner.CommitEntityWrite(ctx, write)
}

func TestUpdate_WithoutTokenRetriesALostWriteRace(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")

	uow := &racingUOW{inner: f.store.UnitOfWork(), failures: 1}
	update := NewUpdateEntityHandler(f.store.Entities(), uow, validators.NewEntityValidator(config.DefaultDomainConfig()), f.recorder, zap.NewNop())

	result, err := update.Handle(context.Background(), commands.UpdateEntityCommand{
		UserID:      "user-1",
		ContentType: "note",
		EntityID:    e.ID,
		Content:     strPtr("overwrite"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.(*entities.Entity).Version)
	assert.Equal(t, 2, uow.commits, "the losing attempt must be retried exactly once")
}

func TestUpdate_WithTokenNeverRetriesAConflict(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")
	token := e.Token()

	uow := &racingUOW{inner: f.store.UnitOfWork(), failures: 1}
	update := NewUpdateEntityHandler(f.store.Entities(), uow, validators.NewEntityValidator(config.DefaultDomainConfig()), f.recorder, zap.NewNop())

	_, err := update.Handle(context.Background(), commands.UpdateEntityCommand{
		UserID:        "user-1",
		ContentType:   "note",
		EntityID:      e.ID,
		Content:       strPtr("stale tab"),
		ExpectedToken: &token,
	})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 1, uow.commits, "a stale client token is the caller's conflict to resolve")
}

func TestRestore_IsForwardOnlyAndMatchesTarget(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1 content")
	_, err := f.updateContent(t, e, "v2 content", nil)
	require.NoError(t, err)
	_, err = f.updateContent(t, e, "v3 content", nil)
	require.NoError(t, err)

	before := f.entityLog(t, e)
	require.Len(t, before, 3)

	result, err := f.restore.Handle(context.Background(), commands.RestoreEntityCommand{
		UserID:        "user-1",
		ContentType:   "note",
		EntityID:      e.ID,
		TargetVersion: 1,
	})
	require.NoError(t, err)
	restored := result.(*entities.Entity)

	assert.Equal(t, 4, restored.Version)
	assert.Equal(t, "v1 content", restored.Content)

	after := f.entityLog(t, e)
	require.Len(t, after, 4)
	// existing rows are untouched
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, *before[i].Version, *after[i].Version)
	}
	newest := after[3]
	assert.Equal(t, versioning.ActionRestore, newest.Action)
	assert.Equal(t, 4, *newest.Version)
	assert.Equal(t, "v1 content", *newest.Content)
}

func TestRestore_ToAbsentVersionIsNotFound(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")

	_, err := f.restore.Handle(context.Background(), commands.RestoreEntityCommand{
		UserID:        "user-1",
		ContentType:   "note",
		EntityID:      e.ID,
		TargetVersion: 7,
	})
	assert.True(t, errors.IsNotFound(err))
}

func TestLifecycle_AuditActionsSkipVersionArithmetic(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")
	_, err := f.updateContent(t, e, "v2", nil)
	require.NoError(t, err)

	result, err := f.lifecycle.Handle(context.Background(), commands.ChangeLifecycleCommand{
		UserID:      "user-1",
		ContentType: "note",
		EntityID:    e.ID,
		Action:      versioning.ActionArchive,
	})
	require.NoError(t, err)
	archived := result.(*entities.Entity)

	assert.True(t, archived.IsArchived())
	assert.Equal(t, 2, archived.Version)

	log := f.entityLog(t, e)
	require.Len(t, log, 3)
	assert.Equal(t, versioning.ActionArchive, log[2].Action)
	assert.Nil(t, log[2].Version)
	assert.Equal(t, 2, versioning.LatestContentVersion(log))
}

func TestDelete_ThenEditIsGone(t *testing.T) {
	f := newFixture(t)
	e := f.createNote(t, "user-1", "my note", "v1")

	_, err := f.lifecycle.Handle(context.Background(), commands.ChangeLifecycleCommand{
		UserID:      "user-1",
		ContentType: "note",
		EntityID:    e.ID,
		Action:      versioning.ActionDelete,
	})
	require.NoError(t, err)

	_, err = f.updateContent(t, e, "too late", nil)
	assert.True(t, errors.IsGone(err))
}

func TestLink_IsIdempotentAcrossDirections(t *testing.T) {
	f := newFixture(t)
	note := f.createNote(t, "user-1", "note", "n")
	other := f.createNote(t, "user-1", "other note", "o")

	first, err := f.link.Handle(context.Background(), commands.LinkEntitiesCommand{
		UserID:     "user-1",
		SourceType: "note", SourceID: note.ID,
		TargetType: "note", TargetID: other.ID,
	})
	require.NoError(t, err)

	second, err := f.link.Handle(context.Background(), commands.LinkEntitiesCommand{
		UserID:     "user-1",
		SourceType: "note", SourceID: other.ID,
		TargetType: "note", TargetID: note.ID,
	})
	require.NoError(t, err)

	firstEdge := first.(*relationships.Relationship)
	secondEdge := second.(*relationships.Relationship)
	assert.Equal(t, firstEdge.ID, secondEdge.ID)

	edges, err := f.store.Relationships().FindForEntity(context.Background(), "user-1", note.Ref())
	require.NoError(t, err)
	assert.Len(t, edges, 1)

	// querying from either side resolves the other side's display fields
	fromNote, err := relationships.LinkedItemFor(edges[0], note.Ref())
	require.NoError(t, err)
	assert.Equal(t, "other note", fromNote.Title)

	fromOther, err := relationships.LinkedItemFor(edges[0], other.Ref())
	require.NoError(t, err)
	assert.Equal(t, "note", fromOther.Title)
}

func TestUnlink_RemovesEdge(t *testing.T) {
	f := newFixture(t)
	note := f.createNote(t, "user-1", "note", "n")
	other := f.createNote(t, "user-1", "other", "o")

	created, err := f.link.Handle(context.Background(), commands.LinkEntitiesCommand{
		UserID:     "user-1",
		SourceType: "note", SourceID: note.ID,
		TargetType: "note", TargetID: other.ID,
	})
	require.NoError(t, err)
	edge := created.(*relationships.Relationship)

	_, err = f.unlink.Handle(context.Background(), commands.UnlinkEntitiesCommand{
		UserID:         "user-1",
		RelationshipID: edge.ID,
	})
	require.NoError(t, err)

	edges, err := f.store.Relationships().FindForEntity(context.Background(), "user-1", note.Ref())
	require.NoError(t, err)
	assert.Empty(t, edges)

	_, err = f.unlink.Handle(context.Background(), commands.UnlinkEntitiesCommand{
		UserID:         "user-1",
		RelationshipID: edge.ID,
	})
	assert.True(t, errors.IsNotFound(err))
}
