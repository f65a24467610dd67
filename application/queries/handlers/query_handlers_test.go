package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stash-backend/application/ports"
	"stash-backend/application/queries"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/versioning"
	"stash-backend/infrastructure/persistence/memory"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

func seedNote(t *testing.T, store *memory.Store, userID, title, content string) *entities.Entity {
	t.Helper()
	e := entities.NewEntity(uuid.New().String(), userID, valueobjects.ContentTypeNote, title, content)
	entry, err := versioning.NewContentEntry(e.Ref(), userID, versioning.ActionCreate, 1, content,
		versioning.Metadata{Title: title}, nil, versioning.Actor{Source: "api"})
	require.NoError(t, err)
	require.NoError(t, store.UnitOfWork().CommitEntityWrite(context.Background(), ports.EntityWrite{
		Entity: e, Entry: entry, IsNew: true,
	}))
	return e
}

func seedAudit(t *testing.T, store *memory.Store, e *entities.Entity, action versioning.Action) {
	t.Helper()
	base := e.Token()
	switch action {
	case versioning.ActionDelete:
		require.NoError(t, e.SoftDelete())
	case versioning.ActionArchive:
		require.NoError(t, e.Archive())
	}
	entry, err := versioning.NewAuditEntry(e.Ref(), e.UserID, action,
		versioning.Metadata{Title: e.Title}, versioning.Actor{Source: "web"})
	require.NoError(t, err)
	require.NoError(t, store.UnitOfWork().CommitEntityWrite(context.Background(), ports.EntityWrite{
		Entity: e, Entry: entry, BaseToken: base,
	}))
}

func TestCheckStaleness(t *testing.T) {
	store := memory.NewStore()
	handler := NewCheckStalenessHandler(store.Entities(), zap.NewNop())
	e := seedNote(t, store, "user-1", "note", "body")

	t.Run("current token is not stale", func(t *testing.T) {
		result, err := handler.Handle(context.Background(), queries.CheckStalenessQuery{
			UserID: "user-1", ContentType: "note", EntityID: e.ID, LoadedToken: e.Token(),
		})
		require.NoError(t, err)
		probe := result.(queries.StalenessResult)
		assert.False(t, probe.Stale)
		assert.False(t, probe.Deleted)
		assert.Equal(t, e.Token(), probe.LiveToken)
	})

	t.Run("old token is stale and reports the live one", func(t *testing.T) {
		result, err := handler.Handle(context.Background(), queries.CheckStalenessQuery{
			UserID: "user-1", ContentType: "note", EntityID: e.ID, LoadedToken: "2020-01-01T00:00:00Z",
		})
		require.NoError(t, err)
		probe := result.(queries.StalenessResult)
		assert.True(t, probe.Stale)
		assert.Equal(t, e.Token(), probe.LiveToken)
	})

	t.Run("deleted entity is terminal, not stale", func(t *testing.T) {
		seedAudit(t, store, e, versioning.ActionDelete)
		result, err := handler.Handle(context.Background(), queries.CheckStalenessQuery{
			UserID: "user-1", ContentType: "note", EntityID: e.ID, LoadedToken: "whatever",
		})
		require.NoError(t, err)
		probe := result.(queries.StalenessResult)
		assert.True(t, probe.Deleted)
		assert.False(t, probe.Stale)
	})

	t.Run("unknown entity reports deleted", func(t *testing.T) {
		result, err := handler.Handle(context.Background(), queries.CheckStalenessQuery{
			UserID: "user-1", ContentType: "note", EntityID: uuid.New().String(), LoadedToken: "x",
		})
		require.NoError(t, err)
		assert.True(t, result.(queries.StalenessResult).Deleted)
	})
}

func TestListUserHistory_Filters(t *testing.T) {
	store := memory.NewStore()
	handler := NewListUserHistoryHandler(store.History(), zap.NewNop())

	a := seedNote(t, store, "user-1", "a", "a body")
	b := seedNote(t, store, "user-1", "b", "b body")
	seedAudit(t, store, a, versioning.ActionArchive)
	seedNote(t, store, "user-2", "not mine", "x")

	ask := func(q queries.ListUserHistoryQuery) common.Page[*versioning.HistoryEntry] {
		q.UserID = "user-1"
		result, err := handler.Handle(context.Background(), q)
		require.NoError(t, err)
		return result.(common.Page[*versioning.HistoryEntry])
	}

	all := ask(queries.ListUserHistoryQuery{})
	assert.Equal(t, 3, all.Total)

	creates := ask(queries.ListUserHistoryQuery{Actions: []string{"create"}})
	assert.Equal(t, 2, creates.Total)
	for _, item := range creates.Items {
		assert.Equal(t, versioning.ActionCreate, item.Action)
	}

	web := ask(queries.ListUserHistoryQuery{Sources: []string{"web"}})
	assert.Equal(t, 1, web.Total)
	assert.Equal(t, versioning.ActionArchive, web.Items[0].Action)

	future := time.Now().Add(time.Hour)
	none := ask(queries.ListUserHistoryQuery{StartDate: &future})
	assert.Equal(t, 0, none.Total)

	_ = b
}

func TestListUserHistory_RejectsUnknownAction(t *testing.T) {
	store := memory.NewStore()
	handler := NewListUserHistoryHandler(store.History(), zap.NewNop())

	_, err := handler.Handle(context.Background(), queries.ListUserHistoryQuery{
		UserID:  "user-1",
		Actions: []string{"obliterate"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), `"obliterate"`)
}

func TestListEntityHistory_PagesNewestFirst(t *testing.T) {
	store := memory.NewStore()
	handler := NewListEntityHistoryHandler(store.History(), zap.NewNop())

	e := seedNote(t, store, "user-1", "note", "v1")
	base := e.Token()
	content := "v2"
	_, err := e.ApplyChange(entities.ContentChange{Content: &content})
	require.NoError(t, err)
	entry, err := versioning.NewContentEntry(e.Ref(), "user-1", versioning.ActionUpdate, 2, content,
		versioning.Metadata{Title: e.Title}, []string{"content"}, versioning.Actor{Source: "api"})
	require.NoError(t, err)
	require.NoError(t, store.UnitOfWork().CommitEntityWrite(context.Background(), ports.EntityWrite{Entity: e, Entry: entry, BaseToken: base}))

	result, err := handler.Handle(context.Background(), queries.ListEntityHistoryQuery{
		UserID: "user-1", ContentType: "note", EntityID: e.ID, Limit: 1, Offset: 0,
	})
	require.NoError(t, err)
	page := result.(common.Page[*versioning.HistoryEntry])

	assert.Equal(t, 2, page.Total)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 1)
	assert.Equal(t, versioning.ActionUpdate, page.Items[0].Action)
}
