package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stash-backend/application/commands"
	commandbus "stash-backend/application/commands/bus"
	commandhandlers "stash-backend/application/commands/handlers"
	"stash-backend/application/queries"
	querybus "stash-backend/application/queries/bus"
	queryhandlers "stash-backend/application/queries/handlers"
	"stash-backend/application/services"
	domainconfig "stash-backend/domain/config"
	"stash-backend/domain/core/entities"
	"stash-backend/domain/core/validators"
	"stash-backend/domain/relationships"
	"stash-backend/domain/versioning"
	"stash-backend/infrastructure/persistence/memory"
	"stash-backend/pkg/common"
	"stash-backend/pkg/errors"
)

// stack is the whole application layer wired over the in-memory store, the
// same shape the DI container builds over DynamoDB.
type stack struct {
	store    *memory.Store
	recorder *memory.Recorder
	commands *commandbus.CommandBus
	queries  *querybus.QueryBus
}

func newStack(t *testing.T) *stack {
	t.Helper()

	store := memory.NewStore()
	recorder := memory.NewRecorder()
	logger := zap.NewNop()
	validator := validators.NewEntityValidator(domainconfig.DefaultDomainConfig())
	reconstructor := services.NewReconstructor(store.Entities(), store.History(), logger)

	cb := commandbus.NewCommandBus()
	for _, reg := range commandhandlers.Registrations(commandhandlers.Deps{
		EntityRepo:    store.Entities(),
		RelRepo:       store.Relationships(),
		UnitOfWork:    store.UnitOfWork(),
		Validator:     validator,
		Reconstructor: reconstructor,
		Publisher:     recorder,
		Logger:        logger,
	}) {
		require.NoError(t, cb.Register(reg.Command, reg.Handler))
	}

	qb := querybus.NewQueryBus()
	for _, reg := range queryhandlers.Registrations(queryhandlers.Deps{
		EntityRepo:    store.Entities(),
		HistoryRepo:   store.History(),
		RelRepo:       store.Relationships(),
		Reconstructor: reconstructor,
		Logger:        logger,
	}) {
		require.NoError(t, qb.Register(reg.Query, reg.Handler))
	}

	return &stack{store: store, recorder: recorder, commands: cb, queries: qb}
}

func (s *stack) create(t *testing.T, userID, contentType, title, content string) *entities.Entity {
	t.Helper()
	cmd := commands.CreateEntityCommand{
		UserID:      userID,
		ContentType: contentType,
		Title:       title,
		Content:     content,
		Actor:       commands.Actor{Source: "web", AuthType: "bearer"},
	}
	if contentType == "bookmark" {
		cmd.URL = "https://example.com/paper"
	}
	result, err := s.commands.Send(context.Background(), cmd)
	require.NoError(t, err)
	return result.(*entities.Entity)
}

func (s *stack) save(userID string, e *entities.Entity, content string, token *string) (*entities.Entity, error) {
	result, err := s.commands.Send(context.Background(), commands.UpdateEntityCommand{
		UserID:        userID,
		ContentType:   string(e.Type),
		EntityID:      e.ID,
		Content:       &content,
		ExpectedToken: token,
		Actor:         commands.Actor{Source: "web", AuthType: "bearer"},
	})
	if err != nil {
		return nil, err
	}
	return result.(*entities.Entity), nil
}

// Two sessions edit the same note. The loser's save is rejected with the live
// server state, the loser reloads and retries, and the log records every
// accepted save exactly once.
func TestTwoSessionConflictFlow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const user = "user-1"

	note := s.create(t, user, "note", "meeting notes", "agenda")
	tokenA := note.Token()
	tokenB := note.Token()

	// Session A wins the race.
	afterA, err := s.save(user, note, "agenda plus decisions", &tokenA)
	require.NoError(t, err)
	assert.Equal(t, 2, afterA.Version)

	// Session B probes before saving and learns it is stale.
	probe, err := s.queries.Ask(ctx, queries.CheckStalenessQuery{
		UserID:      user,
		ContentType: "note",
		EntityID:    note.ID,
		LoadedToken: tokenB,
	})
	require.NoError(t, err)
	assert.True(t, probe.(queries.StalenessResult).Stale)

	// Session B saves anyway with its stale token and is rejected.
	_, err = s.save(user, note, "agenda plus other decisions", &tokenB)
	require.Error(t, err)
	require.True(t, errors.IsConflict(err))

	state, ok := errors.ServerState(errors.GetAppError(err))
	require.True(t, ok)
	assert.Equal(t, afterA.Token(), state["updated_at"])

	// Session B reloads the winner's state and retries with the fresh token.
	fresh := afterA.Token()
	afterB, err := s.save(user, note, "merged agenda", &fresh)
	require.NoError(t, err)
	assert.Equal(t, 3, afterB.Version)

	// One content entry per accepted save, versions gap-free.
	entries, err := s.store.History().ListAllForEntity(ctx, note.Ref())
	require.NoError(t, err)
	assert.Empty(t, versioning.ValidateChain(entries))
	assert.Len(t, entries, 3)
}

func TestRestoreAppendsInsteadOfRewinding(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const user = "user-1"

	note := s.create(t, user, "note", "essay", "first draft")
	token := note.Token()
	updated, err := s.save(user, note, "second draft", &token)
	require.NoError(t, err)

	result, err := s.commands.Send(ctx, commands.RestoreEntityCommand{
		UserID:        user,
		ContentType:   "note",
		EntityID:      note.ID,
		TargetVersion: 1,
		Actor:         commands.Actor{Source: "web", AuthType: "bearer"},
	})
	require.NoError(t, err)

	restored := result.(*entities.Entity)
	assert.Equal(t, "first draft", restored.Content)
	assert.Equal(t, 3, restored.Version)
	assert.NotEqual(t, updated.Token(), restored.Token())

	// The restore entry names its origin version.
	entries, err := s.store.History().ListAllForEntity(ctx, note.Ref())
	require.NoError(t, err)
	latest := entries[len(entries)-1]
	assert.Equal(t, versioning.ActionRestore, latest.Action)

	// Diff of the restore shows the content moving back.
	diff, err := s.queries.Ask(ctx, queries.DiffVersionQuery{
		UserID:      user,
		ContentType: "note",
		EntityID:    note.ID,
		Version:     3,
	})
	require.NoError(t, err)
	d := diff.(*services.DiffResult)
	require.NotNil(t, d.BeforeContent)
	assert.Equal(t, "second draft", *d.BeforeContent)
	assert.Equal(t, "first draft", d.AfterContent)
}

func TestAuditActionsNeverTouchContentVersions(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const user = "user-1"

	bm := s.create(t, user, "bookmark", "paper", "")

	for _, action := range []versioning.Action{
		versioning.ActionArchive,
		versioning.ActionUnarchive,
		versioning.ActionDelete,
		versioning.ActionUndelete,
	} {
		result, err := s.commands.Send(ctx, commands.ChangeLifecycleCommand{
			UserID:      user,
			ContentType: "bookmark",
			EntityID:    bm.ID,
			Action:      action,
			Actor:       commands.Actor{Source: "web", AuthType: "bearer"},
		})
		require.NoError(t, err, action)
		assert.Equal(t, 1, result.(*entities.Entity).Version, action)
	}

	entries, err := s.store.History().ListAllForEntity(ctx, bm.Ref())
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for _, e := range entries[1:] {
		assert.Nil(t, e.Version, e.Action)
		assert.Nil(t, e.Content, e.Action)
	}

	// Restore cannot target an audit entry; only content versions exist.
	_, err = s.commands.Send(ctx, commands.RestoreEntityCommand{
		UserID:        user,
		ContentType:   "bookmark",
		EntityID:      bm.ID,
		TargetVersion: 2,
		Actor:         commands.Actor{Source: "web", AuthType: "bearer"},
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestUserFeedFiltersAcrossEntities(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const user = "user-1"

	note := s.create(t, user, "note", "notes", "n1")
	s.create(t, user, "bookmark", "link", "")
	token := note.Token()
	_, err := s.save(user, note, "n2", &token)
	require.NoError(t, err)

	result, err := s.queries.Ask(ctx, queries.ListUserHistoryQuery{
		UserID:       user,
		ContentTypes: []string{"note"},
		Actions:      []string{string(versioning.ActionUpdate)},
	})
	require.NoError(t, err)

	page := result.(common.Page[*versioning.HistoryEntry])
	require.Equal(t, 1, page.Total)
	assert.Equal(t, versioning.ActionUpdate, page.Items[0].Action)
	assert.Equal(t, note.ID, page.Items[0].ContentID)
}

func TestRelationshipSurvivesEndpointEdits(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const user = "user-1"

	bm := s.create(t, user, "bookmark", "paper", "")
	note := s.create(t, user, "note", "paper notes", "highlights")

	linked, err := s.commands.Send(ctx, commands.LinkEntitiesCommand{
		UserID:     user,
		SourceType: "bookmark",
		SourceID:   bm.ID,
		TargetType: "note",
		TargetID:   note.ID,
	})
	require.NoError(t, err)
	edge := linked.(*relationships.Relationship)

	// Linking the same pair in the opposite direction is the same edge.
	again, err := s.commands.Send(ctx, commands.LinkEntitiesCommand{
		UserID:     user,
		SourceType: "note",
		SourceID:   note.ID,
		TargetType: "bookmark",
		TargetID:   bm.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, edge.ID, again.(*relationships.Relationship).ID)

	// The edge lists from both sides after the note is renamed, and shows
	// the renamed title instead of the one denormalized at link time.
	title := "paper notes v2"
	_, err = s.commands.Send(ctx, commands.UpdateEntityCommand{
		UserID:      user,
		ContentType: "note",
		EntityID:    note.ID,
		Title:       &title,
		Actor:       commands.Actor{Source: "web", AuthType: "bearer"},
	})
	require.NoError(t, err)

	result, err := s.queries.Ask(ctx, queries.ListRelationshipsQuery{
		UserID:      user,
		ContentType: "bookmark",
		EntityID:    bm.ID,
	})
	require.NoError(t, err)
	items := result.([]relationships.LinkedItem)
	require.Len(t, items, 1)
	assert.Equal(t, note.ID, items[0].Ref.ID)
	assert.Equal(t, "paper notes v2", items[0].Title)

	// Lifecycle flags surface too: deleting the note marks the linked item.
	_, err = s.commands.Send(ctx, commands.ChangeLifecycleCommand{
		UserID:      user,
		ContentType: "note",
		EntityID:    note.ID,
		Action:      versioning.ActionDelete,
		Actor:       commands.Actor{Source: "web", AuthType: "bearer"},
	})
	require.NoError(t, err)

	result, err = s.queries.Ask(ctx, queries.ListRelationshipsQuery{
		UserID:      user,
		ContentType: "bookmark",
		EntityID:    bm.ID,
	})
	require.NoError(t, err)
	items = result.([]relationships.LinkedItem)
	require.Len(t, items, 1)
	assert.True(t, items[0].Deleted)

	_, err = s.commands.Send(ctx, commands.UnlinkEntitiesCommand{
		UserID:         user,
		RelationshipID: edge.ID,
	})
	require.NoError(t, err)

	result, err = s.queries.Ask(ctx, queries.ListRelationshipsQuery{
		UserID:      user,
		ContentType: "note",
		EntityID:    note.ID,
	})
	require.NoError(t, err)
	assert.Empty(t, result.([]relationships.LinkedItem))
}
