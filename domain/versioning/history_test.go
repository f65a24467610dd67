package versioning

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

func testRef(t *testing.T) valueobjects.EntityRef {
	t.Helper()
	ref, err := valueobjects.NewEntityRef(string(valueobjects.ContentTypeNote), uuid.New().String())
	require.NoError(t, err)
	return ref
}

func contentEntry(t *testing.T, ref valueobjects.EntityRef, action Action, version int, content string) *HistoryEntry {
	t.Helper()
	e, err := NewContentEntry(ref, "user-1", action, version, content, Metadata{Title: "t"}, nil, Actor{Source: "api"})
	require.NoError(t, err)
	return e
}

func auditEntry(t *testing.T, ref valueobjects.EntityRef, action Action) *HistoryEntry {
	t.Helper()
	e, err := NewAuditEntry(ref, "user-1", action, Metadata{Title: "t"}, Actor{Source: "api"})
	require.NoError(t, err)
	return e
}

func TestAction_Classification(t *testing.T) {
	for _, a := range []Action{ActionCreate, ActionUpdate, ActionRestore} {
		assert.True(t, a.IsContent(), a)
		assert.False(t, a.IsAudit(), a)
	}
	for _, a := range []Action{ActionDelete, ActionUndelete, ActionArchive, ActionUnarchive} {
		assert.True(t, a.IsAudit(), a)
		assert.False(t, a.IsContent(), a)
	}
	assert.False(t, Action("rename").IsValid())
}

func TestNewContentEntry(t *testing.T) {
	ref := testRef(t)

	e, err := NewContentEntry(ref, "user-1", ActionCreate, 1, "hello", Metadata{Title: "first"}, []string{"content"}, Actor{Source: "api", AuthType: "jwt", TokenPrefix: "abc123de"})
	require.NoError(t, err)
	require.NotNil(t, e.Version)
	assert.Equal(t, 1, *e.Version)
	require.NotNil(t, e.Content)
	assert.Equal(t, "hello", *e.Content)
	assert.True(t, e.IsContentEntry())
	assert.True(t, e.RestoreEligible())

	_, err = NewContentEntry(ref, "user-1", ActionDelete, 1, "x", Metadata{}, nil, Actor{})
	assert.True(t, errors.IsValidation(err))

	_, err = NewContentEntry(ref, "user-1", ActionCreate, 0, "x", Metadata{}, nil, Actor{})
	assert.True(t, errors.IsValidation(err))
}

func TestNewAuditEntry(t *testing.T) {
	ref := testRef(t)

	e, err := NewAuditEntry(ref, "user-1", ActionArchive, Metadata{Title: "t"}, Actor{Source: "api"})
	require.NoError(t, err)
	assert.Nil(t, e.Version)
	assert.Nil(t, e.Content)
	assert.False(t, e.IsContentEntry())
	assert.False(t, e.RestoreEligible())

	_, err = NewAuditEntry(ref, "user-1", ActionUpdate, Metadata{}, Actor{})
	assert.True(t, errors.IsValidation(err))
}

func TestLatestContentVersion_IgnoresAuditRows(t *testing.T) {
	ref := testRef(t)
	entries := []*HistoryEntry{
		contentEntry(t, ref, ActionCreate, 1, "a"),
		contentEntry(t, ref, ActionUpdate, 2, "b"),
		auditEntry(t, ref, ActionArchive),
	}

	// the archive row is the newest chronologically, but the latest content
	// version is still 2
	assert.Equal(t, 2, LatestContentVersion(entries))
	assert.Equal(t, 0, LatestContentVersion([]*HistoryEntry{auditEntry(t, ref, ActionDelete)}))
	assert.Equal(t, 0, LatestContentVersion(nil))
}

func TestContentEntryAt(t *testing.T) {
	ref := testRef(t)
	entries := []*HistoryEntry{
		contentEntry(t, ref, ActionCreate, 1, "a"),
		contentEntry(t, ref, ActionUpdate, 2, "b"),
		auditEntry(t, ref, ActionDelete),
	}

	e, err := ContentEntryAt(entries, 2)
	require.NoError(t, err)
	assert.Equal(t, "b", *e.Content)

	_, err = ContentEntryAt(entries, 3)
	assert.True(t, errors.IsNotFound(err))
}

func TestPredecessorOf(t *testing.T) {
	ref := testRef(t)
	entries := []*HistoryEntry{
		contentEntry(t, ref, ActionCreate, 1, "a"),
		contentEntry(t, ref, ActionUpdate, 2, "b"),
		contentEntry(t, ref, ActionUpdate, 3, "c"),
		auditEntry(t, ref, ActionArchive),
	}

	pred := PredecessorOf(entries, 3)
	require.NotNil(t, pred)
	assert.Equal(t, 2, *pred.Version)

	assert.Nil(t, PredecessorOf(entries, 1))
}

func TestValidateChain(t *testing.T) {
	ref := testRef(t)

	ok := []*HistoryEntry{
		contentEntry(t, ref, ActionCreate, 1, "a"),
		contentEntry(t, ref, ActionUpdate, 2, "b"),
		auditEntry(t, ref, ActionArchive),
	}
	assert.Empty(t, ValidateChain(ok))

	gap := []*HistoryEntry{
		contentEntry(t, ref, ActionCreate, 1, "a"),
		contentEntry(t, ref, ActionUpdate, 4, "d"),
	}
	problems := ValidateChain(gap)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "missing content versions 2 through 3")

	dup := []*HistoryEntry{
		contentEntry(t, ref, ActionCreate, 1, "a"),
		contentEntry(t, ref, ActionUpdate, 2, "b"),
		contentEntry(t, ref, ActionUpdate, 2, "b2"),
	}
	problems = ValidateChain(dup)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "duplicate content version 2")
}

func TestNormalize_RepairsLegacyAuditRows(t *testing.T) {
	ref := testRef(t)

	legacy := auditEntry(t, ref, ActionDelete)
	v := 5
	c := "stale"
	legacy.Version = &v
	legacy.Content = &c

	assert.True(t, legacy.Normalize())
	assert.Nil(t, legacy.Version)
	assert.Nil(t, legacy.Content)
	assert.False(t, legacy.Normalize())

	content := contentEntry(t, ref, ActionUpdate, 2, "b")
	assert.False(t, content.Normalize())
	assert.NotNil(t, content.Version)
}

func TestSortNewestFirst(t *testing.T) {
	ref := testRef(t)
	a := contentEntry(t, ref, ActionCreate, 1, "a")
	b := contentEntry(t, ref, ActionUpdate, 2, "b")
	a.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b.CreatedAt = time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	entries := []*HistoryEntry{a, b}
	SortNewestFirst(entries)
	assert.Equal(t, 2, *entries[0].Version)
	assert.Equal(t, 1, *entries[1].Version)
}

func TestSortNewestFirst_TimestampTiesKeepInsertionOrder(t *testing.T) {
	ref := testRef(t)
	at := time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)

	var entries []*HistoryEntry
	for v := 1; v <= 4; v++ {
		e := contentEntry(t, ref, ActionUpdate, v, "c")
		e.CreatedAt = at
		entries = append(entries, e)
	}

	SortNewestFirst(entries)
	for i, e := range entries {
		assert.Equal(t, i+1, *e.Version)
	}
}
