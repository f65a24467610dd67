package relationships

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/pkg/errors"
)

func ref(t *testing.T, ct valueobjects.ContentType) valueobjects.EntityRef {
	t.Helper()
	r, err := valueobjects.NewEntityRef(string(ct), uuid.New().String())
	require.NoError(t, err)
	return r
}

func TestNewRelationship_CanonicalOrderIsDirectionIndependent(t *testing.T) {
	bookmark := ref(t, valueobjects.ContentTypeBookmark)
	note := ref(t, valueobjects.ContentTypeNote)
	bd := Display{Title: "Go blog", URL: "https://go.dev/blog"}
	nd := Display{Title: "Reading notes"}

	forward, err := NewRelationship("user-1", bookmark, note, bd, nd, "", "")
	require.NoError(t, err)
	backward, err := NewRelationship("user-1", note, bookmark, nd, bd, "", "")
	require.NoError(t, err)

	assert.Equal(t, forward.PairKey(), backward.PairKey())
	assert.Equal(t, forward.Source, backward.Source)
	assert.Equal(t, forward.Target, backward.Target)
	assert.Equal(t, forward.SourceDisplay, backward.SourceDisplay)
	assert.Equal(t, DefaultRelationType, forward.RelationType)
}

func TestNewRelationship_RejectsSelfLink(t *testing.T) {
	note := ref(t, valueobjects.ContentTypeNote)
	_, err := NewRelationship("user-1", note, note, Display{}, Display{}, "", "")
	assert.True(t, errors.IsValidation(err))
}

func TestLinkedItemFor_ResolvesEitherPerspective(t *testing.T) {
	bookmark := ref(t, valueobjects.ContentTypeBookmark)
	prompt := ref(t, valueobjects.ContentTypePrompt)
	rel, err := NewRelationship("user-1", bookmark, prompt,
		Display{Title: "Go blog", URL: "https://go.dev/blog"},
		Display{Name: "summarize-article"},
		"reference", "used as input")
	require.NoError(t, err)

	fromBookmark, err := LinkedItemFor(rel, bookmark)
	require.NoError(t, err)
	assert.Equal(t, prompt, fromBookmark.Ref)
	assert.Equal(t, "summarize-article", fromBookmark.Name)
	assert.Equal(t, "used as input", fromBookmark.Description)

	fromPrompt, err := LinkedItemFor(rel, prompt)
	require.NoError(t, err)
	assert.Equal(t, bookmark, fromPrompt.Ref)
	assert.Equal(t, "Go blog", fromPrompt.Title)

	stranger := ref(t, valueobjects.ContentTypeNote)
	_, err = LinkedItemFor(rel, stranger)
	assert.Error(t, err)
}

func TestRefreshDisplay_ServerDataWins(t *testing.T) {
	bookmark := ref(t, valueobjects.ContentTypeBookmark)
	note := ref(t, valueobjects.ContentTypeNote)
	rel, err := NewRelationship("user-1", bookmark, note,
		Display{Title: "staged title"}, Display{Title: "note"}, "", "")
	require.NoError(t, err)

	ok := rel.RefreshDisplay(bookmark, Display{Title: "server title", URL: "https://example.com", Archived: true})
	assert.True(t, ok)

	item, err := LinkedItemFor(rel, note)
	require.NoError(t, err)
	assert.Equal(t, "server title", item.Title)
	assert.True(t, item.Archived)

	assert.False(t, rel.RefreshDisplay(ref(t, valueobjects.ContentTypePrompt), Display{}))
}

func TestSortLinkedItems_GroupsByTypeThenLabel(t *testing.T) {
	items := []LinkedItem{
		{Ref: ref(t, valueobjects.ContentTypePrompt), Name: "zeta"},
		{Ref: ref(t, valueobjects.ContentTypeNote), Title: "beta"},
		{Ref: ref(t, valueobjects.ContentTypeNote)},
		{Ref: ref(t, valueobjects.ContentTypeBookmark), Title: "alpha"},
		{Ref: ref(t, valueobjects.ContentTypeNote), Title: "Alpha"},
	}

	SortLinkedItems(items)

	assert.Equal(t, valueobjects.ContentTypeBookmark, items[0].Ref.Type)
	assert.Equal(t, "Alpha", items[1].Title)
	assert.Equal(t, "beta", items[2].Title)
	// unlabeled note sorts after labeled ones within its type group
	assert.Equal(t, "", items[3].Title)
	assert.Equal(t, valueobjects.ContentTypeNote, items[3].Ref.Type)
	assert.Equal(t, valueobjects.ContentTypePrompt, items[4].Ref.Type)
}
