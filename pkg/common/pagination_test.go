package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlicePage(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	page := SlicePage(all, PageParams{Limit: 2, Offset: 1})
	assert.Equal(t, []int{2, 3}, page.Items)
	assert.Equal(t, 5, page.Total)
	assert.True(t, page.HasMore)

	last := SlicePage(all, PageParams{Limit: 2, Offset: 4})
	assert.Equal(t, []int{5}, last.Items)
	assert.False(t, last.HasMore)
}

func TestSlicePage_OffsetPastEndIsEmpty(t *testing.T) {
	page := SlicePage([]int{1, 2}, PageParams{Limit: 10, Offset: 7})
	assert.Empty(t, page.Items)
	assert.Equal(t, 2, page.Total)
	assert.False(t, page.HasMore)
}

func TestSlicePage_NormalizesBadParams(t *testing.T) {
	all := make([]int, 30)
	page := SlicePage(all, PageParams{Limit: 0, Offset: -3})
	assert.Len(t, page.Items, DefaultPageSize)
	assert.Equal(t, 0, page.Offset)
}
