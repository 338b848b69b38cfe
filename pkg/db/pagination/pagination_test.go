package pagination

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{ID: snowflake.ID(1234), CreatedAt: time.Date(2025, 5, 1, 10, 0, 0, 500, time.UTC)}
	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))

	for _, bad := range []string{"%%%", "bm90LWpzb24", "eyJpZCI6IjAiLCJjcmVhdGVkX2F0IjoiIn0"} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
}

func TestPage(t *testing.T) {
	rows := []int{5, 4, 3}
	cursorOf := func(v int) Cursor { return Cursor{ID: snowflake.ID(v), CreatedAt: time.Unix(int64(v), 0)} }

	kept, info := Page(rows, 2, cursorOf)
	assert.Equal(t, []int{5, 4}, kept)
	require.True(t, info.HasMore)
	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(4), next.ID)

	kept, info = Page(rows, 3, cursorOf)
	assert.Len(t, kept, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}
