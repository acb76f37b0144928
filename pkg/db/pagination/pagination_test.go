package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestTrim(t *testing.T) {
	items := []int{9, 8, 7}

	page, info := Trim(items, 2, func(v int) string { return strconv.Itoa(v) })
	assert.Equal(t, []int{9, 8}, page)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "8", cursor.ID)

	page, info = Trim(items, 3, func(v int) string { return strconv.Itoa(v) })
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeBeforeID(t *testing.T) {
	id, err := DecodeBeforeID("")
	require.NoError(t, err)
	assert.Zero(t, id)

	token, err := EncodeCursor(Cursor{ID: "1234"})
	require.NoError(t, err)
	id, err = DecodeBeforeID(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), id.Int64())

	_, err = DecodeBeforeID("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Size(0))
	assert.Equal(t, 10, Size(10))
	assert.Equal(t, MaxPageSize, Size(10_000))
}
