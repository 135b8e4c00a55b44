package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docpost/internal/value"
)

func TestGet_MissingDocument(t *testing.T) {
	s := setupTestStore(t)

	snap, err := s.Get(context.Background(), "posts/missing")
	require.NoError(t, err)
	assert.False(t, snap.Exists)
	assert.Equal(t, "posts/missing", snap.Path)
	assert.Equal(t, "missing", snap.ID)
	assert.Nil(t, snap.Data)

	_, ok := snap.Field("input")
	assert.False(t, ok)
}

func TestGet_InvalidPath(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Get(context.Background(), "posts")
	require.Error(t, err)
}

func TestSet_ThenGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "hello", "n": 3}))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "hello", snap.Data["input"])
	// Numbers come back as json.Number.
	assert.Equal(t, json.Number("3"), snap.Data["n"])
	assert.Positive(t, snap.UpdateSeq)
}

func TestSet_StringsRoundTripExactly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	data := value.Object{"input": "e\u0301", "html": "<a & b>"}
	require.NoError(t, s.Set(ctx, "posts/a", data))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.Equal(t, "e\u0301", snap.Data["input"])
	assert.Equal(t, "<a & b>", snap.Data["html"])

	var raw string
	require.NoError(t, s.DB().QueryRow(`SELECT data FROM documents WHERE path = 'posts/a'`).Scan(&raw))
	assert.Equal(t, `{"html":"<a & b>","input":"e\u0301"}`, raw)

	events, err := s.ChangesSince(ctx, ChangeFilter{Path: "posts/a"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e\u0301", events[0].After.Data["input"])
}

func TestPaths_EquivalentSpellingsAddressOneDocument(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/caf\u00e9", value.Object{"n": 1}))

	snap, err := s.Get(ctx, "posts/cafe\u0301")
	require.NoError(t, err)
	require.True(t, snap.Exists)
	assert.Equal(t, "posts/caf\u00e9", snap.Path)

	page, err := s.Page(ctx, "posts", 0, 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestSet_NilDataStoresEmptyObject(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", nil))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.True(t, snap.Exists)
	assert.Empty(t, snap.Data)
}

func TestSet_UnchangedDataRecordsNoChange(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "x"}))
	seq, err := s.LatestSeq(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "x"}))

	after, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, seq, after)
}

func TestUpdate_MergesFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "x", "output": "old"}))
	require.NoError(t, s.Update(ctx, "posts/a", map[string]any{"output": "new", "currentVersion": 2}))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.Equal(t, "x", snap.Data["input"])
	assert.Equal(t, "new", snap.Data["output"])
	assert.Equal(t, json.Number("2"), snap.Data["currentVersion"])
}

func TestUpdate_DeleteSentinelRemovesField(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "x", "output": "y", "currentVersion": 1}))
	require.NoError(t, s.Update(ctx, "posts/a", map[string]any{"output": Delete, "currentVersion": Delete}))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.Equal(t, value.Object{"input": "x"}, snap.Data)
}

func TestUpdate_MissingDocument(t *testing.T) {
	s := setupTestStore(t)

	err := s.Update(context.Background(), "posts/nope", map[string]any{"output": "y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdate_EmptyFieldName(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "x"}))
	require.Error(t, s.Update(ctx, "posts/a", map[string]any{"": "y"}))
}

func TestDeleteDocument(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "posts/a", value.Object{"input": "x"}))
	require.NoError(t, s.DeleteDocument(ctx, "posts/a"))

	snap, err := s.Get(ctx, "posts/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists)

	// Deleting again is a no-op.
	seq, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	require.NoError(t, s.DeleteDocument(ctx, "posts/a"))
	after, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, seq, after)
}

func TestAdd_GeneratesID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p1, err := s.Add(ctx, "posts", value.Object{"input": "a"})
	require.NoError(t, err)
	p2, err := s.Add(ctx, "posts", value.Object{"input": "b"})
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	collection, id, err := SplitPath(p1)
	require.NoError(t, err)
	assert.Equal(t, "posts", collection)
	assert.Len(t, id, 36)

	_, err = s.Add(ctx, "", value.Object{})
	require.Error(t, err)
}

func TestPage_OrderedByID(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"c", "a", "B", "b"} {
		require.NoError(t, s.Set(ctx, "posts/"+id, value.Object{"id": id}))
	}
	// A nested collection is not part of "posts".
	require.NoError(t, s.Set(ctx, "posts/a/comments/z", value.Object{}))

	docs, err := s.Page(ctx, "posts", 0, 10)
	require.NoError(t, err)

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	// Binary collation: uppercase sorts first.
	assert.Equal(t, []string{"B", "a", "b", "c"}, ids)

	n, err := s.Count(ctx, "posts")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestPage_OffsetAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("posts/%02d", i), value.Object{"i": i}))
	}

	first, err := s.Page(ctx, "posts", 0, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "00", first[0].ID)

	last, err := s.Page(ctx, "posts", 6, 3)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "06", last[0].ID)

	empty, err := s.Page(ctx, "posts", 7, 3)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = s.Page(ctx, "posts", -1, 3)
	require.Error(t, err)
	_, err = s.Page(ctx, "posts", 0, 0)
	require.Error(t, err)
}
