package memory

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-agent/atlas/internal/envelope"
)

type staticKeys struct{}

func (staticKeys) GetOrCreateKey(context.Context, string) ([]byte, error) {
	return bytes.Repeat([]byte{0x21}, envelope.KeySize), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(envelope.NewStore(staticKeys{}, "default"), filepath.Join(t.TempDir(), FileName))
}

func ptr[T any](v T) *T { return &v }

func TestStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	a, err := s.Create(ctx, "  likes green tea  ", CategoryUser)
	require.NoError(t, err)
	assert.Equal(t, "likes green tea", a.Text)
	assert.Len(t, a.ID, 26)
	assert.Equal(t, a.CreatedAt, a.UpdatedAt)

	b, err := s.Create(ctx, "enjoys dry humour", CategorySelf)
	require.NoError(t, err)

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, CategorySelf, got.Category)
}

func TestStore_CreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Create(ctx, "   ", CategoryUser)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = s.Create(ctx, "text", Category("pets"))
	assert.ErrorIs(t, err, ErrInvalidCategory)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return start }

	rec, err := s.Create(ctx, "first draft", CategoryUser)
	require.NoError(t, err)

	s.now = func() time.Time { return start.Add(time.Hour) }

	t.Run("text only", func(t *testing.T) {
		up, err := s.Update(ctx, rec.ID, UpdateParams{Text: ptr("second draft")})
		require.NoError(t, err)
		assert.Equal(t, "second draft", up.Text)
		assert.Equal(t, CategoryUser, up.Category)
		assert.Equal(t, start, up.CreatedAt)
		assert.Equal(t, start.Add(time.Hour), up.UpdatedAt)
	})

	t.Run("category only", func(t *testing.T) {
		up, err := s.Update(ctx, rec.ID, UpdateParams{Category: ptr(CategoryRelationship)})
		require.NoError(t, err)
		assert.Equal(t, "second draft", up.Text)
		assert.Equal(t, CategoryRelationship, up.Category)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Update(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ", UpdateParams{Text: ptr("x")})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid update leaves record alone", func(t *testing.T) {
		_, err := s.Update(ctx, rec.ID, UpdateParams{Category: ptr(Category("nope"))})
		assert.ErrorIs(t, err, ErrInvalidCategory)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, CategoryRelationship, got.Category)
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, _ := s.Create(ctx, "a", CategoryUser)
	b, _ := s.Create(ctx, "b", CategorySelf)
	c, _ := s.Create(ctx, "c", CategoryRelationship)

	require.NoError(t, s.Delete(ctx, b.ID))
	assert.ErrorIs(t, s.Delete(ctx, b.ID), ErrNotFound)

	outcomes, err := s.DeleteMany(ctx, []string{a.ID, "missing", a.ID})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Deleted)
	assert.False(t, outcomes[1].Deleted)
	assert.Equal(t, "memory id not found", outcomes[1].Message)
	assert.False(t, outcomes[2].Deleted)
	assert.Equal(t, "duplicate id", outcomes[2].Message)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, c.ID, list[0].ID)

	n, err := s.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_StatsAndContext(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	text, err := s.BuildContext(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)

	_, _ = s.Create(ctx, "name is Sam", CategoryUser)
	_, _ = s.Create(ctx, "works nights", CategoryUser)
	_, _ = s.Create(ctx, "we joke about pineapples", CategoryRelationship)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, map[Category]int{CategoryUser: 2, CategorySelf: 0, CategoryRelationship: 1}, st.ByCategory)

	text, err = s.BuildContext(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "## Memories\n"))
	assert.Contains(t, text, "(user) name is Sam")
	assert.Contains(t, text, "Memory balance: user=2 self=0 relationship=1")
}

func TestStore_NoWordLimitInStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	long := strings.Repeat("word ", 500)
	rec, err := s.Create(ctx, long, CategorySelf)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), rec.Text)
}
