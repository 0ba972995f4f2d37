package todo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-agent/atlas/internal/envelope"
)

type staticKeys struct{}

func (staticKeys) GetOrCreateKey(context.Context, string) ([]byte, error) {
	return bytes.Repeat([]byte{0x31}, envelope.KeySize), nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(envelope.NewStore(staticKeys{}, "default"), filepath.Join(t.TempDir(), FileName))
}

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.Create(ctx, "buy milk", " call mum ")
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, StatusNew, created[0].Status)
	assert.Equal(t, "call mum", created[1].Text)
	assert.NotEqual(t, created[0].ID, created[1].ID)

	done := StatusDone
	up, err := s.Update(ctx, created[0].ID, UpdateParams{Status: &done})
	require.NoError(t, err)
	assert.Equal(t, StatusDone, up.Status)
	assert.Equal(t, "buy milk", up.Text)

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, StatusDone, items[0].Status)

	outcomes, err := s.DeleteMany(ctx, []string{created[0].ID, "missing", created[0].ID})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Deleted)
	assert.False(t, outcomes[1].Deleted)
	assert.Equal(t, "todo id not found", outcomes[1].Message)
	assert.False(t, outcomes[2].Deleted)
	assert.Equal(t, "duplicate id", outcomes[2].Message)

	items, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, created[1].ID, items[0].ID)
}

func TestStore_UpdateErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	created, err := s.Create(ctx, "x")
	require.NoError(t, err)

	bad := Status("archived")
	_, err = s.Update(ctx, created[0].ID, UpdateParams{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	empty := "  "
	_, err = s.Update(ctx, created[0].ID, UpdateParams{Text: &empty})
	assert.ErrorIs(t, err, ErrEmptyText)

	text := "y"
	_, err = s.Update(ctx, "missing", UpdateParams{Text: &text})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Create(ctx, "ok", "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestHandler_List(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(context.Background(), "water plants")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewHandler(s).List(rec, httptest.NewRequest(http.MethodGet, "/todos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "water plants")
}
