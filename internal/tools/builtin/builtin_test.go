package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-agent/atlas/internal/envelope"
	"github.com/atlas-agent/atlas/internal/history"
	"github.com/atlas-agent/atlas/internal/memory"
	"github.com/atlas-agent/atlas/internal/todo"
	"github.com/atlas-agent/atlas/internal/tools"
)

type keys struct {
	err error
}

func (k *keys) GetOrCreateKey(context.Context, string) ([]byte, error) {
	if k.err != nil {
		return nil, k.err
	}
	return bytes.Repeat([]byte{0x44}, envelope.KeySize), nil
}

type fixture struct {
	reg     *tools.Registry
	keys    *keys
	history *history.Store
	memory  *memory.Store
	todo    *todo.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	k := &keys{}
	env := envelope.NewStore(k, "default")

	f := &fixture{
		reg:     tools.NewRegistry(tools.Policy{}),
		keys:    k,
		history: history.NewStore(env, filepath.Join(dir, history.FileName)),
		memory:  memory.NewStore(env, filepath.Join(dir, memory.FileName)),
		todo:    todo.NewStore(env, filepath.Join(dir, todo.FileName)),
	}
	require.NoError(t, Register(f.reg, Stores{History: f.history, Memory: f.memory, Todo: f.todo}))
	return f
}

func (f *fixture) invoke(t *testing.T, name, args string) (string, error) {
	t.Helper()
	res, err := f.reg.Invoke(context.Background(), name, json.RawMessage(args))
	if err != nil {
		return "", err
	}
	raw, mErr := json.Marshal(res)
	require.NoError(t, mErr)
	return string(raw), nil
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{
		"create_memory", "create_todo",
		"delete_chat_history_entries", "delete_memory", "delete_todo",
		"get_chat_history_entry", "get_chat_history_metadata", "get_chat_history_stats",
		"get_memories", "get_todos",
		"update_memory", "update_todo",
	}, f.reg.Names())

	assert.Error(t, Register(f.reg, Stores{Todo: f.todo}), "second registration collides")
}

func TestMemoryTools(t *testing.T) {
	f := newFixture(t)

	out, err := f.invoke(t, "create_memory", `{"memories":[{"category":"user","text":"plays cello"},{"category":"self","text":"curious about music"}]}`)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, `"status":"success"`))

	out, err = f.invoke(t, "get_memories", `{}`)
	require.NoError(t, err)
	assert.Contains(t, out, "plays cello")
	assert.Contains(t, out, `"by_category":{"relationship":0,"self":1,"user":1}`)

	records, err := f.memory.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)

	out, err = f.invoke(t, "update_memory", `{"entries":[{"id":"`+records[0].ID+`","category":"relationship"},{"id":"nope","text":"x"}]}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"success"`)
	assert.Contains(t, out, "memory not found")

	out, err = f.invoke(t, "delete_memory", `{"ids":["`+records[1].ID+`"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"deleted":true`)

	_, err = f.invoke(t, "create_memory", `{"memories":[{"category":"user","text":"`+strings.Repeat("w ", 101)+`"}]}`)
	assert.ErrorIs(t, err, tools.ErrInvalidArguments)

	_, err = f.invoke(t, "create_memory", `{"memories":[{"category":"pets","text":"x"}]}`)
	assert.ErrorIs(t, err, tools.ErrInvalidArguments)
}

func TestTodoTools(t *testing.T) {
	f := newFixture(t)

	_, err := f.invoke(t, "create_todo", `{"todos":[{"text":"book dentist"}]}`)
	require.NoError(t, err)

	items, err := f.todo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	out, err := f.invoke(t, "update_todo", `{"entries":[{"id":"`+items[0].ID+`","status":"in_progress"}]}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"in_progress"`)

	_, err = f.invoke(t, "update_todo", `{"entries":[{"id":"x","status":"archived"}]}`)
	assert.ErrorIs(t, err, tools.ErrInvalidArguments)

	out, err = f.invoke(t, "get_todos", `{}`)
	require.NoError(t, err)
	assert.Contains(t, out, "book dentist")

	out, err = f.invoke(t, "delete_todo", `{"ids":["`+items[0].ID+`"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"deleted":true`)
}

func TestHistoryTools(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		id, err := f.history.Append(ctx, map[string]string{"role": "user", "content": text}, envelope.KindText)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	out, err := f.invoke(t, "get_chat_history_metadata", `{"limit":2}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"total":3`)
	assert.NotContains(t, out, ids[0])
	assert.Contains(t, out, ids[2])

	out, err = f.invoke(t, "get_chat_history_entry", `{"entry_id":"`+ids[1]+`"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "two")

	out, err = f.invoke(t, "get_chat_history_entry", `{"entry_id":"missing"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"status":"error"`)

	out, err = f.invoke(t, "delete_chat_history_entries", `{"entry_ids":["`+ids[0]+`","missing"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"deleted_count":1`)

	out, err = f.invoke(t, "get_chat_history_stats", `{}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_entries":2`)
}

func TestStorageFailureIsNotContained(t *testing.T) {
	f := newFixture(t)
	keyErr := errors.New("keyring locked")
	f.keys.err = keyErr

	_, err := f.invoke(t, "create_memory", `{"memories":[{"category":"user","text":"x"}]}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, keyErr)
	assert.ErrorIs(t, err, tools.ErrToolFailure)
}
