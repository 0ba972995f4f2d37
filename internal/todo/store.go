// Package todo keeps the agent's ordered to-do list in an encrypted envelope
// collection.
package todo

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/atlas-agent/atlas/internal/envelope"
)

// FileName is the collection file inside the data directory.
const FileName = "todos.enc"

var (
	ErrNotFound      = errors.New("todo not found")
	ErrInvalidStatus = errors.New("invalid todo status")
	ErrEmptyText     = errors.New("todo text is empty")
)

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
)

func (s Status) Valid() bool {
	return s == StatusNew || s == StatusInProgress || s == StatusDone
}

type Item struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateParams selects the fields to change. Nil fields are left alone.
type UpdateParams struct {
	Text   *string
	Status *Status
}

// DeleteOutcome is the per-id result of DeleteMany.
type DeleteOutcome struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

type Store struct {
	env  *envelope.Store
	path string
}

func NewStore(env *envelope.Store, path string) *Store {
	return &Store{env: env, path: path}
}

func (s *Store) List(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.env.Read(ctx, s.path, &items)
	if errors.Is(err, envelope.ErrNotFound) {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading todos: %w", err)
	}
	return items, nil
}

// Create appends one todo per text in a single write. New todos start in
// StatusNew.
func (s *Store) Create(ctx context.Context, texts ...string) ([]Item, error) {
	now := time.Now().UTC()
	created := make([]Item, 0, len(texts))
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrEmptyText
		}
		created = append(created, Item{
			ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
			Text:      text,
			Status:    StatusNew,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if len(created) == 0 {
		return created, nil
	}

	err := envelope.Update(ctx, s.env, s.path, func(items *[]Item) error {
		*items = append(*items, created...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating todos: %w", err)
	}
	return created, nil
}

func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (Item, error) {
	if p.Status != nil && !p.Status.Valid() {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
	}
	if p.Text != nil && strings.TrimSpace(*p.Text) == "" {
		return Item{}, ErrEmptyText
	}

	var updated Item
	found := false
	err := envelope.Update(ctx, s.env, s.path, func(items *[]Item) error {
		i := slices.IndexFunc(*items, func(it Item) bool { return it.ID == id })
		if i < 0 {
			return envelope.ErrSkipWrite
		}
		it := &(*items)[i]
		if p.Text != nil {
			it.Text = strings.TrimSpace(*p.Text)
		}
		if p.Status != nil {
			it.Status = *p.Status
		}
		it.UpdatedAt = time.Now().UTC()
		updated, found = *it, true
		return nil
	})
	if err != nil {
		return Item{}, fmt.Errorf("updating todo: %w", err)
	}
	if !found {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return updated, nil
}

func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]DeleteOutcome, error) {
	outcomes := make([]DeleteOutcome, len(ids))
	err := envelope.Update(ctx, s.env, s.path, func(items *[]Item) error {
		drop := make(map[string]bool, len(ids))
		for i, id := range ids {
			outcomes[i] = DeleteOutcome{ID: id}
			if drop[id] {
				outcomes[i].Message = "duplicate id"
				continue
			}
			if slices.ContainsFunc(*items, func(it Item) bool { return it.ID == id }) {
				drop[id] = true
				outcomes[i].Deleted = true
			} else {
				outcomes[i].Message = "todo id not found"
			}
		}
		if len(drop) == 0 {
			return envelope.ErrSkipWrite
		}
		*items = slices.DeleteFunc(*items, func(it Item) bool { return drop[it.ID] })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deleting todos: %w", err)
	}
	return outcomes, nil
}
