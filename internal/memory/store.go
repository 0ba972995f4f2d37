// Package memory keeps the agent's long-term memories in an encrypted
// envelope collection.
package memory

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
const FileName = "memories.enc"

var (
	ErrNotFound        = errors.New("memory not found")
	ErrInvalidCategory = errors.New("invalid memory category")
	ErrEmptyText       = errors.New("memory text is empty")
)

// Store is the memory collection. Records keep their creation order.
type Store struct {
	env  *envelope.Store
	path string
	now  func() time.Time
}

func NewStore(env *envelope.Store, path string) *Store {
	return &Store{env: env, path: path, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) List(ctx context.Context) ([]Record, error) {
	var records []Record
	err := s.env.Read(ctx, s.path, &records)
	if errors.Is(err, envelope.ErrNotFound) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading memories: %w", err)
	}
	return records, nil
}

func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func checkFields(text string, category Category) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if !category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, text string, category Category) (Record, error) {
	if err := checkFields(text, category); err != nil {
		return Record{}, err
	}

	now := s.now()
	rec := Record{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Category:  category,
		Text:      strings.TrimSpace(text),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := envelope.Update(ctx, s.env, s.path, func(records *[]Record) error {
		*records = append(*records, rec)
		return nil
	})
	if err != nil {
		return Record{}, fmt.Errorf("creating memory: %w", err)
	}
	return rec, nil
}

// Update changes the text and/or category of an existing memory.
func (s *Store) Update(ctx context.Context, id string, p UpdateParams) (Record, error) {
	var updated Record
	found := false

	err := envelope.Update(ctx, s.env, s.path, func(records *[]Record) error {
		i := slices.IndexFunc(*records, func(r Record) bool { return r.ID == id })
		if i < 0 {
			return envelope.ErrSkipWrite
		}
		rec := (*records)[i]
		if p.Text != nil {
			rec.Text = strings.TrimSpace(*p.Text)
		}
		if p.Category != nil {
			rec.Category = *p.Category
		}
		if err := checkFields(rec.Text, rec.Category); err != nil {
			return err
		}
		rec.UpdatedAt = s.now()
		(*records)[i] = rec

		updated = rec
		found = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEmptyText) || errors.Is(err, ErrInvalidCategory) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("updating memory: %w", err)
	}
	if !found {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	outcomes, err := s.DeleteMany(ctx, []string{id})
	if err != nil {
		return err
	}
	if !outcomes[0].Deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteMany removes every listed id in one write and reports, per id,
// whether it existed.
func (s *Store) DeleteMany(ctx context.Context, ids []string) ([]DeleteOutcome, error) {
	outcomes := make([]DeleteOutcome, len(ids))

	err := envelope.Update(ctx, s.env, s.path, func(records *[]Record) error {
		present := make(map[string]bool, len(*records))
		for _, r := range *records {
			present[r.ID] = true
		}

		drop := make(map[string]bool, len(ids))
		for i, id := range ids {
			outcomes[i] = DeleteOutcome{ID: id}
			switch {
			case drop[id]:
				outcomes[i].Message = "duplicate id"
			case present[id]:
				outcomes[i].Deleted = true
				drop[id] = true
			default:
				outcomes[i].Message = "memory id not found"
			}
		}
		if len(drop) == 0 {
			return envelope.ErrSkipWrite
		}

		*records = slices.DeleteFunc(*records, func(r Record) bool { return drop[r.ID] })
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("deleting memories: %w", err)
	}
	return outcomes, nil
}

// Clear removes every memory and returns how many there were.
func (s *Store) Clear(ctx context.Context) (int, error) {
	var n int
	err := envelope.Update(ctx, s.env, s.path, func(records *[]Record) error {
		n = len(*records)
		*records = []Record{}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clearing memories: %w", err)
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	records, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(records), nil
}

func statsOf(records []Record) Stats {
	st := Stats{Total: len(records), ByCategory: make(map[Category]int, len(Categories))}
	for _, c := range Categories {
		st.ByCategory[c] = 0
	}
	for _, r := range records {
		st.ByCategory[r.Category]++
	}
	return st
}
