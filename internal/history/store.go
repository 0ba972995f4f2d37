// Package history keeps the ordered conversation log in an encrypted
// envelope collection.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atlas-agent/atlas/internal/envelope"
)

// FileName is the collection file inside the data directory.
const FileName = "chat_history.enc"

var ErrNotFound = errors.New("history entry not found")

// Item is one payload to append.
type Item struct {
	Content any
	Kind    envelope.Kind
}

// DeleteResult reports how many entries were removed and how many remain.
type DeleteResult struct {
	Deleted   int `json:"deleted_count"`
	Remaining int `json:"remaining_count"`
}

// Stats aggregates the collection.
type Stats struct {
	TotalEntries int                   `json:"total_entries"`
	TotalBytes   int64                 `json:"total_bytes"`
	ByKind       map[envelope.Kind]int `json:"by_kind"`
	OldestTS     *time.Time            `json:"oldest_ts,omitempty"`
	NewestTS     *time.Time            `json:"newest_ts,omitempty"`
}

// Store is the chat history collection. Insertion order is the only order;
// entries are never re-sorted.
type Store struct {
	env  *envelope.Store
	path string
}

func NewStore(env *envelope.Store, path string) *Store {
	return &Store{env: env, path: path}
}

func (s *Store) load(ctx context.Context) ([]envelope.Entry, error) {
	var entries []envelope.Entry
	err := s.env.Read(ctx, s.path, &entries)
	if errors.Is(err, envelope.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading chat history: %w", err)
	}
	return entries, nil
}

// Append wraps content as one entry of the given kind and persists the
// collection. It returns the new entry id.
func (s *Store) Append(ctx context.Context, content any, kind envelope.Kind) (string, error) {
	ids, err := s.AppendMany(ctx, []Item{{Content: content, Kind: kind}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// AppendContent appends a raw chat payload, inferring its kind.
func (s *Store) AppendContent(ctx context.Context, content json.RawMessage) (string, error) {
	return s.Append(ctx, content, envelope.InferKind(content))
}

// AppendMany wraps every item and persists them with a single atomic write,
// preserving the order of items.
func (s *Store) AppendMany(ctx context.Context, items []Item) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	wrapped := make([]envelope.Entry, 0, len(items))
	for _, it := range items {
		e, err := envelope.Wrap(it.Content, it.Kind)
		if err != nil {
			return nil, err
		}
		wrapped = append(wrapped, e)
	}

	err := envelope.Update(ctx, s.env, s.path, func(entries *[]envelope.Entry) error {
		*entries = append(*entries, wrapped...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("appending chat history: %w", err)
	}

	ids := make([]string, len(wrapped))
	for i, e := range wrapped {
		ids[i] = e.ID
	}
	return ids, nil
}

// ListMetadata returns id, timestamp, kind and size of every entry in order.
func (s *Store) ListMetadata(ctx context.Context) ([]envelope.Metadata, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]envelope.Metadata, len(entries))
	for i, e := range entries {
		out[i] = e.Metadata()
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (envelope.Entry, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return envelope.Entry{}, err
	}
	for _, e := range entries {
		if e.ID == id {
			return e, nil
		}
	}
	return envelope.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Replace swaps the content of an existing entry, keeping its id, position
// and timestamp.
func (s *Store) Replace(ctx context.Context, id string, content any, kind envelope.Kind) error {
	replacement, err := envelope.Wrap(content, kind)
	if err != nil {
		return err
	}

	found := false
	err = envelope.Update(ctx, s.env, s.path, func(entries *[]envelope.Entry) error {
		for i, e := range *entries {
			if e.ID == id {
				replacement.ID = e.ID
				replacement.Timestamp = e.Timestamp
				(*entries)[i] = replacement
				found = true
				return nil
			}
		}
		return envelope.ErrSkipWrite
	})
	if err != nil {
		return fmt.Errorf("replacing chat history entry: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Delete removes the entries whose ids are listed. Unknown ids are ignored,
// so repeating a delete is a no-op; the file is only rewritten when something
// was removed.
func (s *Store) Delete(ctx context.Context, ids []string) (DeleteResult, error) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	var res DeleteResult
	err := envelope.Update(ctx, s.env, s.path, func(entries *[]envelope.Entry) error {
		kept := (*entries)[:0]
		for _, e := range *entries {
			if _, ok := drop[e.ID]; ok {
				continue
			}
			kept = append(kept, e)
		}
		res.Deleted = len(*entries) - len(kept)
		res.Remaining = len(kept)
		if res.Deleted == 0 {
			return envelope.ErrSkipWrite
		}
		*entries = kept
		return nil
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("deleting chat history: %w", err)
	}
	return res, nil
}

// DeleteAll clears the collection.
func (s *Store) DeleteAll(ctx context.Context) (DeleteResult, error) {
	var res DeleteResult
	err := envelope.Update(ctx, s.env, s.path, func(entries *[]envelope.Entry) error {
		res.Deleted = len(*entries)
		*entries = []envelope.Entry{}
		return nil
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("clearing chat history: %w", err)
	}
	return res, nil
}

// Messages returns the content payloads in append order, stripped of their
// envelope metadata. This is the conversation context fed back to the model.
func (s *Store) Messages(ctx context.Context) ([]json.RawMessage, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]json.RawMessage, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.load(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{ByKind: make(map[envelope.Kind]int)}
	for _, e := range entries {
		st.TotalEntries++
		st.TotalBytes += int64(e.Size)
		st.ByKind[e.Kind]++

		ts := e.Timestamp
		if st.OldestTS == nil || ts.Before(*st.OldestTS) {
			st.OldestTS = &ts
		}
		if st.NewestTS == nil || ts.After(*st.NewestTS) {
			st.NewestTS = &ts
		}
	}
	return st, nil
}
