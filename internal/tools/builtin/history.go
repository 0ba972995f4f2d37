package builtin

import (
	"context"
	"errors"
	"fmt"

	"github.com/atlas-agent/atlas/internal/history"
	"github.com/atlas-agent/atlas/internal/tools"
)

const defaultHistoryLimit = 50

type historyMetadataArgs struct {
	Limit int `json:"limit" validate:"omitempty,min=1"`
}

type historyEntryArgs struct {
	EntryID string `json:"entry_id" validate:"required"`
}

type historyDeleteArgs struct {
	EntryIDs []string `json:"entry_ids" validate:"required,min=1,dive,required"`
}

func historyTools(h *history.Store) []tools.Tool {
	return []tools.Tool{
		tools.Typed("get_chat_history_metadata",
			"Get metadata about the most recent chat history entries (ids, timestamps, types, sizes).",
			tools.Object(map[string]tools.Field{
				"limit": tools.Integer("Maximum entries to return, newest last.").WithMin(1),
			}),
			func(ctx context.Context, a historyMetadataArgs) (any, error) {
				meta, err := h.ListMetadata(ctx)
				if err != nil {
					return nil, err
				}
				limit := a.Limit
				if limit == 0 {
					limit = defaultHistoryLimit
				}
				total := len(meta)
				if total > limit {
					meta = meta[total-limit:]
				}
				return map[string]any{"status": "success", "total": total, "entries": meta}, nil
			}),

		tools.Typed("get_chat_history_entry",
			"Get one chat history entry, including its content, by id.",
			tools.Object(map[string]tools.Field{
				"entry_id": tools.String("The entry id to retrieve."),
			}, "entry_id"),
			func(ctx context.Context, a historyEntryArgs) (any, error) {
				e, err := h.Get(ctx, a.EntryID)
				if errors.Is(err, history.ErrNotFound) {
					return failure(a.EntryID, err), nil
				}
				if err != nil {
					return nil, err
				}
				return map[string]any{"status": "success", "entry": e}, nil
			}),

		tools.Typed("delete_chat_history_entries",
			"Delete chat history entries by id. Unknown ids are ignored.",
			tools.Object(map[string]tools.Field{
				"entry_ids": ids(),
			}, "entry_ids"),
			func(ctx context.Context, a historyDeleteArgs) (any, error) {
				res, err := h.Delete(ctx, a.EntryIDs)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"status":  "success",
					"message": fmt.Sprintf("deleted %d entries", res.Deleted),
					"result":  res,
				}, nil
			}),

		tools.Typed("get_chat_history_stats",
			"Get statistics about the chat history: entry count, total size, counts per type and time range.",
			tools.Object(nil),
			func(ctx context.Context, _ struct{}) (any, error) {
				st, err := h.Stats(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"status": "success", "stats": st}, nil
			}),
	}
}
