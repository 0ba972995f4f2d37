package builtin

import (
	"context"

	"github.com/atlas-agent/atlas/internal/memory"
	"github.com/atlas-agent/atlas/internal/tools"
)

var categoryEnum = []string{
	string(memory.CategoryUser),
	string(memory.CategorySelf),
	string(memory.CategoryRelationship),
}

type memoryCreateArgs struct {
	Memories []struct {
		Category memory.Category `json:"category" validate:"required,oneof=user self relationship"`
		Text     string          `json:"text" validate:"required,maxwords=100"`
	} `json:"memories" validate:"required,min=1,dive"`
}

type memoryUpdateArgs struct {
	Entries []struct {
		ID       string           `json:"id" validate:"required"`
		Text     *string          `json:"text,omitempty" validate:"omitempty,min=1,maxwords=100"`
		Category *memory.Category `json:"category,omitempty" validate:"omitempty,oneof=user self relationship"`
	} `json:"entries" validate:"required,min=1,dive"`
}

type memoryDeleteArgs struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func memoryTools(m *memory.Store) []tools.Tool {
	category := tools.String("'user' (about them), 'self' (about you), 'relationship' (about your bond)").WithEnum(categoryEnum...)

	return []tools.Tool{
		tools.Typed("get_memories",
			"Retrieve all stored memories with per-category counts. Use the counts to keep memories balanced across user, self and relationship.",
			tools.Object(nil),
			func(ctx context.Context, _ struct{}) (any, error) {
				records, err := m.List(ctx)
				if err != nil {
					return nil, err
				}
				st, err := m.Stats(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"status": "success", "memories": records, "stats": st}, nil
			}),

		tools.Typed("create_memory",
			"Store new memories, one fact each, at most 100 words. Categories: 'user' (facts about the user), 'self' (your traits and opinions), 'relationship' (how you relate).",
			tools.Object(map[string]tools.Field{
				"memories": tools.Array(
					tools.ObjectField(map[string]tools.Field{
						"category": category,
						"text":     tools.String("Memory content."),
					}, "category", "text").Closed(),
					"Memories to store.",
				).WithMinItems(1),
			}, "memories"),
			func(ctx context.Context, a memoryCreateArgs) (any, error) {
				out := make([]itemResult, 0, len(a.Memories))
				for _, in := range a.Memories {
					rec, err := m.Create(ctx, in.Text, in.Category)
					if err != nil {
						if contained(err, memory.ErrEmptyText, memory.ErrInvalidCategory) {
							out = append(out, failure("", err))
							continue
						}
						return nil, err
					}
					out = append(out, success(rec.ID, rec))
				}
				return out, nil
			}),

		tools.Typed("update_memory",
			"Modify existing memories by id. Each entry may change the text, the category, or both.",
			tools.Object(map[string]tools.Field{
				"entries": tools.Array(
					tools.ObjectField(map[string]tools.Field{
						"id":       tools.String("The memory id to update."),
						"text":     tools.String("New text, omit to keep the current text."),
						"category": category,
					}, "id").Closed(),
					"Updates to apply.",
				).WithMinItems(1),
			}, "entries"),
			func(ctx context.Context, a memoryUpdateArgs) (any, error) {
				out := make([]itemResult, 0, len(a.Entries))
				for _, in := range a.Entries {
					rec, err := m.Update(ctx, in.ID, memory.UpdateParams{Text: in.Text, Category: in.Category})
					if err != nil {
						if contained(err, memory.ErrNotFound, memory.ErrEmptyText, memory.ErrInvalidCategory) {
							out = append(out, failure(in.ID, err))
							continue
						}
						return nil, err
					}
					out = append(out, success(rec.ID, rec))
				}
				return out, nil
			}),

		tools.Typed("delete_memory",
			"Permanently remove memories by id.",
			tools.Object(map[string]tools.Field{"ids": ids()}, "ids"),
			func(ctx context.Context, a memoryDeleteArgs) (any, error) {
				return m.DeleteMany(ctx, a.IDs)
			}),
	}
}
