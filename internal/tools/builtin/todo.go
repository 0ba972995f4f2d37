package builtin

import (
	"context"

	"github.com/atlas-agent/atlas/internal/todo"
	"github.com/atlas-agent/atlas/internal/tools"
)

type todoCreateArgs struct {
	Todos []struct {
		Text string `json:"text" validate:"required,maxwords=100"`
	} `json:"todos" validate:"required,min=1,dive"`
}

type todoUpdateArgs struct {
	Entries []struct {
		ID     string       `json:"id" validate:"required"`
		Text   *string      `json:"text,omitempty" validate:"omitempty,min=1,maxwords=100"`
		Status *todo.Status `json:"status,omitempty" validate:"omitempty,oneof=new in_progress done"`
	} `json:"entries" validate:"required,min=1,dive"`
}

type todoDeleteArgs struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

func todoTools(s *todo.Store) []tools.Tool {
	status := tools.String("new, in_progress or done").
		WithEnum(string(todo.StatusNew), string(todo.StatusInProgress), string(todo.StatusDone))

	return []tools.Tool{
		tools.Typed("get_todos",
			"Retrieve the ordered to-do list. Always call this before creating or changing todos.",
			tools.Object(nil),
			func(ctx context.Context, _ struct{}) (any, error) {
				items, err := s.List(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"status": "success", "todos": items}, nil
			}),

		tools.Typed("create_todo",
			"Append new to-do items. They start with status new.",
			tools.Object(map[string]tools.Field{
				"todos": tools.Array(
					tools.ObjectField(map[string]tools.Field{
						"text": tools.String("What needs doing."),
					}, "text").Closed(),
					"Todos to create.",
				).WithMinItems(1),
			}, "todos"),
			func(ctx context.Context, a todoCreateArgs) (any, error) {
				texts := make([]string, len(a.Todos))
				for i, t := range a.Todos {
					texts[i] = t.Text
				}
				items, err := s.Create(ctx, texts...)
				if err != nil {
					return nil, err
				}
				out := make([]itemResult, len(items))
				for i, it := range items {
					out[i] = success(it.ID, it)
				}
				return out, nil
			}),

		tools.Typed("update_todo",
			"Update to-do items by id. Each entry may change the text, the status, or both.",
			tools.Object(map[string]tools.Field{
				"entries": tools.Array(
					tools.ObjectField(map[string]tools.Field{
						"id":     tools.String("Todo id."),
						"text":   tools.String("New text."),
						"status": status,
					}, "id").Closed(),
					"Updates to apply.",
				).WithMinItems(1),
			}, "entries"),
			func(ctx context.Context, a todoUpdateArgs) (any, error) {
				out := make([]itemResult, 0, len(a.Entries))
				for _, in := range a.Entries {
					it, err := s.Update(ctx, in.ID, todo.UpdateParams{Text: in.Text, Status: in.Status})
					if err != nil {
						if contained(err, todo.ErrNotFound, todo.ErrEmptyText, todo.ErrInvalidStatus) {
							out = append(out, failure(in.ID, err))
							continue
						}
						return nil, err
					}
					out = append(out, success(it.ID, it))
				}
				return out, nil
			}),

		tools.Typed("delete_todo",
			"Delete to-do items by id.",
			tools.Object(map[string]tools.Field{"ids": ids()}, "ids"),
			func(ctx context.Context, a todoDeleteArgs) (any, error) {
				return s.DeleteMany(ctx, a.IDs)
			}),
	}
}
