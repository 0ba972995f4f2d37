// Package builtin registers the tools every session exposes to the model:
// chat history maintenance, long-term memory CRUD and the to-do list.
package builtin

import (
	"errors"

	"github.com/atlas-agent/atlas/internal/history"
	"github.com/atlas-agent/atlas/internal/memory"
	"github.com/atlas-agent/atlas/internal/todo"
	"github.com/atlas-agent/atlas/internal/tools"
)

// Stores are the collections the built-in tools operate on. Nil stores skip
// their tool group.
type Stores struct {
	History *history.Store
	Memory  *memory.Store
	Todo    *todo.Store
}

// Register adds every built-in tool whose store is present.
func Register(reg *tools.Registry, s Stores) error {
	var all []tools.Tool
	if s.History != nil {
		all = append(all, historyTools(s.History)...)
	}
	if s.Memory != nil {
		all = append(all, memoryTools(s.Memory)...)
	}
	if s.Todo != nil {
		all = append(all, todoTools(s.Todo)...)
	}

	var errs []error
	for _, t := range all {
		errs = append(errs, reg.Register(t))
	}
	return errors.Join(errs...)
}

// itemResult is the per-item outcome of a batch tool call.
type itemResult struct {
	Status  string `json:"status"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
	Item    any    `json:"item,omitempty"`
}

func success(id string, item any) itemResult {
	return itemResult{Status: "success", ID: id, Item: item}
}

func failure(id string, err error) itemResult {
	return itemResult{Status: "error", ID: id, Message: err.Error()}
}

// contained reports whether a per-item error may be reported back to the
// model. Storage and key failures are not item errors and abort the batch.
func contained(err error, recoverable ...error) bool {
	for _, r := range recoverable {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

func ids() tools.Field {
	return tools.Array(tools.String("id"), "ids to delete").WithMinItems(1)
}
