package memory

import (
	"time"
)

// Category says who a memory is about. It is advisory metadata only.
type Category string

const (
	CategoryUser         Category = "user"
	CategorySelf         Category = "self"
	CategoryRelationship Category = "relationship"
)

// Categories lists every valid Category.
var Categories = []Category{CategoryUser, CategorySelf, CategoryRelationship}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// Record is one long-term memory.
type Record struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateParams selects the fields to change. Nil fields are left alone.
type UpdateParams struct {
	Text     *string
	Category *Category
}

// DeleteOutcome is the per-id result of DeleteMany.
type DeleteOutcome struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message,omitempty"`
}

// Stats counts memories by category.
type Stats struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
}

// CreateRequest is used by the API to create a memory.
type CreateRequest struct {
	Category Category `json:"category" validate:"required,oneof=user self relationship"`
	Text     string   `json:"text" validate:"required,maxwords=100"`
}

// UpdateRequest is used by the API to edit a memory.
type UpdateRequest struct {
	Category *Category `json:"category,omitempty" validate:"omitempty,oneof=user self relationship"`
	Text     *string   `json:"text,omitempty" validate:"omitempty,min=1,maxwords=100"`
}
