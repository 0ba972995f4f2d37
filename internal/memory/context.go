package memory

import (
	"context"
	"fmt"
	"strings"
)

// BuildContext renders the stored memories as a system-prompt section,
// followed by a per-category count so the model can keep its memories
// spread across categories. It returns "" when there are no memories.
func (s *Store) BuildContext(ctx context.Context) (string, error) {
	records, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	return renderContext(records), nil
}

func renderContext(records []Record) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Memories\n")
	for _, r := range records {
		fmt.Fprintf(&b, "- [%s] (%s) %s\n", r.ID, r.Category, r.Text)
	}

	st := statsOf(records)
	b.WriteString("\nMemory balance:")
	for _, c := range Categories {
		fmt.Fprintf(&b, " %s=%d", c, st.ByCategory[c])
	}
	b.WriteString("\n")
	return b.String()
}
