package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/memory"
	"github.com/atlas-agent/atlas/internal/session"
	"github.com/atlas-agent/atlas/internal/validation"
)

func (a *app) memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memory",
		Aliases: []string{"mem"},
		Short:   "Manage the agent's long-term memories",
	}
	cmd.AddCommand(
		a.memoryListCmd(),
		a.memoryAddCmd(),
		a.memoryEditCmd(),
		a.memoryRmCmd(),
		a.memoryClearCmd(),
	)
	return cmd
}

func (a *app) memoryListCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			records, err := s.Memory.List(cmd.Context())
			if err != nil {
				return err
			}
			if category != "" {
				filtered := records[:0]
				for _, r := range records {
					if string(r.Category) == category {
						filtered = append(filtered, r)
					}
				}
				records = filtered
			}

			if a.jsonOutput() {
				return a.printJSON(cmd, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No memories.")
				return nil
			}
			rows := make([][]string, len(records))
			for i, r := range records {
				rows[i] = []string{r.ID, string(r.Category), r.UpdatedAt.Local().Format(time.DateTime), r.Text}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "CATEGORY", "UPDATED", "TEXT"}, rows))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only show one category")
	return cmd
}

func (a *app) memoryAddCmd() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Store a new memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			req := memory.CreateRequest{Category: memory.Category(category), Text: strings.Join(args, " ")}
			if err := validation.New().Struct(req); err != nil {
				return errors.New(validation.Message(err))
			}

			rec, err := s.Memory.Create(cmd.Context(), req.Text, req.Category)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(cmd, rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored memory %s.\n", rec.ID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&category, "category", "c", string(memory.CategoryUser), "One of user, self or relationship")
	return cmd
}

func (a *app) memoryEditCmd() *cobra.Command {
	var text, category string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change the text or category of a memory",
		Args:  cobra.ExactArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			req := memory.UpdateRequest{}
			if cmd.Flags().Changed("text") {
				req.Text = &text
			}
			if cmd.Flags().Changed("category") {
				c := memory.Category(category)
				req.Category = &c
			}
			if req.Text == nil && req.Category == nil {
				return errors.New("nothing to change, pass --text or --category")
			}
			if err := validation.New().Struct(req); err != nil {
				return errors.New(validation.Message(err))
			}

			rec, err := s.Memory.Update(cmd.Context(), args[0], memory.UpdateParams{Text: req.Text, Category: req.Category})
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(cmd, rec)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated memory %s.\n", rec.ID)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "New text")
	cmd.Flags().StringVarP(&category, "category", "c", "", "New category")
	return cmd
}

func (a *app) memoryRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete memories by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			outcomes, err := s.Memory.DeleteMany(cmd.Context(), args)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(cmd, outcomes)
			}
			for _, o := range outcomes {
				if o.Deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", o.ID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", o.ID, o.Message)
				}
			}
			return nil
		}),
	}
}

func (a *app) memoryClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every memory",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
			n, err := s.Memory.Clear(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(cmd, map[string]int{"deleted_count": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d memories.\n", n)
			return nil
		}),
	}
}
