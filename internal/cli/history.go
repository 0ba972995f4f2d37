package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/session"
)

func (a *app) historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history",
		Aliases: []string{"hist"},
		Short:   "Inspect and prune the chat history",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List history entries without their content",
			Args:  cobra.NoArgs,
			RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
				meta, err := s.History.ListMetadata(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return a.printJSON(cmd, meta)
				}
				if len(meta) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No history.")
					return nil
				}
				rows := make([][]string, len(meta))
				for i, m := range meta {
					rows[i] = []string{m.ID, m.Timestamp.Local().Format(time.DateTime), string(m.Kind), strconv.Itoa(m.Size)}
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "TIME", "KIND", "SIZE"}, rows))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print one entry with its content",
			Args:  cobra.ExactArgs(1),
			RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
				entry, err := s.History.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.printJSON(cmd, entry)
			}),
		},
		&cobra.Command{
			Use:   "rm <id>...",
			Short: "Delete entries by id",
			Args:  cobra.MinimumNArgs(1),
			RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
				res, err := s.History.Delete(cmd.Context(), args)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return a.printJSON(cmd, res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries, %d remaining.\n", res.Deleted, res.Remaining)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete the whole chat history",
			Args:  cobra.NoArgs,
			RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
				res, err := s.History.DeleteAll(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return a.printJSON(cmd, res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries.\n", res.Deleted)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Summarise the chat history",
			Args:  cobra.NoArgs,
			RunE: a.withSession(func(cmd *cobra.Command, s *session.Session, args []string) error {
				st, err := s.History.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return a.printJSON(cmd, st)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Entries: %d (%d bytes)\n", st.TotalEntries, st.TotalBytes)
				for kind, n := range st.ByKind {
					fmt.Fprintf(out, "  %-12s %d\n", kind, n)
				}
				if st.OldestTS != nil {
					fmt.Fprintf(out, "Oldest:  %s\nNewest:  %s\n",
						st.OldestTS.Local().Format(time.DateTime), st.NewestTS.Local().Format(time.DateTime))
				}
				return nil
			}),
		},
	)
	return cmd
}
