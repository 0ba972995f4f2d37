package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/auth"
)

func (a *app) tokenCmd() *cobra.Command {
	var client string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := a.openKeys(cmd)
			if err != nil {
				return err
			}
			key, err := km.SigningKey(cmd.Context())
			if err != nil {
				return err
			}
			jwtManager, err := auth.NewJWTManager(key, a.cfg.Auth.Expiry)
			if err != nil {
				return err
			}

			tok, err := jwtManager.Issue(client)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return a.printJSON(cmd, tok)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "cli", "Label recorded in the token")
	return cmd
}
