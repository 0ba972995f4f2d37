package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atlas-agent/atlas/internal/keys"
	"github.com/atlas-agent/atlas/internal/session"
)

func (a *app) secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the configured secret store",
		Long: "Secrets live in the OS keychain, the passphrase-protected vault file or AWS SSM, " +
			"depending on secrets.backend. The model API token is stored as \"" + keys.APITokenSecret + "\".",
	}
	cmd.AddCommand(a.secretSetCmd(), a.secretRmCmd(), a.secretStatusCmd())
	return cmd
}

func (a *app) openKeys(cmd *cobra.Command) (*keys.Manager, error) {
	opts := append([]session.Option{session.WithPassphrase(passphrasePrompt(cmd))}, a.openOpts...)
	return session.OpenKeys(cmd.Context(), a.cfg, opts...)
}

func (a *app) secretSetCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Store a secret, read from the terminal unless --value is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := a.openKeys(cmd)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("value") {
				value, err = readSecret(cmd, args[0])
				if err != nil {
					return err
				}
			}
			if value == "" {
				return errors.New("secret value cannot be empty")
			}

			if err := km.SetSecret(cmd.Context(), args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s.\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "", "Secret value (visible in shell history; prefer the prompt)")
	return cmd
}

func (a *app) secretRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <name>",
		Short: "Delete a secret",
		Long:  "Deleting " + keys.DataKeySecret + " makes the existing history, memories and todos permanently unreadable.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := a.openKeys(cmd)
			if err != nil {
				return err
			}
			if err := km.DeleteSecret(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
			return nil
		},
	}
}

func (a *app) secretStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report which well-known secrets are present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			km, err := a.openKeys(cmd)
			if err != nil {
				return err
			}

			status := make(map[string]string)
			for _, name := range []string{keys.DataKeySecret, keys.SigningKeySecret, keys.APITokenSecret} {
				_, err := km.GetSecret(cmd.Context(), name)
				switch {
				case err == nil:
					status[name] = "present"
				case errors.Is(err, keys.ErrSecretNotFound):
					status[name] = "missing"
				default:
					return err
				}
			}

			if a.jsonOutput() {
				return a.printJSON(cmd, map[string]any{"backend": a.cfg.Secrets.Backend, "secrets": status})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend: %s\n", a.cfg.Secrets.Backend)
			for _, name := range []string{keys.DataKeySecret, keys.SigningKeySecret, keys.APITokenSecret} {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %s\n", name, status[name])
			}
			return nil
		},
	}
}
