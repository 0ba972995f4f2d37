package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/atlas-agent/atlas/internal/session"
)

// readSecret prompts without echo on a terminal and reads one line otherwise,
// so values can be piped in.
func readSecret(cmd *cobra.Command, label string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s (input hidden): ", label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", label, err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}
	return strings.TrimSpace(line), nil
}

func passphrasePrompt(cmd *cobra.Command) session.PassphraseFunc {
	return func() (string, error) {
		pass, err := readSecret(cmd, "Vault passphrase")
		if err != nil {
			return "", err
		}
		if pass == "" {
			return "", errors.New("passphrase cannot be empty")
		}
		return pass, nil
	}
}
