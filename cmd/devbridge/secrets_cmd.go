package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devbridge-go/internal/cli/output"
	"devbridge-go/internal/secret"
)

const secretsTimeout = 30 * time.Second

// newSecretsCommand manages values referenced from the config file as
// ${keyring:name} or ${env:NAME}.
func newSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "Store, retrieve and delete secrets referenced from the configuration, such as OAuth client secrets.",
	}
	cmd.AddCommand(newSecretsSetCommand(), newSecretsGetCommand(), newSecretsDeleteCommand(), newSecretsListCommand())
	return cmd
}

func newSecretsSetCommand() *cobra.Command {
	var (
		secretType string
		fromEnv    string
	)
	cmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret",
		Long:  "Store a secret. Without a value it is read from --from-env, or from stdin without echo.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			var value string
			switch {
			case len(args) == 2:
				value = args[1]
			case fromEnv != "":
				value = os.Getenv(fromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is not set or empty", fromEnv)
				}
			default:
				fmt.Fprint(cmd.ErrOrStderr(), "Enter secret value: ")
				v, err := readSecret(cmd.InOrStdin())
				fmt.Fprintln(cmd.ErrOrStderr())
				if err != nil {
					return fmt.Errorf("failed to read secret: %w", err)
				}
				value = v
			}
			if value == "" {
				return fmt.Errorf("secret value cannot be empty")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), secretsTimeout)
			defer cancel()
			if err := secret.NewResolver().Store(ctx, secret.Ref{Type: secretType, Name: name}, value); err != nil {
				return fmt.Errorf("failed to store secret: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' stored in %s\n", name, secretType)
			fmt.Fprintf(cmd.OutOrStdout(), "Use in config: ${%s:%s}\n", secretType, name)
			return nil
		},
	}
	cmd.Flags().StringVar(&secretType, "type", secret.TypeKeyring, "Secret provider type")
	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read the value from this environment variable")
	return cmd
}

func newSecretsGetCommand() *cobra.Command {
	var (
		secretType string
		masked     bool
	)
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), secretsTimeout)
			defer cancel()
			value, err := secret.NewResolver().Resolve(ctx, secret.Ref{Type: secretType, Name: args[0]})
			if err != nil {
				return fmt.Errorf("failed to retrieve secret: %w", err)
			}
			if masked {
				value = secret.Mask(value)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], value)
			return nil
		},
	}
	cmd.Flags().StringVar(&secretType, "type", secret.TypeKeyring, "Secret provider type (keyring, env)")
	cmd.Flags().BoolVar(&masked, "masked", true, "Mask the value")
	return cmd
}

func newSecretsDeleteCommand() *cobra.Command {
	var secretType string
	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"del"},
		Short:   "Delete a secret",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), secretsTimeout)
			defer cancel()
			if err := secret.NewResolver().Delete(ctx, secret.Ref{Type: secretType, Name: args[0]}); err != nil {
				return fmt.Errorf("failed to delete secret: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret '%s' deleted from %s\n", args[0], secretType)
			return nil
		},
	}
	cmd.Flags().StringVar(&secretType, "type", secret.TypeKeyring, "Secret provider type")
	return cmd
}

func newSecretsListCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored secret names (values are never shown)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := output.NewFormatter(output.ResolveFormat(format, os.LookupEnv))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), secretsTimeout)
			defer cancel()

			refs := secret.NewResolver().ListAll(ctx)
			rows := make([][]string, 0, len(refs))
			for _, r := range refs {
				rows = append(rows, []string{r.Name, r.Type, r.Original})
			}
			out, err := f.FormatTable([]string{"NAME", "TYPE", "REFERENCE"}, rows)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "", "Output format (table, json, yaml)")
	return cmd
}

// readSecret reads one line, without echo when in is a terminal.
func readSecret(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		return strings.TrimSpace(string(b)), err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
