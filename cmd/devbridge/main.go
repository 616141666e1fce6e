package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"devbridge-go/internal/config"
)

var version = "v0.1.0" // injected by -ldflags during build

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI. Flags bind into one viper instance so
// DEVBRIDGE_* variables and flags share a single precedence order.
func newRootCommand() *cobra.Command {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "devbridge",
		Short:         "Multi-tenant MCP gateway for GitHub and ClickUp",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("data-dir", "d", "", "Data directory path (default: ~/.devbridge)")
	flags.StringP("listen", "l", "", "Listen address (default :3000)")
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.Bool("log-to-file", false, "Also write logs to a rotated file")
	flags.String("log-dir", "", "Custom log directory (overrides the standard OS location)")
	mustBind(v, flags, "config", "data-dir", "listen", "log-level", "log-to-file", "log-dir")

	rootCmd.AddCommand(
		newServeCommand(v),
		newSecretsCommand(),
		newConfigCommand(v),
		newHealthCommand(v),
	)
	return rootCmd
}

func mustBind(v *viper.Viper, flags *pflag.FlagSet, names ...string) {
	for _, name := range names {
		if err := v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// loadConfig reads the configuration for commands that do not start the
// gateway. Secret references are left unexpanded.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
