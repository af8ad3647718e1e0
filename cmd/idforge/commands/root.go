package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "idforge",
		Short: "idforge - Identity provisioning engine",
		Long: `idforge resolves canonical identity attributes onto external
resources through configurable mappings and propagates entity lifecycle
changes as per-resource tasks.

Features:
  - Declarative attribute mappings per resource and entity kind
  - Derived attributes via sandboxed expressions
  - Priority-ordered propagation with primary-resource semantics
  - Per-resource outcome reporting and a durable audit trail`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "idforge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResourcesCommand())
	rootCmd.AddCommand(newDemoCommand())

	return rootCmd
}
