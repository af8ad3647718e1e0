package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/idforge/idforge/pkg/config"
	"github.com/idforge/idforge/pkg/mapping"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file.

This command checks:
  - YAML syntax and unknown fields
  - Field-level constraints
  - Mapping structure: one connObjectKey item per provision, at most
    one password item, known transformer identifiers`,
		Example: `  # Validate the default config
  idforge validate

  # Validate a specific file
  idforge validate -c ./idforge.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.CheckTransformers(mapping.NewTransformerRegistry()); err != nil {
				return err
			}
			if _, err := cfg.BuildCatalog(); err != nil {
				return err
			}

			log.Info().
				Str("path", configPath).
				Int("resources", len(cfg.Resources)).
				Msg("Configuration is valid")
			fmt.Printf("%s: OK (%d resources)\n", configPath, len(cfg.Resources))
			return nil
		},
	}
	return cmd
}
