package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idforge/idforge/pkg/config"
)

func newResourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List configured resources and their mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			for _, res := range cfg.Resources {
				priority := "unordered"
				if res.PropagationPriority != nil {
					priority = fmt.Sprintf("%d", *res.PropagationPriority)
				}
				fmt.Printf("%s (connector=%s, priority=%s, primary=%v)\n",
					res.Name, res.Connector, priority, res.PropagationPrimary)
				for _, prov := range res.Provisions {
					fmt.Printf("  %s -> %s\n", prov.AnyKind, prov.ObjectClass)
					for _, item := range prov.Items {
						marker := " "
						if item.ConnObjectKey {
							marker = "*"
						}
						fmt.Printf("   %s %s -> %s (%s)\n", marker, item.IntAttrName, item.ExtAttrName, item.Kind)
					}
				}
			}
			return nil
		},
	}
	return cmd
}
