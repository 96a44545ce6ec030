package migrate

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	var opts migrate.Options

	cmd := &cobra.Command{
		Use:   "migrate <legacy-config>",
		Short: "Convert a legacy TGMiner config to the tgminer format",
		Args:  internal.UsageArgs(cobra.ExactArgs(1)),
		Example: `  tgminer migrate old/config.json
  tgminer migrate old/config.json --dry-run
  tgminer migrate config.json --output config.json --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.LegacyPath = args[0]
			result, err := migrate.Run(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if !opts.DryRun {
				migrate.PrintSummary(cmd.OutOrStdout(), result)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "",
		"Output config path (default: ./config.json)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Print the converted config without writing it")
	cmd.Flags().BoolVar(&opts.Force, "force", false,
		"Overwrite an existing output file, keeping a .bak copy")

	return cmd
}
