package run

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
)

func NewRunCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"r"},
		Short:   "Mine Telegram chats the bot can see",
		Args:    internal.UsageArgs(cobra.NoArgs),
		Example: `  tgminer run
  tgminer run --config /etc/tgminer/config.yaml --debug`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCmd(cmd.Context(), opts)
		},
	}

	internal.AddConfigFlag(cmd, &opts.configPath)
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.jsonLogs, "json-logs", false, "Write logs as JSON")

	return cmd
}
