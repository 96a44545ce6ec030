package chats

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
)

func NewChatsCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations or peers present in the index",
		Args:  internal.UsageArgs(cobra.NoArgs),
		Example: `  tgminer chats
  tgminer chats --peers`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return chatsCmd(cmd, opts)
		},
	}

	internal.AddConfigFlag(cmd, &opts.configPath)
	cmd.Flags().BoolVarP(&opts.peers, "peers", "p", false, "List senders instead of conversations")

	return cmd
}
