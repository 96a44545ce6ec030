package search

import (
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
)

const defaultLimit = 10

func NewSearchCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:     "search [query]",
		Aliases: []string{"s"},
		Short:   "Full-text search over mined messages",
		Args: internal.UsageArgs(func(cmd *cobra.Command, args []string) error {
			if opts.interactive {
				return cobra.MaximumNArgs(1)(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		}),
		Example: `  tgminer search hello
  tgminer search --limit 0 'hello OR bye'
  tgminer search --field alias alice
  tgminer search --raw 'alias : alice AND hel*'
  tgminer search --interactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return searchCmd(cmd, opts, args)
		},
	}

	internal.AddConfigFlag(cmd, &opts.configPath)
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", defaultLimit, "Results limit, 0 for no limit")
	cmd.Flags().StringVarP(&opts.field, "field", "f", "", "Field to search (message, alias, username, chat, media; default message)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Pass the query through as FTS5 syntax")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Read queries from a prompt")

	return cmd
}
