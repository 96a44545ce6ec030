package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal/chats"
	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal/migrate"
	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal/run"
	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal/search"
	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal/version"
)

func NewTgminerCommand() *cobra.Command {
	short := fmt.Sprintf("%s tgminer - Passive Telegram chat miner v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:          "tgminer",
		Short:        short,
		Example:      "tgminer run --config config.json",
		SilenceUsage: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return internal.Usage(err)
	})

	cmd.AddCommand(
		run.NewRunCommand(),
		search.NewSearchCommand(),
		chats.NewChatsCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewTgminerCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(internal.ExitCode(err))
	}
}
