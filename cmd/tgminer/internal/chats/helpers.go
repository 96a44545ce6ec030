package chats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/miner"
)

type options struct {
	configPath string
	peers      bool
}

// chatEntry is a conversation with the directory its media and raw log
// live in, when that directory exists.
type chatEntry struct {
	index.ChatSummary
	Storage string `json:"storage,omitempty"`
}

func chatsCmd(cmd *cobra.Command, opts options) error {
	cfg, err := internal.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	dir := cfg.IndexDir()
	if _, err := os.Stat(filepath.Join(dir, index.FileName)); err != nil {
		return internal.NoInput(fmt.Errorf("cannot open index in %q: %w", dir, err))
	}
	engine, err := index.Open(dir)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer engine.Close()
	writer := index.NewWriter(engine, cfg.DataDir)

	ctx := cmd.Context()
	var v any
	err = writer.View(func() error {
		if opts.peers {
			peers, err := engine.Peers(ctx)
			v = nonNil(peers)
			return err
		}
		chats, err := engine.Chats(ctx)
		v = chatEntries(cfg, chats)
		return err
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func chatEntries(cfg *config.Config, chats []index.ChatSummary) []chatEntry {
	out := make([]chatEntry, 0, len(chats))
	for _, c := range chats {
		e := chatEntry{ChatSummary: c}
		if dir := storageDir(cfg.DataDir, c); dir != "" {
			if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
				e.Storage = dir
			}
		}
		out = append(out, e)
	}
	return out
}

// storageDir mirrors where the pipeline stores each conversation kind.
func storageDir(dataDir string, c index.ChatSummary) string {
	switch bus.PeerKind(c.Kind) {
	case bus.PeerDirect:
		return filepath.Join(dataDir, miner.DirectChatsDir)
	case bus.PeerGroup, bus.PeerChannel:
		return filepath.Join(dataDir, miner.ChannelsDir, c.ToID)
	default:
		return ""
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
