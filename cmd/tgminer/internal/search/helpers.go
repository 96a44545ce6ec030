package search

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/miner"
)

const historyFile = ".tgminer_search_history"

type options struct {
	configPath  string
	limit       int
	field       string
	interactive bool
	raw         bool
}

type searcher interface {
	Search(ctx context.Context, q index.Query) ([]index.Record, error)
}

type lineReader interface {
	Readline() (string, error)
}

func searchCmd(cmd *cobra.Command, opts options, args []string) error {
	if opts.limit < 0 {
		return internal.Usage(fmt.Errorf("query results limit cannot be less than 0, got %d", opts.limit))
	}
	if opts.field != "" && !slices.Contains(index.SearchFields, opts.field) {
		return internal.Usage(fmt.Errorf("unknown search field %q (allowed: %s)", opts.field,
			strings.Join(index.SearchFields, ", ")))
	}

	cfg, err := internal.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	writer, closeIndex, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	q := index.Query{Field: opts.field, Limit: opts.limit, Raw: opts.raw}

	if len(args) == 1 {
		q.Text = args[0]
		if err := runQuery(ctx, writer, out, q, cfg.TimestampFormat); err != nil {
			return err
		}
	}
	if opts.interactive {
		interactiveMode(ctx, writer, out, q, cfg)
	}
	return nil
}

// openIndex opens an existing index for reading. Search never creates one.
func openIndex(cfg *config.Config) (*index.Writer, func(), error) {
	dir := cfg.IndexDir()
	if _, err := os.Stat(filepath.Join(dir, index.FileName)); err != nil {
		return nil, nil, internal.NoInput(fmt.Errorf("cannot open index in %q: %w", dir, err))
	}
	engine, err := index.Open(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open index: %w", err)
	}
	return index.NewWriter(engine, cfg.DataDir), func() { engine.Close() }, nil
}

// runQuery prints the hits of q in timestamp order, one raw log line each.
func runQuery(ctx context.Context, s searcher, out io.Writer, q index.Query, layout string) error {
	hits, err := s.Search(ctx, q)
	if err != nil {
		return err
	}
	for _, rec := range hits {
		fmt.Fprintln(out, miner.FormatHit(rec, layout))
	}
	return nil
}

func interactiveMode(ctx context.Context, s searcher, out io.Writer, q index.Query, cfg *config.Config) {
	prompt := fmt.Sprintf("%s search: ", internal.Logo)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(cfg.DataDir, historyFile),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(out, "Error initializing readline: %v\n", err)
		fmt.Fprintln(out, "Falling back to simple input mode...")
		queryLoop(ctx, &simpleReader{r: bufio.NewReader(os.Stdin), out: out, prompt: prompt}, s, out, q, cfg.TimestampFormat)
		return
	}
	defer rl.Close()

	queryLoop(ctx, rl, s, out, q, cfg.TimestampFormat)
}

// queryLoop runs every line read from in as a query until exit, quit,
// interrupt or end of input.
func queryLoop(ctx context.Context, in lineReader, s searcher, out io.Writer, q index.Query, layout string) {
	for {
		line, err := in.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		q.Text = input
		if err := runQuery(ctx, s, out, q, layout); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

type simpleReader struct {
	r      *bufio.Reader
	out    io.Writer
	prompt string
}

func (s *simpleReader) Readline() (string, error) {
	fmt.Fprint(s.out, s.prompt)
	line, err := s.r.ReadString('\n')
	if err != nil && line != "" && errors.Is(err, io.EOF) {
		return line, nil
	}
	return line, err
}
