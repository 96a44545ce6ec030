package search

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/miner"
)

func TestNewSearchCommand(t *testing.T) {
	cmd := NewSearchCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "search [query]", cmd.Use)
	assert.Equal(t, []string{"s"}, cmd.Aliases)
	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())
	assert.NotNil(t, cmd.RunE)

	for _, name := range []string{"config", "limit", "field", "interactive", "raw"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "10", cmd.Flags().Lookup("limit").DefValue)
}

var t0 = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func seedIndex(t *testing.T) (configPath string, recs []index.Record) {
	t.Helper()
	dataDir := t.TempDir()

	recs = []index.Record{
		{Kind: "group", FromID: "7", Alias: "Alice", Username: "alice", ToID: "-100", Chat: "g", Message: "hello world", Timestamp: t0.Add(time.Minute)},
		{Kind: "group", FromID: "8", Alias: "Bob", ToID: "-100", Chat: "g", Message: "hello again", Timestamp: t0},
		{Kind: "group", FromID: "8", Alias: "Bob", ToID: "-100", Chat: "g", Message: "bye", Timestamp: t0.Add(2 * time.Minute)},
	}

	engine, err := index.Open(filepath.Join(dataDir, index.DirName))
	require.NoError(t, err)
	w := index.NewWriter(engine, dataDir)
	for _, rec := range recs {
		require.NoError(t, w.Append(context.Background(), rec))
	}
	require.NoError(t, engine.Close())

	configPath = filepath.Join(dataDir, "config.json")
	body := `{"data_dir": "` + filepath.ToSlash(dataDir) + `"}`
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))
	return configPath, recs
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewSearchCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// expectedLine is what a stored record prints as after a round trip.
func expectedLine(rec index.Record) string {
	rec.Timestamp = time.Unix(0, rec.Timestamp.UnixNano())
	return miner.FormatHit(rec, config.DefaultTimestampFormat)
}

func TestSearch_PrintsHitsInTimestampOrder(t *testing.T) {
	path, recs := seedIndex(t)

	out, err := execute(t, "--config", path, "hello")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, expectedLine(recs[1]), lines[0])
	assert.Equal(t, expectedLine(recs[0]), lines[1])
}

func TestSearch_Limit(t *testing.T) {
	path, recs := seedIndex(t)

	out, err := execute(t, "--config", path, "--limit", "1", "hello")
	require.NoError(t, err)
	assert.Equal(t, expectedLine(recs[1])+"\n", out)
}

func TestSearch_Field(t *testing.T) {
	path, _ := seedIndex(t)

	out, err := execute(t, "--config", path, "--field", "alias", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "hello world")
	assert.NotContains(t, out, "hello again")
}

func TestSearch_DefaultFieldIsMessage(t *testing.T) {
	path, _ := seedIndex(t)

	out, err := execute(t, "--config", path, "alice")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSearch_FreeTextAndRaw(t *testing.T) {
	path, recs := seedIndex(t)

	out, err := execute(t, "--config", path, "world!")
	require.NoError(t, err)
	assert.Equal(t, expectedLine(recs[0])+"\n", out)

	out, err = execute(t, "--config", path, "--raw", "alias : bob AND bye")
	require.NoError(t, err)
	assert.Equal(t, expectedLine(recs[2])+"\n", out)

	_, err = execute(t, "--config", path, "--raw", "world!")
	require.Error(t, err)
}

func TestSearch_UsageErrors(t *testing.T) {
	path, _ := seedIndex(t)

	tests := []struct {
		name string
		args []string
	}{
		{"negative limit", []string{"--config", path, "--limit=-1", "hello"}},
		{"unknown field", []string{"--config", path, "--field", "secret", "hello"}},
		{"missing query", []string{"--config", path}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, internal.ExitUsage, internal.ExitCode(err))
		})
	}
}

func TestSearch_MissingIndexIsNoInput(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "`+filepath.ToSlash(dataDir)+`"}`), 0o600))

	_, err := execute(t, "--config", path, "hello")
	require.Error(t, err)
	assert.Equal(t, internal.ExitNoInput, internal.ExitCode(err))

	_, statErr := os.Stat(filepath.Join(dataDir, index.DirName))
	assert.True(t, os.IsNotExist(statErr), "search must not create an index")
}

type fakeReader struct {
	lines []string
}

func (f *fakeReader) Readline() (string, error) {
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

type fakeSearcher struct {
	queries []index.Query
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, q index.Query) ([]index.Record, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return []index.Record{{Alias: "A", Chat: "c", ToID: "1", Message: q.Text, Timestamp: t0}}, nil
}

func TestQueryLoop(t *testing.T) {
	s := &fakeSearcher{}
	var out bytes.Buffer

	in := &fakeReader{lines: []string{"", "  first ", "second", "quit", "never"}}
	queryLoop(context.Background(), in, s, &out, index.Query{Field: "message", Limit: 5}, "")

	require.Len(t, s.queries, 2)
	assert.Equal(t, index.Query{Text: "first", Field: "message", Limit: 5}, s.queries[0])
	assert.Equal(t, "second", s.queries[1].Text)
	assert.Contains(t, out.String(), "| A: first")
	assert.Equal(t, []string{"never"}, in.lines)
}

func TestQueryLoop_ErrorsDoNotStopTheLoop(t *testing.T) {
	s := &fakeSearcher{err: errors.New("fts5: syntax error")}
	var out bytes.Buffer

	queryLoop(context.Background(), &fakeReader{lines: []string{"a AND", "b"}}, s, &out, index.Query{}, "")

	assert.Len(t, s.queries, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "Error: fts5: syntax error"))
}
