package run

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/tgminer/cmd/tgminer/internal"
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/miner"
)

func TestNewRunCommand(t *testing.T) {
	cmd := NewRunCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "run", cmd.Use)
	assert.Equal(t, []string{"r"}, cmd.Aliases)
	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.NotNil(t, cmd.Flags().Lookup("config"))
	assert.NotNil(t, cmd.Flags().Lookup("debug"))
	assert.NotNil(t, cmd.Flags().Lookup("json-logs"))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunCmd_MissingExplicitConfig(t *testing.T) {
	err := runCmd(context.Background(), options{configPath: filepath.Join(t.TempDir(), "nope.json")})
	require.Error(t, err)
	assert.Equal(t, internal.ExitNoInput, internal.ExitCode(err))
}

func TestRunCmd_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `{"workers": 0}`)

	err := runCmd(context.Background(), options{configPath: path})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfig)
	assert.Equal(t, internal.ExitConfig, internal.ExitCode(err))
}

func TestRunCmd_MissingToken(t *testing.T) {
	t.Setenv("TGMINER_TELEGRAM_TOKEN", "")
	path := writeConfig(t, `{"data_dir": "`+filepath.ToSlash(t.TempDir())+`"}`)

	err := runCmd(context.Background(), options{configPath: path})
	require.Error(t, err)
	assert.Equal(t, internal.ExitConfig, internal.ExitCode(err))
}

func TestOpenIndex(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")

	engine, err := openIndex(cfg)
	require.NoError(t, err)
	defer engine.Close()

	assert.Equal(t, filepath.Join(cfg.DataDir, index.DirName, index.FileName), engine.Path())
	_, err = os.Stat(engine.Path())
	assert.NoError(t, err)
}

func TestOpenIndex_DataDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(file, nil, 0o600))

	cfg := config.DefaultConfig()
	cfg.DataDir = file

	_, err := openIndex(cfg)
	require.Error(t, err)
	assert.Equal(t, internal.ExitCantCreat, internal.ExitCode(err))
}

func TestMetricsServer(t *testing.T) {
	m := miner.NewMetrics()
	m.Events.WithLabelValues("done").Inc()
	srv := newMetricsServer("127.0.0.1:0", m)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tgminer_events_total{outcome="done"} 1`)
}

func TestServeMetrics_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := newMetricsServer("127.0.0.1:0", miner.NewMetrics())
	assert.NoError(t, serveMetrics(ctx, srv))
}
