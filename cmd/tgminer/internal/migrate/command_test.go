package migrate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMigrateCommand(t *testing.T) {
	cmd := NewMigrateCommand()

	require.NotNil(t, cmd)

	assert.Equal(t, "migrate <legacy-config>", cmd.Use)
	assert.Equal(t, "Convert a legacy TGMiner config to the tgminer format", cmd.Short)

	assert.Empty(t, cmd.Aliases)

	assert.True(t, cmd.HasExample())
	assert.False(t, cmd.HasSubCommands())

	assert.Nil(t, cmd.Run)
	assert.NotNil(t, cmd.RunE)

	assert.Nil(t, cmd.PersistentPreRun)
	assert.Nil(t, cmd.PersistentPostRun)

	assert.True(t, cmd.HasFlags())

	assert.NotNil(t, cmd.Flags().Lookup("output"))
	assert.NotNil(t, cmd.Flags().Lookup("dry-run"))
	assert.NotNil(t, cmd.Flags().Lookup("force"))
}

func TestMigrateCommand_Writes(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "legacy.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"api_key": {"id": 1, "hash": "h"}, "data_dir": "mined"}`), 0o600))
	output := filepath.Join(dir, "config.json")

	cmd := NewMigrateCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{legacy, "--output", output})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Config written to "+output)
	assert.Contains(t, out.String(), "telegram.token")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data_dir": "mined"`)
}
