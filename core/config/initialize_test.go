package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitialize(t *testing.T) {
	tempDir := t.TempDir()
	if _, err := Initialize(tempDir, zap.NewNop()); err != nil {
		t.Fatal(err)
	}

	// Check that the config is valid
	cfg, err := Load(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("CreateRunLog", func(t *testing.T) {
		fd, err := cfg.CreateRunLog("TD3_Hopper-v3_seed1.log")
		assert.Nil(t, err)
		fd.Close()

		_, err = os.Stat(filepath.Join(tempDir, RunLogsDirName, "TD3_Hopper-v3_seed1.log"))
		assert.Nil(t, err)
	})

	t.Run("OpenAppLog", func(t *testing.T) {
		fd, err := cfg.OpenAppLog()
		assert.Nil(t, err)
		fd.Close()
	})

	t.Run("ReadAppLog", func(t *testing.T) {
		fd, err := cfg.ReadAppLog()
		assert.Nil(t, err)
		fd.Close()
	})

	t.Run("DatabasePath", func(t *testing.T) {
		assert.Equal(t, filepath.Join(tempDir, DatabaseName), cfg.DatabasePath())
	})

	t.Run("LoadConfigFile", func(t *testing.T) {
		byFile, err := Load(filepath.Join(tempDir, ConfigurationName))
		assert.Nil(t, err)
		assert.Equal(t, cfg.Sweep, byFile.Sweep)
	})
}

func TestInitializeKeepsExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	custom := []byte("sweep: {}\n")
	require.Nil(t, afero.WriteFile(fs, ConfigurationName, custom, 0600))

	require.Nil(t, initializeFs(fs, zap.NewNop()))

	contents, err := afero.ReadFile(fs, ConfigurationName)
	require.Nil(t, err)
	assert.Equal(t, custom, contents)

	isDir, err := afero.IsDir(fs, RunLogsDirName)
	assert.Nil(t, err)
	assert.True(t, isDir)
}

func TestLoadRejectsInvalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.Nil(t, afero.WriteFile(fs, ConfigurationName, []byte("sweep:\n  name: x\n"), 0600))

	_, err := LoadFs(fs)
	assert.NotNil(t, err)

	require.Nil(t, afero.WriteFile(fs, ConfigurationName, []byte("unknown_field: 1\n"), 0600))
	_, err = LoadFs(fs)
	assert.NotNil(t, err)
}

func TestUsePreset(t *testing.T) {
	cfg := defaultConfig()
	require.Nil(t, cfg.UsePreset("ddpg-bipedal"))
	assert.Equal(t, "DDPG", cfg.Sweep.Algorithm)

	assert.ErrorIs(t, cfg.UsePreset("missing"), ErrUnknownPreset)
}
