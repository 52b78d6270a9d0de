package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Initialize writes a default configuration to dir if one doesn't already
// exist and creates the directories runs write into.
func Initialize(dir string, logger *zap.Logger) (*Configuration, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	base := afero.NewBasePathFs(afero.NewOsFs(), dir)
	if err := initializeFs(base, logger.With(zap.String("dir", dir))); err != nil {
		return nil, err
	}
	return Load(dir)
}

func initializeFs(base afero.Fs, logger *zap.Logger) error {
	_, err := base.Stat(ConfigurationName)
	switch {
	case err == nil:
		logger.Info("Config already exists, skipping", zap.String("file", ConfigurationName))
	case errors.Is(err, fs.ErrNotExist):
		logger.Info("Writing default config", zap.String("file", ConfigurationName))
		if err := afero.WriteFile(base, ConfigurationName, defaultConfigData, 0600); err != nil {
			return err
		}
	default:
		return err
	}

	logger.Info("Creating run log directory", zap.String("dir", filepath.Clean(RunLogsDirName)))
	return base.MkdirAll(RunLogsDirName, 0700)
}
