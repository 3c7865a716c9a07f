package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(fs afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configContents, err := afero.ReadFile(fs, filepath.Join(path, ConfigurationName))
	if err != nil {
		return nil, err
	}
	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// Initialize writes the default configuration into the directory,
// creating it if needed. It refuses to clobber an existing file.
func Initialize(fs afero.Fs, path string) (*Configuration, error) {
	if err := fs.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	configPath := filepath.Join(path, ConfigurationName)
	if exists, err := afero.Exists(fs, configPath); err != nil {
		return nil, err
	} else if exists {
		return nil, fmt.Errorf("%s already exists", configPath)
	}

	if err := afero.WriteFile(fs, configPath, defaultConfigData, 0600); err != nil {
		return nil, err
	}
	return Load(fs, path)
}

// LoadOrDefault loads the configuration from the directory, falling
// back to the embedded default if no file exists there.
func LoadOrDefault(fs afero.Fs, path string) (*Configuration, error) {
	cfg, err := Load(fs, path)
	if os.IsNotExist(err) {
		return defaultConfig(), nil
	}
	return cfg, err
}
