// Package config loads the churro tool configuration from config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/churro/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// EnvPrefix prefixes the environment variables overriding config keys.
	EnvPrefix = "CHURRO"

	// Config keys.
	KeyRepo   = "repo"
	KeyHead   = "head"
	KeyCreate = "create"
	KeyBare   = "bare"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# churro configuration

# Repository directory (optional; overridable by --repo or CHURRO_REPO)
# repo:

# Branch to read and commit to; HEAD selects the default branch
head: HEAD

# Create the repository on first use
create: true

# New repositories keep their metadata directly in the repository directory
bare: false
`

// Load reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run. A missing config.yaml
// is not an error.
//
// CHURRO_HEAD and CHURRO_BARE override the file. The repository location is
// resolved separately by paths.ResolveRepo, which gives the file precedence
// over CHURRO_REPO.
func Load(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(KeyHead, types.HeadCurrent)
	v.SetDefault(KeyCreate, true)
	v.SetDefault(KeyBare, false)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(EnvPrefix)
	if err := v.BindEnv(KeyHead); err != nil {
		return nil, err
	}
	if err := v.BindEnv(KeyBare); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// Repository returns the repository configuration held by v. Repo is the
// raw config value and may be empty.
func Repository(v *viper.Viper) types.Config {
	return types.Config{
		Repo:   v.GetString(KeyRepo),
		Head:   v.GetString(KeyHead),
		Create: v.GetBool(KeyCreate),
		Bare:   v.GetBool(KeyBare),
	}
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
