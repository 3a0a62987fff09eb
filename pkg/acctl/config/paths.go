package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "acctl"
	defaultConfigFile    = "config.yaml"
	defaultStateDir      = "accounts"
	defaultIdentityFile  = "identity.age"
)

func configDir() string {
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".acctl")
}

func DefaultConfigPath() string {
	if env := os.Getenv("ACCTL_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(configDir(), defaultConfigFile)
}

// DefaultStatePath is where the file store keeps the snapshot of account name.
func DefaultStatePath(name string) string {
	return filepath.Join(configDir(), defaultStateDir, name+".json")
}

func DefaultIdentityPath() string {
	return filepath.Join(configDir(), defaultIdentityFile)
}
