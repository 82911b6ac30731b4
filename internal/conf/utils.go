package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/playrec/internal/errors"
)

// GetDefaultConfigPaths returns the directories searched for config.yaml, most specific
// first: the working directory, the per-user directory and a system-wide one.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("config").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	if runtime.GOOS == "windows" {
		return []string{".", filepath.Join(homeDir, "AppData", "Roaming", "playrec")}, nil
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "playrec"),
		"/etc/playrec",
	}, nil
}

// UserConfigPath returns where `playrec config --save` writes by default.
func UserConfigPath() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	return filepath.Join(paths[1], "config.yaml"), nil
}
