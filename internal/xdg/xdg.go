// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Package xdg locates zac's files under the XDG base directories.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "zac"
	configFileName = "config.yaml"
)

// ConfigDir returns $XDG_CONFIG_HOME/zac, or ~/.config/zac when the
// variable is unset.
func ConfigDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", oops.Code("XDG_HOME_UNKNOWN").Wrapf(err, "resolve home directory")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of config.yaml in ConfigDir if that
// file exists. It returns "" otherwise.
func DefaultConfigFile() string {
	dir, err := ConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, configFileName)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return ""
	}
	return path
}
