// Package config loads the list of directories tuxdrive should watch
// from a small JSON document, trying a fixed sequence of well-known
// paths in turn.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sentinel errors returned by Load.
var (
	// ErrConfigNotFound means none of the search-path candidates exist.
	ErrConfigNotFound = errors.New("tuxdrive/config: no config file found")
	// ErrHomeDirNotFound means $HOME could not be resolved, so the
	// first (and most important) search candidate could not even be
	// formed.
	ErrHomeDirNotFound = errors.New("tuxdrive/config: could not determine home directory")
	// ErrConfigDirNotFound means every XDG-config-dependent candidate
	// had to be skipped and nothing else matched either.
	ErrConfigDirNotFound = errors.New("tuxdrive/config: could not determine config directory")
)

// PathEntry is one watched root as described in the config file.
type PathEntry struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// Config is the fully parsed, but not yet canonicalized, set of roots
// to watch.
type Config []PathEntry

// PathNotAbsoluteError is returned by Load when an entry's path is
// relative. The watcher's canonicalization step assumes every
// configured path is already absolute.
type PathNotAbsoluteError struct {
	Path string
}

func (e *PathNotAbsoluteError) Error() string {
	return fmt.Sprintf("tuxdrive/config: path is not absolute: %s", e.Path)
}

// Load searches, in order, $HOME/.tuxdriver.json,
// $XDG_CONFIG_HOME/.tuxdriver.json,
// $XDG_CONFIG_HOME/.config/tuxdrive/tuxdrive.json, and
// ./tuxdriver.json, and parses the first one that exists. A parse
// failure on that first match is returned as-is; Load does not fall
// through to the next candidate once one has matched.
func Load() (Config, error) {
	candidates, err := searchPath()
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		info, err := os.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return parse(candidate)
	}
	if configDir, err := os.UserConfigDir(); err != nil || configDir == "" {
		return nil, ErrConfigDirNotFound
	}
	return nil, ErrConfigNotFound
}

func searchPath() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return nil, ErrHomeDirNotFound
	}
	paths := []string{filepath.Join(home, ".tuxdriver.json")}

	if configDir, err := os.UserConfigDir(); err == nil && configDir != "" {
		paths = append(paths,
			filepath.Join(configDir, ".tuxdriver.json"),
			filepath.Join(configDir, ".config", "tuxdrive", "tuxdrive.json"),
		)
	}

	cwd, err := os.Getwd()
	if err == nil {
		paths = append(paths, filepath.Join(cwd, "tuxdriver.json"))
	}
	return paths, nil
}

func parse(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tuxdrive/config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tuxdrive/config: parse %s: %w", path, err)
	}
	for _, entry := range cfg {
		if !filepath.IsAbs(entry.Path) {
			return nil, &PathNotAbsoluteError{Path: entry.Path}
		}
	}
	return cfg, nil
}
