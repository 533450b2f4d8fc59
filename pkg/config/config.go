// Package config loads each service's per-process JSON configuration file,
// mirroring the LWComm::GetConfigPath directory convention the original
// source relied on (§6): one JSON file per service, found in a single
// configurable directory, with no SQL schema or migration concerns — the
// SQLite schema itself belongs to pkg/alarm's Store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// configDirEnv overrides the config directory; unset falls back to
// DefaultDir, matching LWComm::GetConfigPath's single fixed install
// directory when no override is present.
const configDirEnv = "LWBUS_CONFIG_DIR"

// DefaultDir is used when LWBUS_CONFIG_DIR is unset.
const DefaultDir = "/etc/lwbus"

// Dir returns the directory cmd/ binaries read their config file from.
func Dir() string {
	if d := os.Getenv(configDirEnv); d != "" {
		return d
	}
	return DefaultDir
}

// Path returns the config file path for service (e.g. "lwhub", "driverd",
// "alarmd") — "<Dir()>/<service>.json".
func Path(service string) string {
	return filepath.Join(Dir(), service+".json")
}

// Load reads and JSON-decodes service's config file into out.
func Load(service string, out any) error {
	path := Path(service)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}
