// ABOUTME: XDG Base Directory support for the bridge's config, journal and cache paths
// ABOUTME: Resolves app directories with HOME fallback and expands $XDG_* and ~ in config values

package xdg

import (
	"os"
	"path/filepath"
	"strings"
)

// AppName names the per-application directory under each XDG base.
const AppName = "ksc-bridge"

// base maps an XDG variable to its default below HOME.
var base = map[string][]string{
	"XDG_CONFIG_HOME": {".config"},
	"XDG_DATA_HOME":   {".local", "share"},
	"XDG_CACHE_HOME":  {".cache"},
}

func baseDir(variable string) string {
	if dir := os.Getenv(variable); dir != "" {
		return dir
	}
	return filepath.Join(append([]string{getHome()}, base[variable]...)...)
}

// ConfigHome returns ~/.config/ksc-bridge or respects XDG_CONFIG_HOME.
func ConfigHome() string {
	return filepath.Join(baseDir("XDG_CONFIG_HOME"), AppName)
}

// DataHome returns ~/.local/share/ksc-bridge or respects XDG_DATA_HOME.
func DataHome() string {
	return filepath.Join(baseDir("XDG_DATA_HOME"), AppName)
}

// CacheHome returns ~/.cache/ksc-bridge or respects XDG_CACHE_HOME.
func CacheHome() string {
	return filepath.Join(baseDir("XDG_CACHE_HOME"), AppName)
}

// DefaultConfigFile is where the bridge looks when no --config is given.
func DefaultConfigFile() string {
	return filepath.Join(ConfigHome(), "config.yaml")
}

// DefaultJournalPath is the journal location when the config names none.
func DefaultJournalPath() string {
	return filepath.Join(DataHome(), "journal.db")
}

// ExpandPath expands a leading $XDG_* variable or ~ in a config path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(getHome(), path[2:])
	}

	// strings.HasPrefix, not filepath.HasPrefix: the variable is text, not a path element.
	for variable := range base {
		if strings.HasPrefix(path, "$"+variable) {
			return strings.Replace(path, "$"+variable, baseDir(variable), 1)
		}
	}

	return path
}

// getHome returns HOME, falling back to the working directory.
func getHome() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}

	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}
