// Package statepaths resolves the bot's on-disk state locations from
// configuration. Paths may start with "~/", which expands to the current
// user's home directory.
package statepaths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	SessionFilename = "session.json"
	SyncFilename    = "sync.json"

	defaultStoreDir = "~/.askaosus"
)

// StoreDir returns the directory holding session credentials and the sync
// token, from matrix.store_path.
func StoreDir() string {
	return resolveDir(viper.GetString("matrix.store_path"))
}

func resolveDir(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultStoreDir
	}
	return ExpandHomePath(path)
}

// ExpandHomePath rewrites a leading "~" or "~/" to the user's home
// directory. Paths it cannot expand are returned unchanged.
func ExpandHomePath(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}
