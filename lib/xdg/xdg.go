package xdg

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"git.sr.ht/~rjarry/onchange/lib/log"
)

// assign to a local var to allow mocking in unit tests
var currentUser = user.Current

// HomeDir returns $HOME, falling back on the passwd entry of the current
// user when the variable is unset.
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err == nil {
		return home
	}
	u, e := currentUser()
	if e != nil {
		log.Errorf("HomeDir: %s (while handling %s)", e, err)
		return ""
	}
	return u.HomeDir
}

// ExpandHome joins the fragments and replaces a leading ~ with the home dir.
func ExpandHome(fragments ...string) string {
	res := filepath.Join(fragments...)
	if res == "~" || strings.HasPrefix(res, "~/") {
		res = HomeDir() + strings.TrimPrefix(res, "~")
	}
	return res
}

// TildeHome is the inverse of ExpandHome. Used to shorten displayed paths.
func TildeHome(path string) string {
	home := HomeDir()
	if home == "" {
		return path
	}
	if path == home || strings.HasPrefix(path, home+"/") {
		return "~" + strings.TrimPrefix(path, home)
	}
	return path
}

// ConfigPath returns a path relative to $XDG_CONFIG_HOME, or ~/.config when
// unset. Unlike os.UserConfigDir, ~/.config is used on every platform so
// that the documented ~/.config/onchange.toml location holds on macOS too.
func ConfigPath(paths ...string) string {
	res := filepath.Join(paths...)
	if filepath.IsAbs(res) {
		return res
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" || !filepath.IsAbs(base) {
		base = ExpandHome("~/.config")
	}
	return filepath.Join(base, res)
}
