package config

import (
	"os"

	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/lib/xdg"
)

// Sources lists the rule files to load.
type Sources struct {
	// Merged in order. Files which do not exist are skipped.
	Paths []string
	// When set, the only file loaded. It must exist.
	Replace string
}

// DefaultSources is the standard search list: system wide, user, then the
// working directory.
func DefaultSources() Sources {
	return Sources{
		Paths: []string{
			"/etc/onchange.toml",
			xdg.ConfigPath("onchange.toml"),
			".onchange.toml",
		},
	}
}

// WithReplace returns a copy of s that only loads path.
func (s Sources) WithReplace(path string) Sources {
	s.Replace = xdg.ExpandHome(path)
	return s
}

// LoadRules builds the rule table from all sources. Any error aborts, no
// partially loaded table is ever returned.
func LoadRules(s Sources, allowExtra bool) (*RuleTable, error) {
	rt := NewRuleTable(allowExtra)
	if s.Replace != "" {
		if err := rt.Load(s.Replace); err != nil {
			return nil, err
		}
		return rt, nil
	}
	for _, path := range s.Paths {
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			log.Tracef("%s: not found, skipped", path)
			continue
		} else if err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		if err := rt.Load(path); err != nil {
			return nil, err
		}
		log.Debugf("%s: loaded, %d extensions known", path, rt.Len())
	}
	return rt, nil
}
