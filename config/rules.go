package config

import (
	"sort"
	"strings"

	"github.com/go-ini/ini"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
)

// A Rule is the default action for a set of file extensions.
type Rule struct {
	Section    string
	Source     string
	Extensions []string
	// nil for rules that only silence the extension
	Command *pathtmpl.Template
	// optional command printing "key: value" lines of extra variables
	ExtraVariables *pathtmpl.Template
}

func (r *Rule) Ignored() bool {
	return r.Command == nil
}

// RuleTable maps file extensions (without leading dot) to rules.
type RuleTable struct {
	byExt      map[string]*Rule
	allowExtra bool
}

// NewRuleTable returns an empty table. When allowExtra is set, rule commands
// may reference variables that are only known at runtime.
func NewRuleTable(allowExtra bool) *RuleTable {
	return &RuleTable{
		byExt:      make(map[string]*Rule),
		allowExtra: allowExtra,
	}
}

// Load parses one rule file and merges it over the current table. Rules
// replace previous ones per extension; extensions not mentioned by the file
// are left untouched. On error the table is not modified.
func (rt *RuleTable) Load(path string) error {
	sections, err := decodeFile(path)
	if err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	staged := make(map[string]*Rule)
	for _, sec := range sections {
		rule, err := rt.compile(path, sec)
		if err != nil {
			return &ConfigError{Path: path, Err: err}
		}
		log.Debugf("%s: [%s] %v command=%q", path, rule.Section,
			rule.Extensions, rule.Command)
		for _, ext := range rule.Extensions {
			staged[ext] = rule
		}
	}
	for ext, rule := range staged {
		rt.byExt[ext] = rule
	}
	return nil
}

func (rt *RuleTable) compile(source string, raw rawSection) (*Rule, error) {
	if len(raw.Extensions) == 0 {
		return nil, errors.Errorf("[%s]: missing extensions", raw.Name)
	}
	rule := &Rule{
		Section:    raw.Name,
		Source:     source,
		Extensions: raw.Extensions,
	}
	var opts []pathtmpl.Option
	if rt.allowExtra || raw.ExtraVariables != nil {
		opts = append(opts, pathtmpl.AllowExtra())
	}
	if raw.ExtraVariables != nil && strings.TrimSpace(*raw.ExtraVariables) != "" {
		t, err := pathtmpl.Compile(*raw.ExtraVariables)
		if err != nil {
			return nil, errors.Wrapf(err, "[%s].extra_variables", raw.Name)
		}
		rule.ExtraVariables = t
	}
	if raw.Command != nil && strings.TrimSpace(*raw.Command) != "" {
		t, err := pathtmpl.Compile(*raw.Command, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "[%s].command", raw.Name)
		}
		rule.Command = t
	}
	return rule, nil
}

// Resolve returns the rule registered for ext, if any.
func (rt *RuleTable) Resolve(ext string) (*Rule, bool) {
	rule, ok := rt.byExt[strings.TrimPrefix(ext, ".")]
	return rule, ok
}

// Extensions returns all extensions with a rule, sorted.
func (rt *RuleTable) Extensions() []string {
	exts := make([]string, 0, len(rt.byExt))
	for ext := range rt.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Rules returns each distinct rule once, in the order of their first
// extension.
func (rt *RuleTable) Rules() []*Rule {
	var rules []*Rule
	seen := make(map[*Rule]bool)
	for _, ext := range rt.Extensions() {
		rule := rt.byExt[ext]
		if !seen[rule] {
			seen[rule] = true
			rules = append(rules, rule)
		}
	}
	return rules
}

func (rt *RuleTable) Len() int {
	return len(rt.byExt)
}

type extList []string

// rawSection is one [section] of a rule file before template compilation.
type rawSection struct {
	Name           string  `ini:"-" toml:"-" yaml:"-" json:"-"`
	Extensions     extList `ini:"extensions" toml:"extensions" yaml:"extensions" json:"extensions" parse:"ParseExtensions"`
	Command        *string `ini:"command" toml:"command" yaml:"command" json:"command"`
	ExtraVariables *string `ini:"extra_variables" toml:"extra_variables" yaml:"extra_variables" json:"extra_variables"`
}

func (s *rawSection) ParseExtensions(_ *ini.Section, key *ini.Key) (any, error) {
	return splitExtensions(key.String()), nil
}

// extensions may be separated by spaces or commas, dots are optional
func splitExtensions(value string) extList {
	var exts extList
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	for _, f := range fields {
		f = strings.TrimPrefix(f, ".")
		if f != "" {
			exts = append(exts, f)
		}
	}
	return exts
}

func (l *extList) set(value any) error {
	switch v := value.(type) {
	case string:
		*l = splitExtensions(v)
	case []any:
		var exts extList
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return errors.Errorf("extensions: expected strings, got %T", item)
			}
			exts = append(exts, splitExtensions(s)...)
		}
		*l = exts
	default:
		return errors.Errorf("extensions: expected a string or a list, got %T", value)
	}
	return nil
}
