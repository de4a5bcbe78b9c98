package dispatch

import (
	"git.sr.ht/~rjarry/onchange/config"
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
)

type ActionSource int

const (
	// report only
	NoAction ActionSource = iota
	// command given on the command line
	Explicit
	// command of the rule matching the file extension
	FromRule
)

func (s ActionSource) String() string {
	switch s {
	case Explicit:
		return "explicit"
	case FromRule:
		return "rule"
	}
	return "none"
}

type Action struct {
	Source   ActionSource
	Template *pathtmpl.Template
	// set when Source is FromRule
	Rule *config.Rule
}

func (a *Action) None() bool {
	return a.Source == NoAction
}

// resolve picks the action for a change. An explicit command always wins,
// otherwise the rule registered for the extension, if it has a command.
func resolve(explicit *pathtmpl.Template, rules *config.RuleTable, ext string) Action {
	if explicit != nil {
		return Action{Source: Explicit, Template: explicit}
	}
	if rules == nil {
		return Action{}
	}
	rule, ok := rules.Resolve(ext)
	if !ok || rule.Ignored() {
		return Action{Rule: rule}
	}
	return Action{Source: FromRule, Template: rule.Command, Rule: rule}
}
