package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"git.sr.ht/~rjarry/onchange/config"
	"git.sr.ht/~rjarry/onchange/lib/dispatch"
	"git.sr.ht/~rjarry/onchange/lib/engine"
	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
	"git.sr.ht/~rjarry/onchange/lib/report"
	"git.sr.ht/~rjarry/onchange/lib/xdg"
	"git.sr.ht/~rjarry/onchange/models"
)

const longHelp = `Watch files and directories, print a message and run a command for every
change.

The command is given after "--". Without one, the command of the rule
matching the extension of the changed file is run, if any. Rules are read
from /etc/onchange.toml, ~/.config/onchange.toml and ./.onchange.toml,
later files overriding earlier ones per extension, or only from the file
given with --config.

Templates may reference {path}, {rpath}, {dir}, {rdir}, {name}, {ext},
{name.ext}, {pwd} and {rname}. Use {{ and }} for literal braces.`

type Opts struct {
	Duration         int
	Debounce         int
	Recursive        bool
	Async            bool
	Jobs             int
	Template         string
	Config           string
	Delay            time.Duration
	RenderOnly       bool
	TrialRun         bool
	Ignore           []string
	VariablesCommand string
	Poll             bool
	Shell            string
	NoShell          bool
	Color            string
	LogFile          string
	LogLevel         string
	ListRules        bool

	debounceSet bool
	logLevelSet bool
}

func newRootCommand() *cobra.Command {
	var o Opts
	cmd := &cobra.Command{
		Use:           "onchange [OPTIONS] <WATCH>... [-- [COMMAND]...]",
		Short:         "Run commands when files change",
		Long:          longHelp,
		Version:       log.BuildInfo,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.debounceSet = cmd.Flags().Changed("debounce")
			o.logLevelSet = cmd.Flags().Changed("log-level")
			watch, command := splitArgs(args, cmd.ArgsLenAtDash())
			return o.run(cmd.Context(), cmd.OutOrStdout(), watch, command)
		},
	}
	cmd.SetVersionTemplate("onchange {{.Version}}\n")

	f := cmd.Flags()
	f.SortFlags = false
	f.IntVarP(&o.Duration, "duration", "d", 500,
		"poll interval and default debounce window in milliseconds")
	f.IntVarP(&o.Debounce, "debounce", "D", 500,
		"debounce window in milliseconds (default: --duration)")
	f.BoolVarP(&o.Recursive, "recursive", "r", false,
		"watch directories recursively")
	f.BoolVarP(&o.Async, "async", "a", false,
		"do not wait for a command to exit before handling the next change")
	f.IntVarP(&o.Jobs, "jobs", "j", 0,
		"maximum number of commands running at once, implies --async")
	f.StringVarP(&o.Template, "template", "t", "Change Detected: {path}",
		"message printed for every change, empty to disable")
	f.StringVarP(&o.Config, "config", "c", "",
		"only read rules from this file")
	f.DurationVar(&o.Delay, "delay", 0,
		"wait before running each command")
	f.BoolVarP(&o.RenderOnly, "render-only", "R", false,
		"print commands without running them")
	f.BoolVarP(&o.TrialRun, "trial-run", "T", false,
		"handle every WATCH path once as if it changed and exit")
	f.StringArrayVarP(&o.Ignore, "ignore", "i", nil,
		"ignore changes of files matching this glob (repeatable)")
	f.StringVarP(&o.VariablesCommand, "variables-command", "V", "",
		"command printing \"key: value\" lines of extra template variables")
	f.BoolVar(&o.Poll, "poll", false,
		"poll file metadata instead of using native notifications")
	f.StringVar(&o.Shell, "shell", dispatch.DefaultShell,
		"shell running commands, \"login\" for your login shell")
	f.BoolVar(&o.NoShell, "no-shell", false,
		"split commands into arguments and execute them without a shell")
	f.StringVar(&o.Color, "color", "auto",
		"colorize labels: auto, always or never")
	f.StringVar(&o.LogFile, "log-file", "",
		"write diagnostics to this file")
	f.StringVar(&o.LogLevel, "log-level", "warn",
		"diagnostics level: trace, debug, info, warn or error")
	f.BoolVarP(&o.ListRules, "list-rules", "l", false,
		"print loaded rules and exit")

	return cmd
}

// splitArgs separates watched paths from the command words given after --.
func splitArgs(args []string, dash int) (watch, command []string) {
	if dash < 0 {
		return args, nil
	}
	return args[:dash], args[dash:]
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// initLog only enables diagnostics on request, the console already reports
// every error to the user.
func (o *Opts) initLog() error {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	var w io.Writer
	switch {
	case o.LogFile != "":
		f, err := log.OpenFile(xdg.ExpandHome(o.LogFile))
		if err != nil {
			return errors.Wrap(err, "log file")
		}
		w = f
	case o.logLevelSet:
		w = os.Stderr
	}
	return log.Init(w, level)
}

func (o *Opts) sources() config.Sources {
	srcs := config.DefaultSources()
	if o.Config != "" {
		srcs = srcs.WithReplace(o.Config)
	}
	return srcs
}

func hasExtraVariables(rules *config.RuleTable) bool {
	for _, rule := range rules.Rules() {
		if rule.ExtraVariables != nil {
			return true
		}
	}
	return false
}

func compileFlag(flag, src string, opts ...pathtmpl.Option) (*pathtmpl.Template, error) {
	t, err := pathtmpl.Compile(src, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "--%s", flag)
	}
	return t, nil
}

func (o *Opts) engineConfig(
	rules *config.RuleTable, watch, command []string, pwd string,
) (engine.Config, error) {
	var cfg engine.Config
	if o.Duration <= 0 {
		return cfg, fmt.Errorf("--duration must be positive")
	}
	if o.Jobs < 0 {
		return cfg, fmt.Errorf("--jobs cannot be negative")
	}
	var tmplOpts []pathtmpl.Option
	if o.VariablesCommand != "" || hasExtraVariables(rules) {
		tmplOpts = append(tmplOpts, pathtmpl.AllowExtra())
	}

	cfg.Pwd = pwd
	for _, path := range watch {
		if !filepath.IsAbs(path) {
			path = filepath.Join(pwd, path)
		}
		cfg.Targets = append(cfg.Targets, models.WatchTarget{
			Path:      filepath.Clean(path),
			Recursive: o.Recursive,
		})
	}
	cfg.Poll = o.Poll
	cfg.PollInterval = millis(o.Duration)
	cfg.DebounceWindow = millis(o.Duration)
	if o.debounceSet {
		cfg.DebounceWindow = millis(o.Debounce)
	}
	cfg.Ignore = o.Ignore

	if o.Template != "" {
		t, err := compileFlag("template", o.Template, tmplOpts...)
		if err != nil {
			return cfg, err
		}
		cfg.Message = t
	}

	d := &cfg.Dispatch
	d.Rules = rules
	d.Delay = o.Delay
	d.RenderOnly = o.RenderOnly
	d.Jobs = o.Jobs
	d.Mode = models.Serial
	if o.Async || o.Jobs > 0 {
		d.Mode = models.Concurrent
	}
	if len(command) > 0 {
		t, err := compileFlag("command", strings.Join(command, " "), tmplOpts...)
		if err != nil {
			return cfg, err
		}
		d.Command = t
	}
	if o.VariablesCommand != "" {
		t, err := compileFlag("variables-command", o.VariablesCommand)
		if err != nil {
			return cfg, err
		}
		d.VariablesCommand = t
	}
	return cfg, nil
}

func listRules(console *report.Console, rules *config.RuleTable) {
	for _, rule := range rules.Rules() {
		line := fmt.Sprintf("[%s] %s", rule.Section, strings.Join(rule.Extensions, " "))
		if rule.Command != nil {
			line += " => " + rule.Command.String()
		} else {
			line += " (ignored)"
		}
		console.Printf(report.Rule, "%s", line)
	}
}

func (o *Opts) run(ctx context.Context, out io.Writer, watch, command []string) error {
	if err := o.initLog(); err != nil {
		return err
	}
	mode, err := report.ParseColorMode(o.Color)
	if err != nil {
		return err
	}
	console := report.NewConsole(out, mode)
	log.Infof("starting onchange %s", log.BuildInfo)

	rules, err := config.LoadRules(o.sources(), o.VariablesCommand != "")
	if err != nil {
		return err
	}
	if o.ListRules {
		listRules(console, rules)
		return nil
	}
	if len(watch) == 0 {
		return fmt.Errorf("no path to watch, see --help")
	}
	pwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err := o.engineConfig(rules, watch, command, pwd)
	if err != nil {
		return err
	}
	runner, err := dispatch.NewShellRunner(o.Shell, o.NoShell)
	if err != nil {
		return err
	}
	eng, err := engine.New(cfg, runner, console)
	if err != nil {
		return err
	}
	if o.TrialRun {
		return eng.TrialRun(ctx)
	}
	return eng.Run(ctx)
}
