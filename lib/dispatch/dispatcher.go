// Package dispatch turns detected changes into command executions.
//
// Every change is resolved to an action: the command given on the command
// line, else the command of the rule matching the file extension, else
// nothing. Commands run inline (serial mode, the caller is blocked until
// the command exits) or on their own goroutine (concurrent mode).
package dispatch

import (
	"bytes"
	"context"
	"time"

	"github.com/miolini/datacounter"
	"golang.org/x/sync/errgroup"

	"git.sr.ht/~rjarry/onchange/config"
	"git.sr.ht/~rjarry/onchange/lib/log"
	"git.sr.ht/~rjarry/onchange/lib/pathtmpl"
	"git.sr.ht/~rjarry/onchange/lib/report"
	"git.sr.ht/~rjarry/onchange/models"
)

type Config struct {
	Mode models.ExecutionMode
	// maximum number of concurrent commands, 0 for no limit
	Jobs int
	// sleep before each command
	Delay time.Duration
	// print commands without running them
	RenderOnly bool
	// explicit command, overrides rules
	Command *pathtmpl.Template
	// command printing extra variables, overrides rules
	VariablesCommand *pathtmpl.Template
	Rules            *config.RuleTable
}

type Dispatcher struct {
	cfg     Config
	runner  Runner
	console *report.Console
	group   errgroup.Group
}

func New(cfg Config, runner Runner, console *report.Console) *Dispatcher {
	d := &Dispatcher{cfg: cfg, runner: runner, console: console}
	if cfg.Mode == models.Concurrent && cfg.Jobs > 0 {
		d.group.SetLimit(cfg.Jobs)
	}
	return d
}

// Resolve returns the action to run for a change with the given variables.
func (d *Dispatcher) Resolve(vars pathtmpl.Vars) Action {
	return resolve(d.cfg.Command, d.cfg.Rules, vars["ext"])
}

// Variables returns vars extended with the output of the variables command
// applicable to the change, if any. On failure vars is returned unchanged
// along with the error.
func (d *Dispatcher) Variables(ctx context.Context, vars pathtmpl.Vars) (pathtmpl.Vars, error) {
	tmpl := d.cfg.VariablesCommand
	if tmpl == nil && d.cfg.Rules != nil {
		if rule, ok := d.cfg.Rules.Resolve(vars["ext"]); ok {
			tmpl = rule.ExtraVariables
		}
	}
	if tmpl == nil {
		return vars, nil
	}
	cmdline := tmpl.Render(vars)
	var out bytes.Buffer
	stderr := d.console.LineWriter()
	defer stderr.Close()
	if err := d.runner.Run(ctx, cmdline, &out, stderr); err != nil {
		return vars, newExecutionError(vars["path"], cmdline, err)
	}
	extra, err := parseVariables(&out)
	if err != nil {
		return vars, newExecutionError(vars["path"], cmdline, err)
	}
	log.Debugf("%s: %d extra variables", vars["path"], len(extra))
	return vars.With(extra), nil
}

// Dispatch resolves and runs the action for a change. In serial mode it
// blocks until the command exits and returns its *ExecutionError. In
// concurrent mode it returns once the command was started (or queued when
// the number of jobs is limited) and failures are only reported.
func (d *Dispatcher) Dispatch(ctx context.Context, vars pathtmpl.Vars) error {
	action := d.Resolve(vars)
	path := vars["path"]
	if action.None() {
		if action.Rule != nil {
			log.Debugf("%s: ignored by [%s]", path, action.Rule.Section)
		} else {
			log.Tracef("%s: no action", path)
		}
		return nil
	}
	cmdline := action.Template.Render(vars)
	d.console.Printf(report.Run, "%s", cmdline)
	if d.cfg.RenderOnly {
		return nil
	}
	if d.cfg.Mode == models.Concurrent {
		d.group.Go(func() error {
			defer log.PanicHandler()
			_ = d.execute(ctx, path, cmdline)
			return nil
		})
		return nil
	}
	return d.execute(ctx, path, cmdline)
}

func (d *Dispatcher) execute(ctx context.Context, path, cmdline string) error {
	if d.cfg.Delay > 0 {
		select {
		case <-time.After(d.cfg.Delay):
		case <-ctx.Done():
			return nil
		}
	}
	stdout := d.console.LineWriter()
	stderr := d.console.LineWriter()
	outCtr := datacounter.NewWriterCounter(stdout)
	errCtr := datacounter.NewWriterCounter(stderr)

	start := time.Now()
	err := d.runner.Run(ctx, cmdline, outCtr, errCtr)
	stdout.Close()
	stderr.Close()
	log.Debugf("%s: %q done in %s, %d bytes of output, %d bytes of errors",
		path, cmdline, time.Since(start), outCtr.Count(), errCtr.Count())

	if err != nil {
		if ctx.Err() != nil {
			// interrupted with the rest of the process
			return nil
		}
		execErr := newExecutionError(path, cmdline, err)
		log.Warnf("%v", execErr)
		d.console.Errorf("%v", execErr)
		return execErr
	}
	return nil
}

// Wait blocks until all concurrent commands have exited.
func (d *Dispatcher) Wait() {
	_ = d.group.Wait()
}
