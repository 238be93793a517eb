// Package external runs the third-party programs the docking pipeline relies
// on (Open Babel, AutoDock Vina, PyMOL) and adapts each one to a small typed
// handle.  The handles build argument lists and interpret outputs; process
// execution goes through the Runner interface so that tests can substitute
// a fake.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/turtacn/dockpipe/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/dockpipe/pkg/errors"
)

// Command describes one external invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is the captured outcome of a Command.  ExitCode is -1 when the
// process could not be started or was killed.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes commands.  Run returns a non-nil Result whenever the
// process was started, even if it exited non-zero; in that case the error
// carries apperrors.ErrCodeCommandFailed.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// waitDelay bounds how long Run waits for output pipes after the context
// is cancelled, in case the killed process left children holding them.
const waitDelay = 2 * time.Second

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	timeout time.Duration
	log     logging.Logger
}

// NewExecRunner returns an ExecRunner.  timeout bounds each command; zero
// disables the bound.
func NewExecRunner(timeout time.Duration, log logging.Logger) *ExecRunner {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ExecRunner{timeout: timeout, log: log}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Debug("running external command", logging.String("cmd", c.String()), logging.String("dir", c.Dir))
	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, apperrors.Wrap(ctxErr, apperrors.ErrCodeTimeout, "command interrupted").WithDetail(c.String())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, apperrors.Wrap(err, apperrors.ErrCodeCommandFailed, "command exited with non-zero status").
			WithDetail(fmt.Sprintf("%s (exit %d)", c.String(), res.ExitCode))
	}
	return nil, apperrors.Wrap(err, apperrors.ErrCodeCommandFailed, "command could not be started").WithDetail(c.String())
}

// LookPath reports whether name resolves to an executable.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
