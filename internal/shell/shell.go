// Package shell runs external commands for provisioning tasks and guards.
//
// A nonzero exit status is a normal Result that the caller inspects. Only a
// command that cannot be started at all (missing binary, permission denied)
// or that is killed by its timeout produces an *ExecutionError.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Mode selects how command output is handled.
type Mode int

const (
	// CaptureOnly collects stdout and stderr silently.
	CaptureOnly Mode = iota
	// StreamToLog also forwards every output line to the logger at DEBUG
	// as it arrives, for long-running commands.
	StreamToLog
)

// Command describes one external command invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     map[string]string // added to the inherited environment
	Stdin   string
	Timeout time.Duration // zero means no timeout
	Mode    Mode
	Retries int // extra attempts after a nonzero exit or timeout
}

// String returns the command line, for logs and error messages.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of a command that was started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Success reports whether the command exited 0.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Err converts a nonzero exit into an error carrying the trimmed stderr, for
// actions that treat any failure as fatal to themselves.
func (r Result) Err(c Command) error {
	if r.ExitCode == 0 {
		return nil
	}
	msg := strings.TrimSpace(r.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(r.Stdout)
	}
	if i := strings.LastIndexByte(msg, '\n'); i >= 0 {
		msg = msg[i+1:]
	}
	if msg == "" {
		return fmt.Errorf("%s: exit status %d", c, r.ExitCode)
	}
	return fmt.Errorf("%s: exit status %d: %s", c, r.ExitCode, msg)
}

// ExecutionError reports a command that could not be run to completion:
// it failed to start, or it was killed by its timeout.
type ExecutionError struct {
	Command  string
	TimedOut bool
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s: timed out: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: cannot execute: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Runner is implemented by Executor and by test fakes.
type Runner interface {
	Run(ctx context.Context, c Command) (Result, error)
}

// Executor runs commands on the local host. It remembers the commands it
// has in flight so Kill can take them down when the process is exiting.
type Executor struct {
	Logger     *slog.Logger
	RetryDelay time.Duration

	mu     sync.Mutex
	active map[*exec.Cmd]struct{}
	killed bool
}

// ErrKilled is returned for commands started after Kill.
var ErrKilled = errors.New("executor killed")

// NewExecutor returns an Executor that logs through logger.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{Logger: logger, RetryDelay: time.Second}
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

// Kill sends SIGKILL to the process group of every running command and
// refuses to start new ones. It does not wait for the commands to exit.
func (e *Executor) Kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.killed = true
	for cmd := range e.active {
		if err := killProcessGroup(cmd); err != nil {
			e.logger().Debug("kill failed", "pid", cmd.Process.Pid, "error", err)
		}
	}
}

func (e *Executor) start(cmd *exec.Cmd) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.killed {
		return ErrKilled
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if e.active == nil {
		e.active = make(map[*exec.Cmd]struct{})
	}
	e.active[cmd] = struct{}{}
	return nil
}

func (e *Executor) done(cmd *exec.Cmd) {
	e.mu.Lock()
	delete(e.active, cmd)
	e.mu.Unlock()
}

func (e *Executor) running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Run executes c, retrying up to c.Retries extra times on nonzero exit or
// timeout. Start failures are returned immediately.
func (e *Executor) Run(ctx context.Context, c Command) (Result, error) {
	log := e.logger()
	for attempt := 0; ; attempt++ {
		log.Debug("exec", "command", c.String())
		res, err := e.runOnce(ctx, c)

		var execErr *ExecutionError
		retryable := (err == nil && res.ExitCode != 0) ||
			(errors.As(err, &execErr) && execErr.TimedOut)
		if !retryable || attempt >= c.Retries || ctx.Err() != nil {
			if err == nil && attempt > 0 && res.ExitCode == 0 {
				log.Info("command succeeded after retry", "command", c.String(), "attempt", attempt+1)
			}
			return res, err
		}
		log.Warn("command failed, retrying",
			"command", c.String(),
			"exit_code", res.ExitCode,
			"attempt", attempt+1,
			"of", c.Retries+1,
		)
		if e.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return res, err
			case <-time.After(e.RetryDelay):
			}
		}
	}
}

func (e *Executor) runOnce(ctx context.Context, c Command) (Result, error) {
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	configureProcessGroup(cmd)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	if c.Stdin != "" {
		cmd.Stdin = strings.NewReader(c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	var outLines, errLines *lineLogger
	if c.Mode == StreamToLog {
		log := e.logger()
		outLines = &lineLogger{buf: &stdout, log: log, stream: "stdout"}
		errLines = &lineLogger{buf: &stderr, log: log, stream: "stderr"}
		cmd.Stdout = outLines
		cmd.Stderr = errLines
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	start := time.Now()
	err := e.start(cmd)
	if err == nil {
		err = cmd.Wait()
		e.done(cmd)
	}
	if outLines != nil {
		outLines.flush()
		errLines.flush()
	}
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	if c.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.ExitCode = -1
		return res, &ExecutionError{Command: c.String(), TimedOut: true, Err: runCtx.Err()}
	}
	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, &ExecutionError{Command: c.String(), Err: ctx.Err()}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, &ExecutionError{Command: c.String(), Err: err}
}

// lineLogger captures output and logs each complete line at DEBUG.
type lineLogger struct {
	mu      sync.Mutex
	buf     *bytes.Buffer
	pending []byte
	log     *slog.Logger
	stream  string
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.emit(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *lineLogger) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.pending) > 0 {
		w.emit(w.pending)
		w.pending = nil
	}
}

func (w *lineLogger) emit(line []byte) {
	text := strings.TrimRight(string(line), "\r")
	if text == "" {
		return
	}
	w.log.Debug(w.stream + ": " + text)
}

// Eval executes expr with sh -c and returns true when it exits 0.
// A nonzero exit is not an error; only execution failures are.
func Eval(ctx context.Context, r Runner, expr string) (exitsZero bool, err error) {
	res, err := r.Run(ctx, Sh(expr))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// Sh returns a Command running expr through sh -c.
func Sh(expr string) Command {
	return Command{Name: "sh", Args: []string{"-c", expr}}
}
