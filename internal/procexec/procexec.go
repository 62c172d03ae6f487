// Package procexec runs external tools with captured output and, on Windows,
// without flashing a console window.
package procexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// maxCapturedOutput bounds the stdout/stderr kept per command log.
const maxCapturedOutput = 64 * 1024

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// String renders the command line for log messages.
func (l CommandLog) String() string {
	if len(l.Args) == 0 {
		return l.Command
	}
	return l.Command + " " + strings.Join(l.Args, " ")
}

// Runner executes a command to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandLog, error)
}

// Process is a started command whose stdout is consumed incrementally.
type Process interface {
	Stdout() io.Reader
	// Wait blocks until exit and returns the command log.
	Wait() (CommandLog, error)
	// Kill terminates the process; Wait must still be called.
	Kill() error
}

// Starter launches a command without waiting for it.
type Starter interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandLog, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	stdout := newTailBuffer(maxCapturedOutput)
	stderr := newTailBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	log := CommandLog{
		Command: name,
		Args:    append([]string(nil), args...),
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}
	log.ExitCode = exitCode(err)
	return log, err
}

// ExecStarter starts commands via os/exec with a stdout pipe.
type ExecStarter struct{}

// Start launches name with args and returns the running process.
func (ExecStarter) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	stderr := newTailBuffer(maxCapturedOutput)
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		log:    CommandLog{Command: name, Args: append([]string(nil), args...)},
	}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr *tailBuffer
	log    CommandLog
}

func (p *execProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *execProcess) Wait() (CommandLog, error) {
	err := p.cmd.Wait()
	log := p.log
	log.Stderr = p.stderr.String()
	log.ExitCode = exitCode(err)
	return log, err
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// exitCode maps a command error to its exit status (-1 when the process never ran).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// IsNotFound reports whether err means the executable could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound)
}

// tailBuffer keeps only the last max bytes written.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > b.max {
		p = p[len(p)-b.max:]
	}
	if overflow := b.buf.Len() + len(p) - b.max; overflow > 0 {
		b.buf.Next(overflow)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string {
	return b.buf.String()
}
