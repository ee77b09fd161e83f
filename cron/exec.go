package cron

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
)

const DefaultShell = "/bin/sh"

// Executor runs one crontab command to completion and returns what it
// wrote. A returned error describes the outcome of the command and is
// informational only.
type Executor interface {
	Execute(ctx context.Context, command string, logger *logrus.Entry) (stdout []byte, stderr []byte, err error)
}

// ShellExecutor hands commands to Shell with -c. It grants arbitrary shell
// execution: the crontab is trusted completely and nothing is sandboxed.
type ShellExecutor struct {
	Shell string
}

func (e *ShellExecutor) shell() string {
	if e.Shell == "" {
		return DefaultShell
	}
	return e.Shell
}

// Execute blocks until the command exits and captures both output streams
// in memory. Each captured line is logged with a "channel" field. If ctx is
// done first, Execute returns ctx.Err() without waiting for the child.
func (e *ShellExecutor) Execute(ctx context.Context, command string, logger *logrus.Entry) ([]byte, []byte, error) {
	cmd := exec.Command(e.shell(), "-c", command)

	// Run in a separate process group so that in interactive usage, CTRL+C
	// stops the daemon, not the children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("error starting command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		logger.Warnf("not waiting for pid %d to exit", cmd.Process.Pid)
		return nil, nil, ctx.Err()
	}

	logOutput(logger.WithField("channel", "stdout"), stdout.Bytes())
	logOutput(logger.WithField("channel", "stderr"), stderr.Bytes())

	if err != nil {
		err = fmt.Errorf("error running command: %w", err)
	}

	return stdout.Bytes(), stderr.Bytes(), err
}

func logOutput(logger *logrus.Entry, output []byte) {
	if len(output) == 0 {
		return
	}

	for _, line := range strings.Split(strings.TrimRight(string(output), "\n"), "\n") {
		logger.Info(line)
	}
}
