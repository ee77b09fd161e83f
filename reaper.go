package main

import (
	"os"
	"os/signal"
	"syscall"

	reaper "github.com/ramr/go-reaper"
	"github.com/sirupsen/logrus"
)

// childArgs is the argument vector of the re-executed daemon: the same
// arguments, with reaping disabled so the child does not fork again.
func childArgs(exe string, args []string) []string {
	childArgs := make([]string, 0, len(args)+2)
	childArgs = append(childArgs, exe, "--no-reap")
	return append(childArgs, args...)
}

// forkExec is used when running as PID 1: the parent only reaps orphaned
// processes and relays shutdown signals while a child runs the scheduler.
// The child's exit status is returned.
func forkExec(logger *logrus.Entry) int {
	//  Start background reaping of orphaned child processes.
	go reaper.Reap()

	// os.Args[0] may be a bare command name that does not resolve from
	// the working directory.
	exe, err := os.Executable()
	if err != nil {
		logger.Errorf("failed to find own executable: %s", err)
		return 1
	}

	pwd, err := os.Getwd()
	if err != nil {
		logger.Errorf("failed to get current working directory: %s", err)
		return 1
	}

	// PID 1 has no default signal actions: without a handler, SIGTERM
	// makes the runtime exit(2) and the child is killed with the namespace.
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	pattrs := &syscall.ProcAttr{
		Dir: pwd,
		Env: os.Environ(),
		Sys: &syscall.SysProcAttr{Setsid: true},
		Files: []uintptr{
			uintptr(syscall.Stdin),
			uintptr(syscall.Stdout),
			uintptr(syscall.Stderr),
		},
	}

	pid, err := syscall.ForkExec(exe, childArgs(exe, os.Args[1:]), pattrs)
	if err != nil {
		logger.Errorf("failed to fork exec: %s", err)
		return 1
	}

	logger.Debugf("reaping as pid 1, scheduler runs as pid %d", pid)

	return waitForward(pid, sigs, logger)
}

type waitResult struct {
	status syscall.WaitStatus
	err    error
}

// waitForward sends every signal received on sigs to pid and returns once
// pid has exited.
func waitForward(pid int, sigs <-chan os.Signal, logger *logrus.Entry) int {
	exited := make(chan waitResult, 1)
	go func() {
		var wstatus syscall.WaitStatus
		_, err := syscall.Wait4(pid, &wstatus, 0, nil)
		for syscall.EINTR == err {
			_, err = syscall.Wait4(pid, &wstatus, 0, nil)
		}
		exited <- waitResult{status: wstatus, err: err}
	}()

	forwarded := false
	for {
		select {
		case sig := <-sigs:
			s, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			logger.Infof("forwarding %s to pid %d", sig, pid)
			if err := syscall.Kill(pid, s); err != nil {
				logger.Warnf("failed to forward %s: %s", sig, err)
				continue
			}
			forwarded = true

		case res := <-exited:
			// The background reaper waits on any child and may have
			// collected the status first.
			if res.err == syscall.ECHILD && forwarded {
				logger.Debugf("pid %d was reaped after shutdown", pid)
				return 0
			}
			if res.err != nil {
				logger.Errorf("failed to wait: %s", res.err)
				return 1
			}
			return exitStatus(res.status)
		}
	}
}

// exitStatus follows the shell convention of 128+n for a child killed by
// signal n.
func exitStatus(wstatus syscall.WaitStatus) int {
	if wstatus.Signaled() {
		return 128 + int(wstatus.Signal())
	}
	return wstatus.ExitStatus()
}
