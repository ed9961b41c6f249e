package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// stripDaemonFlags removes the daemonize flags from a re-exec command line,
// in both "--flag value" and "--flag=value" forms, so the daemon child does
// not try to daemonize again.
func stripDaemonFlags(args []string) []string {
	var out []string
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch {
		case arg == "--daemonize" || strings.HasPrefix(arg, "--daemonize="):
			continue
		case arg == "--pidfile" || arg == "--logfile":
			skipNext = true
			continue
		case strings.HasPrefix(arg, "--pidfile=") || strings.HasPrefix(arg, "--logfile="):
			continue
		}
		out = append(out, arg)
	}
	return out
}

// daemonize restarts the process as a daemon in the background
func daemonize(pidFile string, logFile string) error {
	if os.Getppid() == 1 {
		// Already running as daemon
		return nil
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	newArgs := stripDaemonFlags(os.Args[1:])

	// #nosec 204
	cmd := exec.Command(executable, newArgs...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec 304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cmd.Stdout = logF
		cmd.Stderr = logF
	} else {
		cmd.Stdout = nil
		cmd.Stderr = nil
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}

	if pidFile != "" {
		if err := writePidFile(pidFile, cmd.Process.Pid); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}

	fmt.Printf("Daemon started with PID %d\n", cmd.Process.Pid)

	// Parent process exits
	os.Exit(0)
	return nil
}

// writePidFile writes the daemon PID to a file
func writePidFile(pidFile string, pid int) error {
	// #nosec 302
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.WriteString(strconv.Itoa(pid))
	return err
}
