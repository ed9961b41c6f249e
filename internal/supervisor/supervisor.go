package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/loykin/agentgate/internal/config"
	"github.com/loykin/agentgate/internal/metrics"
	"github.com/loykin/agentgate/internal/status"
)

// Supervisor owns the lifecycle of the agent child process: one-shot init,
// spawn with environment injection, readiness wait with timeout, and
// termination detection. There is no restart policy; a supervision attempt
// that fails stays failed while the health endpoint keeps serving.
type Supervisor struct {
	cfg      config.AgentConfig
	tracker  *status.Tracker
	logger   *slog.Logger
	childLog io.WriteCloser

	mu      sync.Mutex
	child   *exec.Cmd
	exitErr error
	exited  chan struct{} // closed once cmd.Wait returns
}

func New(cfg config.AgentConfig, tracker *status.Tracker, logger *slog.Logger, childLog io.WriteCloser) *Supervisor {
	return &Supervisor{cfg: cfg, tracker: tracker, logger: logger, childLog: childLog}
}

// Run executes one supervision attempt. It is meant to be called once, in a
// background goroutine, after the HTTP listener is up. ctx only gates the
// start delay and init step; once the child is spawned, shutdown is driven
// by Shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.StartDelay > 0 {
		select {
		case <-time.After(s.cfg.StartDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.tracker.Transition(status.PhaseRunningInit, "")
	if err := s.runInit(ctx); err != nil {
		return err
	}

	s.tracker.Transition(status.PhaseStartingChild, "")
	mon, err := s.spawnChild()
	if err != nil {
		return err
	}
	startedAt := time.Now()

	timer := time.NewTimer(s.cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-mon.ready:
		metrics.ObserveReadyDuration(time.Since(startedAt).Seconds())
		s.logger.Info("agent ready", "after", time.Since(startedAt).Round(time.Millisecond).String())
	case <-s.exitedChan():
		// Let the monitor drain the buffered tail of the stream first: a
		// readiness marker in the final lines must be applied before the
		// exit is classified.
		<-mon.done
		s.finishExit()
		return nil
	case <-timer.C:
		s.tracker.Transition(status.PhaseTimedOut,
			fmt.Sprintf("no readiness marker within %s", s.cfg.ReadyTimeout))
		s.logger.Error("agent readiness timed out", "timeout", s.cfg.ReadyTimeout.String())
	}

	// Ready or timed out: the child is still running. Keep draining output
	// and wait for it to exit.
	<-s.exitedChan()
	<-mon.done
	s.finishExit()
	return nil
}

// runInit executes the one-shot initialization command, capturing combined
// output. A non-zero exit is fatal for the supervision attempt but never for
// the health endpoint.
func (s *Supervisor) runInit(ctx context.Context) error {
	if s.cfg.InitCommand == "" {
		return nil
	}
	s.logger.Info("running init command", "command", s.cfg.InitCommand)
	cmd := BuildCommand(s.cfg.InitCommand)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = s.childEnv()
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		s.logger.Info("init output", "output", truncate(string(out), config.DefaultErrorTailSize))
	}
	if err != nil {
		detail := truncate(fmt.Sprintf("%v: %s", err, out), config.DefaultErrorTailSize)
		s.tracker.Transition(status.PhaseInitFailed, detail)
		s.logger.Error("init command failed", "error", err)
		return fmt.Errorf("init command: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// spawnChild starts the long-lived agent process with its combined output
// wired to a readiness monitor goroutine.
func (s *Supervisor) spawnChild() (*monitor, error) {
	cmd := BuildCommand(s.cfg.Command)
	cmd.Dir = s.cfg.WorkDir
	cmd.Env = s.childEnv()
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		detail := truncate(fmt.Sprintf("spawn %q: %v", s.cfg.Command, err), config.DefaultErrorTailSize)
		s.tracker.Transition(status.PhaseError, detail)
		s.logger.Error("failed to spawn agent", "command", s.cfg.Command, "error", err)
		return nil, fmt.Errorf("spawn agent: %w", err)
	}

	exited := make(chan struct{})
	s.mu.Lock()
	s.child = cmd
	s.exited = exited
	s.mu.Unlock()

	s.tracker.SetPID(cmd.Process.Pid)
	metrics.IncChildStart()
	s.logger.Info("agent spawned", "pid", cmd.Process.Pid, "port", s.cfg.InternalPort)

	go func() {
		err := cmd.Wait()
		// Closing the write end delivers EOF to the monitor after it has
		// consumed everything the child wrote.
		_ = pw.Close()
		s.mu.Lock()
		s.exitErr = err
		s.mu.Unlock()
		close(exited)
	}()

	mon := newMonitor(s.tracker, s.logger, s.childLog, s.cfg.ReadyMarkers)
	go mon.run(pr)
	return mon, nil
}

// finishExit classifies an observed child exit against the current phase.
// Termination after readiness is recorded but never erases readySince;
// terminal phases (timed_out) are only logged.
func (s *Supervisor) finishExit() {
	metrics.IncChildStop()
	if s.childLog != nil {
		_ = s.childLog.Close()
	}
	err := s.exitError()
	msg := "exit status 0"
	if err != nil {
		msg = err.Error()
	}
	snap := s.tracker.Snapshot()
	if s.tracker.Transition(status.PhaseChildTerminated, msg) {
		if snap.Ready {
			s.logger.Error("agent terminated after becoming ready", "error", msg)
		} else {
			s.logger.Error("agent terminated before readiness marker", "error", msg)
		}
		return
	}
	s.logger.Warn("agent terminated", "phase", string(snap.Phase), "error", msg)
}

// Shutdown signals the child's process group with SIGTERM and escalates to
// SIGKILL after wait. Safe to call when nothing was spawned.
func (s *Supervisor) Shutdown(wait time.Duration) {
	s.mu.Lock()
	cmd := s.child
	exited := s.exited
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	s.logger.Info("stopping agent", "pid", pid)
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	select {
	case <-exited:
	case <-time.After(wait):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		select {
		case <-exited:
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (s *Supervisor) exitedChan() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited
}

func (s *Supervisor) exitError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// childEnv layers the configured extra vars and the internal port override
// on top of the gateway's own environment. Later entries win.
func (s *Supervisor) childEnv() []string {
	env := os.Environ()
	env = append(env, s.cfg.Env...)
	env = append(env, s.cfg.PortEnvVar+"="+strconv.Itoa(s.cfg.InternalPort))
	return env
}

func truncate(v string, n int) string {
	if len(v) <= n {
		return v
	}
	return v[:n] + "...(truncated)"
}
