package status

import (
	"sync"
	"time"
)

// Phase describes where the supervised agent is in its lifecycle.
type Phase string

const (
	PhaseInitializing    Phase = "initializing"
	PhaseRunningInit     Phase = "running_init"
	PhaseStartingChild   Phase = "starting_child"
	PhaseReady           Phase = "ready"
	PhaseInitFailed      Phase = "init_failed"
	PhaseChildTerminated Phase = "child_terminated"
	PhaseTimedOut        Phase = "timed_out"
	PhaseError           Phase = "error"
)

// Snapshot is a point-in-time copy of the shared status record.
type Snapshot struct {
	Phase      Phase      `json:"phase"`
	Ready      bool       `json:"ready"`
	LastError  string     `json:"error,omitempty"`
	ReadySince *time.Time `json:"ready_since,omitempty"`
	PID        int        `json:"pid,omitempty"`
}

// ChangeFunc observes phase transitions. It is invoked outside the tracker
// lock, always from the single writer goroutine.
type ChangeFunc func(from, to Phase, snap Snapshot)

// Tracker is the single shared status record mutated by the supervision
// goroutine and read by request handlers. All access is mutex guarded; the
// lock is never held across I/O.
//
// Transitions are monotonic:
//
//	initializing -> running_init -> starting_child -> ready
//
// with failure branches running_init -> init_failed, starting_child ->
// {child_terminated, timed_out, error}, and ready -> child_terminated when
// the agent dies after becoming ready. init_failed, timed_out and error are
// terminal; ready is entered at most once; child_terminated is never
// followed by ready.
type Tracker struct {
	mu         sync.Mutex
	phase      Phase
	lastError  string
	readySince time.Time
	pid        int
	onChange   ChangeFunc
}

func NewTracker() *Tracker {
	return &Tracker{phase: PhaseInitializing}
}

// OnChange installs a transition observer. Call before the supervision
// goroutine starts.
func (t *Tracker) OnChange(fn ChangeFunc) { t.onChange = fn }

// Snapshot returns a copy of the current state. A reader never observes a
// torn update.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:     t.phase,
		Ready:     t.phase == PhaseReady,
		LastError: t.lastError,
		PID:       t.pid,
	}
	if !t.readySince.IsZero() {
		rs := t.readySince
		s.ReadySince = &rs
	}
	return s
}

// SetPID records the child PID for diagnostics. It does not change phase.
func (t *Tracker) SetPID(pid int) {
	t.mu.Lock()
	t.pid = pid
	t.mu.Unlock()
}

// MarkReady flips the phase to ready and records readySince. It returns
// false when the current phase does not allow it (termination seen before
// any marker always wins).
func (t *Tracker) MarkReady() bool {
	return t.Transition(PhaseReady, "")
}

// Transition attempts to move to the given phase, storing lastError when
// non-empty. It reports whether the transition was applied.
func (t *Tracker) Transition(to Phase, lastError string) bool {
	t.mu.Lock()
	from := t.phase
	if !allowed(from, to) {
		t.mu.Unlock()
		return false
	}
	t.phase = to
	if lastError != "" {
		t.lastError = lastError
	}
	if to == PhaseReady {
		t.readySince = time.Now()
	}
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(from, to, snap)
	}
	return true
}

func allowed(from, to Phase) bool {
	if from == to {
		return false
	}
	switch from {
	case PhaseInitializing:
		return to == PhaseRunningInit || to == PhaseError
	case PhaseRunningInit:
		return to == PhaseStartingChild || to == PhaseInitFailed || to == PhaseError
	case PhaseStartingChild:
		return to == PhaseReady || to == PhaseChildTerminated || to == PhaseTimedOut || to == PhaseError
	case PhaseReady:
		// The agent dying after it became ready still has to be surfaced,
		// but readySince is retained and ready can never be re-entered.
		return to == PhaseChildTerminated || to == PhaseError
	default:
		// init_failed, child_terminated, timed_out, error are terminal.
		return false
	}
}
