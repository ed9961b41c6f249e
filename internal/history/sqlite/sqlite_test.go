package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/loykin/agentgate/internal/history"
	"github.com/loykin/agentgate/internal/status"
)

func TestSinkRoundTrip(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	ctx := context.Background()
	events := []history.Event{
		{From: status.PhaseInitializing, To: status.PhaseRunningInit, OccurredAt: time.Now().UTC()},
		{From: status.PhaseRunningInit, To: status.PhaseStartingChild, OccurredAt: time.Now().UTC()},
		{From: status.PhaseStartingChild, To: status.PhaseReady, OccurredAt: time.Now().UTC(), PID: 4242},
		{From: status.PhaseReady, To: status.PhaseChildTerminated, OccurredAt: time.Now().UTC(), PID: 4242, Error: "exit status 1"},
	}
	for _, e := range events {
		if err := sink.Send(ctx, e); err != nil {
			t.Fatalf("Send(%s->%s): %v", e.From, e.To, err)
		}
	}

	var count int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM phase_history`).Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != len(events) {
		t.Fatalf("stored %d rows, want %d", count, len(events))
	}

	var toPhase string
	var errText *string
	row := sink.db.QueryRowContext(ctx,
		`SELECT to_phase, error FROM phase_history WHERE pid = 4242 AND error IS NOT NULL`)
	if err := row.Scan(&toPhase, &errText); err != nil {
		t.Fatalf("row query: %v", err)
	}
	if toPhase != "child_terminated" || errText == nil || *errText != "exit status 1" {
		t.Fatalf("unexpected row: to=%s err=%v", toPhase, errText)
	}
}

func TestSinkNullErrorColumn(t *testing.T) {
	sink, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() { _ = sink.Close() }()

	e := history.Event{From: status.PhaseStartingChild, To: status.PhaseReady, OccurredAt: time.Now().UTC()}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var count int
	if err := sink.db.QueryRow(`SELECT COUNT(*) FROM phase_history WHERE error IS NULL`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("empty detail must be stored as NULL, got %d rows", count)
	}
}

func TestNewFileDSN(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	sink, err := New("sqlite://" + path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewEmptyDSN(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
