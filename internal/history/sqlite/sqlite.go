package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/agentgate/internal/history"
)

// Sink writes phase history events to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}

	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key.
	stmt := `CREATE TABLE IF NOT EXISTS phase_history(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		from_phase TEXT NOT NULL,
		to_phase TEXT NOT NULL,
		pid INTEGER NOT NULL,
		error TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	errVal := interface{}(nil)
	if e.Error != "" {
		errVal = e.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO phase_history(occurred_at, from_phase, to_phase, pid, error)
		VALUES(?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.From), string(e.To), e.PID, errVal)
	return err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
