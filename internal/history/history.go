package history

import (
	"context"
	"time"

	"github.com/loykin/agentgate/internal/status"
)

// Event records one phase transition of the supervised agent.
type Event struct {
	From       status.Phase `json:"from"`
	To         status.Phase `json:"to"`
	OccurredAt time.Time    `json:"occurred_at"`
	PID        int          `json:"pid"`
	Error      string       `json:"error,omitempty"`
}

// Sink is a destination for phase history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
