package supervisor

import (
	"bufio"
	"io"
	"log/slog"
	"strings"

	"github.com/loykin/agentgate/internal/status"
)

// monitor consumes the child's combined output line by line on its own
// goroutine. This blocking read is the one intended suspension point of the
// supervision task: readiness is communicated over the ready channel, exit
// and timeout handling live in Supervisor.Run.
type monitor struct {
	tracker *status.Tracker
	logger  *slog.Logger
	sink    io.Writer // rotating child log file, may be nil
	markers []string

	ready chan struct{} // closed when a readiness marker is seen
	done  chan struct{} // closed when the stream ends
}

func newMonitor(tracker *status.Tracker, logger *slog.Logger, sink io.Writer, markers []string) *monitor {
	return &monitor{
		tracker: tracker,
		logger:  logger,
		sink:    sink,
		markers: markers,
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// run reads r until EOF. After a marker match it stops matching but keeps
// draining so pipe backpressure cannot block the child. Lines longer than
// the buffer arrive as chunks; only the first chunk is logged, every chunk
// is drained and matched, so an oversized line can never stall the stream.
func (m *monitor) run(r io.Reader) {
	defer close(m.done)
	br := bufio.NewReaderSize(r, 64*1024)
	scanning := true
	cont := false
	for {
		chunk, isPrefix, err := br.ReadLine()
		if len(chunk) > 0 {
			line := string(chunk)
			if !cont {
				m.logger.Info("agent output", "line", line)
			}
			if m.sink != nil {
				_, _ = m.sink.Write(chunk)
				if !isPrefix {
					_, _ = io.WriteString(m.sink, "\n")
				}
			}
			if scanning && m.matches(line) {
				scanning = false
				if m.tracker.MarkReady() {
					close(m.ready)
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Warn("agent output stream error", "error", err)
				// The child must never wedge on a blocked pipe write.
				_, _ = io.Copy(io.Discard, r)
			}
			return
		}
		cont = isPrefix
	}
}

// matches reports whether the line contains any readiness marker.
// Case-sensitive literal match.
func (m *monitor) matches(line string) bool {
	for _, marker := range m.markers {
		if marker != "" && strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
