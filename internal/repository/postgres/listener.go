package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// StateChangeListener surfaces browser-state change notifications from
// PostgreSQL. It reconnects on its own; after a dropped connection pq
// replays no missed notifications, so consumers treat every id as a
// hint and reload the row.
type StateChangeListener struct {
	pq      *pq.Listener
	changes chan string
	done    chan struct{}
}

// NewStateChangeListener opens a LISTEN connection on the state channel.
// A nil logger falls back to slog.Default().
func NewStateChangeListener(connStr string, logger *slog.Logger) (*StateChangeListener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reporter := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("state listener connection event", "event", int(ev), "error", err.Error())
		}
	}

	l := &StateChangeListener{
		pq:      pq.NewListener(connStr, listenerMinReconnect, listenerMaxReconnect, reporter),
		changes: make(chan string, 64),
		done:    make(chan struct{}),
	}

	if err := l.pq.Listen(stateChannel); err != nil {
		l.pq.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", stateChannel, err)
	}

	go l.run(logger)
	return l, nil
}

func (l *StateChangeListener) run(logger *slog.Logger) {
	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case n := <-l.pq.Notify:
			// nil notification signals a reconnect
			if n == nil {
				continue
			}
			select {
			case l.changes <- n.Extra:
			default:
				logger.Warn("state change dropped, consumer too slow", "context_id", n.Extra)
			}
		case <-ping.C:
			if err := l.pq.Ping(); err != nil {
				logger.Warn("state listener ping failed", "error", err.Error())
			}
		case <-l.done:
			return
		}
	}
}

// Changes returns the stream of changed browser-state ids.
func (l *StateChangeListener) Changes() <-chan string {
	return l.changes
}

func (l *StateChangeListener) Close() error {
	close(l.done)
	return l.pq.Close()
}
