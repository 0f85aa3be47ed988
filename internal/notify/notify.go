// Package notify publishes job lifecycle events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/docwiki/internal/config"
	"git.home.luguber.info/inful/docwiki/internal/logfields"
	"git.home.luguber.info/inful/docwiki/internal/models"
)

// DefaultSubject is the subject prefix used when none is configured.
const DefaultSubject = "docwiki.jobs"

// JobEvent is published on every job status transition.
type JobEvent struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
	Stage  string           `json:"stage,omitempty"`
	Error  string           `json:"error,omitempty"`
	Time   time.Time        `json:"time"`
}

// Notifier receives lifecycle events. Implementations must be safe for
// concurrent use; publish failures are reported but never fail a job.
type Notifier interface {
	Publish(ctx context.Context, ev JobEvent) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, JobEvent) error { return nil }
func (Noop) Close() error                            { return nil }

// conn is the subset of *nats.Conn used for publishing.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Close()
}

// NATSNotifier publishes JSON events on "<subject>.<status>".
type NATSNotifier struct {
	conn    conn
	subject string
}

// NewNATSNotifier connects to the configured NATS server.
func NewNATSNotifier(cfg config.NotifyConfig) (*NATSNotifier, error) {
	if cfg.NATSURL == "" {
		return nil, fmt.Errorf("nats url is required")
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("docwiki"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS notifier initialized", logfields.URL(cfg.NATSURL), slog.String("subject", subjectOrDefault(cfg.Subject)))
	return newNATSNotifier(nc, cfg.Subject), nil
}

func newNATSNotifier(c conn, subject string) *NATSNotifier {
	return &NATSNotifier{conn: c, subject: subjectOrDefault(subject)}
}

func subjectOrDefault(s string) string {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return DefaultSubject
	}
	return s
}

// Subject returns the subject an event is published on.
func (n *NATSNotifier) Subject(ev JobEvent) string {
	return n.subject + "." + string(ev.Status)
}

// Publish sends ev and waits for the server to acknowledge the flush.
func (n *NATSNotifier) Publish(ctx context.Context, ev JobEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.conn.Publish(n.Subject(ev), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	slog.Debug("Published job event", logfields.JobID(ev.JobID), logfields.JobStatus(string(ev.Status)), logfields.Stage(ev.Stage))
	return nil
}

// Close closes the NATS connection.
func (n *NATSNotifier) Close() error {
	if n.conn != nil {
		n.conn.Close()
	}
	return nil
}

// New returns a NATS notifier when a URL is configured, otherwise Noop.
func New(cfg config.NotifyConfig) (Notifier, error) {
	if cfg.NATSURL == "" {
		return Noop{}, nil
	}
	return NewNATSNotifier(cfg)
}

// Recorder keeps events in memory. It is used by tests and the CLI's
// one-shot mode.
type Recorder struct {
	mu     sync.Mutex
	events []JobEvent
}

func (r *Recorder) Publish(_ context.Context, ev JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []JobEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]JobEvent(nil), r.events...)
}

// Statuses returns the recorded statuses for one job in order.
func (r *Recorder) Statuses(jobID string) []models.JobStatus {
	var out []models.JobStatus
	for _, ev := range r.Events() {
		if ev.JobID == jobID {
			out = append(out, ev.Status)
		}
	}
	return out
}
