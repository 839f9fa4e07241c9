// Package events publishes pseudonymous domain events to NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subject suffixes appended to the configured prefix.
const (
	SubjectIngestCompleted = "ingest.completed"
	SubjectSaltRotated     = "salt.rotated"
	SubjectAuditRecorded   = "audit.recorded"
)

// DefaultPrefix is used when no subject prefix is configured.
const DefaultPrefix = "tutor"

// IngestCompleted is emitted after a batch has been committed.
type IngestCompleted struct {
	BatchID       string    `json:"batch_id"`
	RecordCount   int       `json:"record_count"`
	StudentCount  int       `json:"student_count"`
	Source        string    `json:"source"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// SaltRotated is emitted after a rotation commits. It never carries salt material.
type SaltRotated struct {
	SaltID         uint      `json:"salt_id"`
	PreviousSaltID uint      `json:"previous_salt_id,omitempty"`
	RotatedBy      string    `json:"rotated_by"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AuditRecorded mirrors a persisted audit entry without its details.
type AuditRecorded struct {
	EntryID       uint      `json:"entry_id"`
	UserID        string    `json:"user_id"`
	Role          string    `json:"role"`
	ActionType    string    `json:"action_type"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Conn is the subset of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

// Publisher sends events to NATS. A publisher without a connection drops every event.
type Publisher struct {
	conn   Conn
	prefix string
	logger zerolog.Logger
}

// NewPublisher builds a publisher. conn may be nil when NATS is not configured.
func NewPublisher(conn Conn, prefix string, logger zerolog.Logger) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if natsConn, ok := conn.(*nats.Conn); ok && natsConn == nil {
		conn = nil
	}
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Enabled reports whether events are actually delivered.
func (p *Publisher) Enabled() bool {
	return p != nil && p.conn != nil
}

// Subject returns the fully qualified subject for a suffix.
func (p *Publisher) Subject(suffix string) string {
	return p.prefix + "." + suffix
}

func (p *Publisher) IngestCompleted(ctx context.Context, event IngestCompleted) error {
	return p.publish(ctx, SubjectIngestCompleted, event)
}

func (p *Publisher) SaltRotated(ctx context.Context, event SaltRotated) error {
	return p.publish(ctx, SubjectSaltRotated, event)
}

func (p *Publisher) AuditRecorded(ctx context.Context, event AuditRecorded) error {
	return p.publish(ctx, SubjectAuditRecorded, event)
}

func (p *Publisher) publish(ctx context.Context, suffix string, event interface{}) error {
	if !p.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", suffix, err)
	}

	subject := p.Subject(suffix)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish event")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}
