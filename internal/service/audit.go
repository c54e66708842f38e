package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"onetrivia/game-service/pkg/logger"
)

// AuditEvent describes a domain event handed to the audit/analytics sink.
type AuditEvent struct {
	Type      string
	UserID    uint64
	SessionID string
	PeriodID  uint64
	Details   map[string]interface{}
}

// AuditSink receives domain events for audit and analytics. Sinks are
// fire-and-forget collaborators; their failures never abort an operation.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}

type logAuditSink struct {
	log *logger.Logger
}

// NewLogAuditSink returns an AuditSink that writes events to the structured log.
func NewLogAuditSink(log *logger.Logger) AuditSink {
	return &logAuditSink{log: log}
}

func (s *logAuditSink) Record(ctx context.Context, event AuditEvent) error {
	fields := logrus.Fields{
		"audit_type": event.Type,
		"user_id":    event.UserID,
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.PeriodID != 0 {
		fields["period_id"] = event.PeriodID
	}
	for k, v := range event.Details {
		fields[k] = v
	}
	s.log.WithFields(fields).Info("audit event")
	return nil
}

// emitAudit records an event, swallowing sink errors and panics.
func emitAudit(sink AuditSink, event AuditEvent) {
	if sink == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	_ = sink.Record(context.Background(), event)
}
