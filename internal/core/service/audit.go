package service

import (
	"context"
	"time"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

// AuditSink builds the log entry written with every transition. Entries
// are committed in the same batch as the change they describe.
type AuditSink struct {
	newID func() string
	now   func() time.Time
}

func NewAuditSink(newID func() string, now func() time.Time) *AuditSink {
	return &AuditSink{newID: newID, now: now}
}

func (a *AuditSink) Entry(t domain.LogType, action, details string, actor domain.Principal) domain.LogEntry {
	user := actor.DisplayName
	if user == "" {
		user = actor.ID
	}
	return domain.LogEntry{
		ID:        a.newID(),
		Type:      t,
		Action:    action,
		Details:   details,
		Timestamp: a.now(),
		User:      user,
	}
}

// LogService reads the activity log.
type LogService struct {
	base
}

func NewLogService(d Deps) *LogService {
	return &LogService{base: newBase(d)}
}

// Logs returns up to limit entries, newest first. A limit <= 0 returns all.
func (s *LogService) Logs(ctx context.Context, limit int) ([]domain.LogEntry, error) {
	if _, err := s.principal(ctx); err != nil {
		return nil, err
	}
	logs := s.Mirror.Logs()
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
