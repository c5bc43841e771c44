package postgres

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/shopauth"
)

const defaultAttemptTimeout = 2 * time.Second

var _ shopauth.AuditSink = (*AttemptLog)(nil)

// AttemptLog is an audit sink that appends every event to auth_attempts.
// Insert failures are logged and swallowed.
type AttemptLog struct {
	db      DBTX
	log     *zap.Logger
	timeout time.Duration
}

func NewAttemptLog(db DBTX, log *zap.Logger) *AttemptLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptLog{db: db, log: log, timeout: defaultAttemptTimeout}
}

func (a *AttemptLog) Emit(ctx context.Context, ev shopauth.AuditEvent) {
	meta := []byte("{}")
	if len(ev.Metadata) > 0 {
		if b, err := json.Marshal(ev.Metadata); err == nil {
			meta = b
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	_, err := a.db.ExecContext(ctx,
		`INSERT INTO auth_attempts (occurred_at, event_type, user_id, identifier, ip, user_agent, success, error_code, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.Timestamp, ev.EventType, ev.UserID, ev.Identifier, ev.IP, ev.UserAgent, ev.Success, ev.Error, meta)
	if err != nil {
		a.log.Warn("auth attempt insert failed", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}
