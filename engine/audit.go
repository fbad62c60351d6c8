package engine

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

// AuditEntry records one tool execution.
type AuditEntry struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	SessionID  string          `json:"session_id"`
	RequestID  string          `json:"request_id"`
	ParentID   *string         `json:"parent_id,omitempty"`
	AgentName  string          `json:"agent_name"`
	ToolName   string          `json:"tool_name"`
	ToolInput  json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput json.RawMessage `json:"tool_output,omitempty"`
	Error      *string         `json:"error,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	IsWriteOp  bool            `json:"is_write_op"`
	Confirmed  bool            `json:"confirmed"`
	Timestamp  int64           `json:"timestamp"`
}

// AuditLogger persists audit entries.
type AuditLogger interface {
	Log(ctx context.Context, entry *AuditEntry)
}

// LogAuditLogger writes audit entries as structured log lines.
type LogAuditLogger struct {
	log zerolog.Logger
}

// NewLogAuditLogger creates an audit logger writing to l.
func NewLogAuditLogger(l zerolog.Logger) *LogAuditLogger {
	return &LogAuditLogger{log: l.With().Str("stream", "audit").Logger()}
}

// Log implements AuditLogger.
func (a *LogAuditLogger) Log(_ context.Context, e *AuditEntry) {
	ev := a.log.Info()
	if e.Error != nil {
		ev = a.log.Warn().Str("error", *e.Error)
	}
	if e.ParentID != nil {
		ev = ev.Str("parent_id", *e.ParentID)
	}
	ev.Str("audit_id", e.ID).
		Str("user_id", e.UserID).
		Str("session_id", e.SessionID).
		Str("agent", e.AgentName).
		Str("tool", e.ToolName).
		RawJSON("input", nonEmptyJSON(e.ToolInput)).
		Bool("write", e.IsWriteOp).
		Bool("confirmed", e.Confirmed).
		Int64("duration_ms", e.DurationMs).
		Msg("tool audited")
}

func nonEmptyJSON(b json.RawMessage) []byte {
	if len(b) == 0 || !json.Valid(b) {
		return []byte("null")
	}
	return b
}
