package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Trace is one Thought-Action-Observation cycle of the agent.
type Trace struct {
	ID          string            `json:"id"`
	SessionID   string            `json:"session_id"`
	TurnNumber  int               `json:"turn_number"`
	Thought     string            `json:"thought"`
	Action      string            `json:"action"`
	ActionInput json.RawMessage   `json:"action_input,omitempty"`
	Observation string            `json:"observation"`
	Success     bool              `json:"success"`
	Timestamp   int64             `json:"timestamp"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// String renders the trace on a single line for logs.
func (t *Trace) String() string {
	status := "ok"
	if !t.Success {
		status = "fail"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "turn=%d action=%s status=%s", t.TurnNumber, t.Action, status)
	if t.Thought != "" {
		fmt.Fprintf(&b, " thought=%q", t.Thought)
	}
	if t.Observation != "" {
		fmt.Fprintf(&b, " observation=%q", t.Observation)
	}
	if et := t.Metadata["error_type"]; et != "" {
		fmt.Fprintf(&b, " error_type=%s", et)
	}
	return b.String()
}
