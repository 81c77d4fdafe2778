package model

import "time"

// Direction classifies a Message relative to this process.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is an append-only audit log entry. Purely observational: no
// component in the broker reads its own log back.
type Message struct {
	ID        int64
	Direction Direction
	Type      string
	Payload   []byte // opaque JSON
	CreatedAt time.Time
}

// Common message type tags for audit entries written through
// Store.LogMessage. No HTTP route or other component in this tree calls
// LogMessage, so none of these entries are written today.
const (
	MessageTaskSubmit   = "task_submit"
	MessageTaskCancel   = "task_cancel"
	MessageTaskFetch    = "task_fetch"
	MessageTaskStatus   = "task_status"
	MessageReconcilePoll = "reconcile_poll"
)
