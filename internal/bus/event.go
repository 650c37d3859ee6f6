package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the sync core. Subscribers filter by
// namespace prefix (e.g. "message." receives every message event).
const (
	KindMessageUpserted   = "message.upserted"
	KindMessageReceived   = "message.received"
	KindMessageSendAck    = "message.send_ack"
	KindMessageSendFailed = "message.send_failed"

	KindTimelineUpdated = "timeline.updated"

	KindTypingChanged   = "presence.typing_changed"
	KindPresenceChanged = "presence.changed"

	KindUnreadChanged = "unread.changed"

	KindNotifyScheduled = "notify.scheduled"

	KindStoreStatusChanged = "store.status_changed"
)
