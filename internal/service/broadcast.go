package service

// Training event types sent to subscribers of a side's training channel.
const (
	EventTrainingProgress  = "training_progress"
	EventTrainingCompleted = "training_completed"
	EventTrainingCancelled = "training_cancelled"
	EventTrainingFailed    = "training_failed"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastTrainingEvent(side string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastTrainingEvent(string, string, any) {}
