package handler

// BroadcastTrainingEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastTrainingEvent(side string, eventType string, data any) {
	h.Broadcast(WSEvent{
		Type:    eventType,
		Channel: TrainingChannel(side),
		Data:    data,
	})
}
