package protocol

// EventKind returns the kind of a reply or stream event. Documents from
// agents that predate the "kind" discriminator are classified by shape.
func EventKind(doc Document) string {
	if k, ok := doc["kind"].(string); ok && k != "" {
		return k
	}
	_, hasStatus := doc["status"]
	_, hasFinal := doc["final"]
	switch {
	case doc["role"] != nil && doc["parts"] != nil:
		return KindMessage
	case doc["artifact"] != nil:
		return KindArtifactUpdate
	case hasStatus && hasFinal:
		return KindStatusUpdate
	case hasStatus:
		return KindTask
	}
	return ""
}

// EventState returns status.state of a task or status-update event.
func EventState(doc Document) TaskState {
	status, ok := doc["status"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := status["state"].(string)
	return TaskState(s)
}

// IsTerminal reports whether doc ends a streamed reply: a direct message,
// a task or status update in a terminal state, or a status update marked
// final.
func IsTerminal(doc Document) bool {
	switch EventKind(doc) {
	case KindMessage:
		return true
	case KindTask:
		return EventState(doc).Terminal()
	case KindStatusUpdate:
		if final, _ := doc["final"].(bool); final {
			return true
		}
		return EventState(doc).Terminal()
	}
	return false
}
