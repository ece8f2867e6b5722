package protocol

import "strings"

// EventKind is the suffix of a per-agent event name.
type EventKind string

const (
	EventAIResponse      EventKind = "ai_response"
	EventUpdateAnimation EventKind = "update_animation"
	EventCommentReceived EventKind = "comment_received"
)

var eventKinds = []EventKind{EventAIResponse, EventUpdateAnimation, EventCommentReceived}

// EventName returns the channel name viewers listen on, e.g. "a1_ai_response".
func EventName(agentID string, kind EventKind) string {
	return agentID + "_" + string(kind)
}

// ParseEventName splits an event name into agent id and kind.
// Agent ids may themselves contain underscores.
func ParseEventName(name string) (agentID string, kind EventKind, ok bool) {
	for _, k := range eventKinds {
		suffix := "_" + string(k)
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return strings.TrimSuffix(name, suffix), k, true
		}
	}
	return "", "", false
}
