package events

import "strings"

// FrameKind splits the stream into transient progress and substantive
// content. Status frames are displayed and discarded; final frames are
// appended to the conversation.
type FrameKind string

const (
	FrameStatus FrameKind = "status"
	FrameFinal  FrameKind = "final"
)

// Frame is one display unit derived from an event.
type Frame struct {
	Kind  FrameKind `json:"kind"`
	Text  string    `json:"text"`
	Event Event     `json:"event"`
}

// minFinalLength is the prose threshold below which an event is treated as
// a progress note rather than content.
const minFinalLength = 40

// statusKeywords mark progress chatter regardless of length.
var statusKeywords = []string{
	"searching",
	"analyzing",
	"processing",
	"strategy",
	"progress",
	"found profiles",
	"complete",
	"step",
}

// Classify decides whether an event is a status or a final frame.
// Workflow terminals carrying content are always final; otherwise prose of
// substantial length without status keywords is final.
func Classify(ev Event) FrameKind {
	if ev.Terminal() {
		return FrameFinal
	}

	text := DisplayText(ev)
	if len(text) < minFinalLength {
		return FrameStatus
	}
	lower := strings.ToLower(text)
	for _, kw := range statusKeywords {
		if strings.Contains(lower, kw) {
			return FrameStatus
		}
	}
	return FrameFinal
}

// DisplayText renders the human-readable text of an event. Empty for
// events that carry no prose.
func DisplayText(ev Event) string {
	switch {
	case ev.Summary != "":
		return ev.Summary
	case ev.Message != "":
		return ev.Message
	case ev.Type == TypeProfileStreaming:
		return ev.PartialText
	case ev.Type == TypeProfileComplete:
		return ev.Reasoning
	case ev.Error != "":
		return ev.Error
	}
	return ""
}

// ToFrame converts an event into its display frame.
func ToFrame(ev Event) Frame {
	return Frame{
		Kind:  Classify(ev),
		Text:  DisplayText(ev),
		Event: ev,
	}
}
