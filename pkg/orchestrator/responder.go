package orchestrator

import (
	"context"
	"log/slog"
	"strings"

	"github.com/growbal/discovery/pkg/agent/prompt"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
)

// responderTurns is how much recent history the lightweight reply sees.
const responderTurns = 3

// maxReplyRunes caps the conversational reply length.
const maxReplyRunes = 1200

// Responder answers greetings and meta-questions with a single LLM call and
// no retrieval. It never fails: LLM errors fall back to a canned reply.
type Responder struct {
	llm    llm.Completer
	logger *slog.Logger
}

// NewResponder creates a Responder over the given completer.
func NewResponder(completer llm.Completer) *Responder {
	return &Responder{
		llm:    completer,
		logger: slog.Default().With("component", "responder"),
	}
}

// Respond produces the assistant reply for a conversational turn.
func (r *Responder) Respond(ctx context.Context, message, country, serviceType string, turns []models.Turn) string {
	if len(turns) > responderTurns {
		turns = turns[len(turns)-responderTurns:]
	}

	reply, err := r.llm.Complete(ctx, prompt.BuildConversationalMessages(
		message, country, serviceType, prompt.FormatTranscript(turns)))
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			r.logger.Warn("conversational reply failed, using template", "error", err)
		}
		return templateReply(message, country, serviceType)
	}
	return capRunes(strings.TrimSpace(reply), maxReplyRunes)
}

var (
	greetingWords = []string{"hello", "hi", "hey", "good morning", "good afternoon", "good evening"}
	thanksWords   = []string{"thank", "thanks", "appreciate"}
)

// templateReply is the deterministic fallback keyed by the user message.
func templateReply(message, country, serviceType string) string {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, greetingWords):
		return "Hello! I can help you find " + serviceType + " providers in " + country +
			". Tell me what you need and I will search for matching providers."
	case containsAny(lower, thanksWords):
		return "You're welcome! Let me know if you need anything else about " +
			serviceType + " providers in " + country + "."
	default:
		return "I can help you find " + serviceType + " providers in " + country +
			". Describe what you are looking for and I will search the directory."
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func capRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "..."
}
