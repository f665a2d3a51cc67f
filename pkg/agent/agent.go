// Package agent implements the three pipeline stages: search (strategy
// pick + retrieval), adjudicator (per-candidate streaming relevance
// verdicts), and summarizer (final user-facing artifact).
//
// Agents emit through an EmitFunc supplied by the caller; the workflow
// coordinator wraps each event with the agent name before forwarding.
package agent

import "github.com/growbal/discovery/pkg/events"

// EmitFunc publishes one event to the caller's stream. It blocks under
// backpressure and returns an error only when the stream is gone
// (cancellation); agents abort on a non-nil return.
type EmitFunc func(events.Event) error
