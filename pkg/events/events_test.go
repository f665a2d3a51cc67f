package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventJSONShape(t *testing.T) {
	t.Run("omits unset optional fields", func(t *testing.T) {
		ev := Event{Agent: AgentSearch, Type: TypeStrategyStart}
		raw, err := json.Marshal(ev)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, "search", decoded["agent"])
		assert.Equal(t, "strategy_start", decoded["type"])
		assert.NotContains(t, decoded, "is_relevant")
		assert.NotContains(t, decoded, "relevance_score")
		assert.NotContains(t, decoded, "no_results")
	})

	t.Run("keeps wire field names", func(t *testing.T) {
		ev := Event{
			Agent:          AgentAdjudicator,
			Type:           TypeProfileComplete,
			Index:          Int(0),
			IsRelevant:     Bool(true),
			RelevanceScore: Float(0.85),
			Reasoning:      "strong service match",
		}
		raw, err := json.Marshal(ev)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, float64(0), decoded["index"])
		assert.Equal(t, true, decoded["is_relevant"])
		assert.Equal(t, 0.85, decoded["relevance_score"])
		assert.Equal(t, "strong service match", decoded["reasoning"])
	})

	t.Run("false and zero optionals survive", func(t *testing.T) {
		ev := Event{Type: TypeProfileComplete, IsRelevant: Bool(false), RelevanceScore: Float(0)}
		raw, err := json.Marshal(ev)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, false, decoded["is_relevant"])
		assert.Equal(t, float64(0), decoded["relevance_score"])
	})
}

func TestEventTerminal(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want bool
	}{
		{"workflow complete", Event{Agent: AgentWorkflow, Type: TypeComplete}, true},
		{"workflow no_results", Event{Agent: AgentWorkflow, Type: TypeNoResults}, true},
		{"workflow error", Event{Agent: AgentWorkflow, Type: TypeError}, true},
		{"workflow cancelled", Event{Agent: AgentWorkflow, Type: TypeCancelled}, true},
		{"orchestrator final", Event{Agent: AgentOrchestrator, Type: TypeFinal}, true},
		{"search complete is not terminal", Event{Agent: AgentSearch, Type: TypeComplete}, false},
		{"adjudicator error is not terminal", Event{Agent: AgentAdjudicator, Type: TypeError}, false},
		{"workflow start", Event{Agent: AgentWorkflow, Type: TypeStart}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.Terminal())
		})
	}
}

func TestEmitter(t *testing.T) {
	t.Run("delivers events in order with timestamps", func(t *testing.T) {
		emitter := NewEmitter()
		ctx := context.Background()

		require.NoError(t, emitter.Emit(ctx, Event{Type: TypeStrategyStart}))
		require.NoError(t, emitter.Emit(ctx, Event{Type: TypeStrategyComplete}))
		emitter.Close()

		var got []Event
		for ev := range emitter.Events() {
			got = append(got, ev)
		}
		require.Len(t, got, 2)
		assert.Equal(t, TypeStrategyStart, got[0].Type)
		assert.Equal(t, TypeStrategyComplete, got[1].Type)
		assert.NotEmpty(t, got[0].Timestamp)
	})

	t.Run("blocked emit returns on cancellation", func(t *testing.T) {
		emitter := NewEmitter()
		ctx, cancel := context.WithCancel(context.Background())

		// Fill the buffer with nobody consuming.
		for i := 0; i < Buffer; i++ {
			require.NoError(t, emitter.Emit(ctx, Event{Type: TypeSearchProgress}))
		}

		done := make(chan error, 1)
		go func() {
			done <- emitter.Emit(ctx, Event{Type: TypeSearchProgress})
		}()

		select {
		case err := <-done:
			t.Fatalf("emit returned before cancel: %v", err)
		case <-time.After(20 * time.Millisecond):
		}

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("emit did not unblock after cancel")
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want FrameKind
	}{
		{
			"workflow complete is final",
			Event{Agent: AgentWorkflow, Type: TypeComplete, Summary: "Here are your providers."},
			FrameFinal,
		},
		{
			"no_results is final",
			Event{Agent: AgentWorkflow, Type: TypeNoResults, Message: "No matching providers were found."},
			FrameFinal,
		},
		{
			"short progress note is status",
			Event{Agent: AgentSearch, Type: TypeSearchStart, Message: "Searching profiles"},
			FrameStatus,
		},
		{
			"long prose with status keyword is status",
			Event{Agent: AgentSearch, Type: TypeSearchProgress,
				Message: "Searching the provider index for candidates matching your request right now"},
			FrameStatus,
		},
		{
			"long substantive reasoning is final",
			Event{Agent: AgentAdjudicator, Type: TypeProfileComplete,
				Reasoning: "This firm specializes in corporate tax advisory for startups in the UAE."},
			FrameFinal,
		},
		{
			"empty event is status",
			Event{Agent: AgentSummarizer, Type: TypePreparationStart},
			FrameStatus,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ev))
		})
	}
}

func TestToFrame(t *testing.T) {
	ev := Event{Agent: AgentWorkflow, Type: TypeComplete, Summary: "Final answer for the user."}
	frame := ToFrame(ev)
	assert.Equal(t, FrameFinal, frame.Kind)
	assert.Equal(t, "Final answer for the user.", frame.Text)
	assert.Equal(t, ev, frame.Event)
}
