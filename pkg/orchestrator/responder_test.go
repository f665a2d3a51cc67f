package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponder_Respond(t *testing.T) {
	ctx := context.Background()

	t.Run("uses the model reply when available", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{"  Happy to help with tax questions.  "}}
		got := NewResponder(l).Respond(ctx, "hello", "UAE", "Tax Services", nil)
		assert.Equal(t, "Happy to help with tax questions.", got)
	})

	t.Run("falls back to a greeting template on failure", func(t *testing.T) {
		l := &scriptedLLM{} // no scripted replies: every call errors
		got := NewResponder(l).Respond(ctx, "good morning!", "UAE", "Tax Services", nil)
		assert.Contains(t, got, "Hello!")
		assert.Contains(t, got, "Tax Services")
		assert.Contains(t, got, "UAE")
	})

	t.Run("falls back to a thanks template", func(t *testing.T) {
		l := &scriptedLLM{}
		got := NewResponder(l).Respond(ctx, "thanks a lot", "Qatar", "Legal Services", nil)
		assert.Contains(t, got, "You're welcome")
	})

	t.Run("generic template for everything else", func(t *testing.T) {
		l := &scriptedLLM{}
		got := NewResponder(l).Respond(ctx, "hmm", "UAE", "Tax Services", nil)
		assert.Contains(t, got, "Describe what you are looking for")
	})

	t.Run("caps overlong replies", func(t *testing.T) {
		l := &scriptedLLM{replies: []string{strings.Repeat("word ", 500)}}
		got := NewResponder(l).Respond(ctx, "hello", "UAE", "Tax Services", nil)
		assert.LessOrEqual(t, len([]rune(got)), maxReplyRunes+len("..."))
		assert.True(t, strings.HasSuffix(got, "..."))
	})
}
