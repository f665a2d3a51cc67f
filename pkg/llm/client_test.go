package llm

import (
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "bare json untouched",
			raw:  `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "json fence removed",
			raw:  "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "plain fence removed",
			raw:  "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "prose around object trimmed",
			raw:  "Here is the result:\n{\"a\": 1}\nHope that helps!",
			want: `{"a": 1}`,
		},
		{
			name: "array kept whole",
			raw:  "Sure: [1, 2, 3].",
			want: `[1, 2, 3]`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.raw))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}

	t.Run("decodes fenced output", func(t *testing.T) {
		var out payload
		err := decodeJSON("```json\n{\"name\": \"x\", \"score\": 9}\n```", &out)
		require.NoError(t, err)
		assert.Equal(t, "x", out.Name)
		assert.Equal(t, 9, out.Score)
	})

	t.Run("rejects empty output", func(t *testing.T) {
		var out payload
		assert.Error(t, decodeJSON("", &out))
	})

	t.Run("rejects non-json output", func(t *testing.T) {
		var out payload
		assert.Error(t, decodeJSON("I cannot answer that.", &out))
	})
}

func TestIsOverloadError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"auth failure", &openai.APIError{HTTPStatusCode: 401}, false},
		{"request error 500", &openai.RequestError{HTTPStatusCode: 500}, true},
		{"plain error", assert.AnError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isOverloadError(tt.err))
		})
	}
}

func TestOverloadBackoffIsJittered(t *testing.T) {
	bo := newOverloadBackoff(5 * time.Second)
	assert.Equal(t, 5*time.Second, bo.InitialInterval)
	assert.Equal(t, 2.0, bo.Multiplier)
	assert.Greater(t, bo.RandomizationFactor, 0.0,
		"overload waits must be jittered, not fixed")
	assert.Equal(t, time.Duration(0), bo.MaxElapsedTime)
}

func TestParseError(t *testing.T) {
	err := &ParseError{Raw: "garbage", Err: assert.AnError}
	assert.True(t, IsParseError(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, IsParseError(assert.AnError))
}
