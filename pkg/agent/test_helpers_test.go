package agent

import (
	"context"
	"errors"

	"github.com/growbal/discovery/pkg/events"
	"github.com/growbal/discovery/pkg/llm"
	"github.com/growbal/discovery/pkg/models"
)

// fakeLLM scripts Completer responses for agent tests. CompleteJSON pops
// from jsonReplies; Stream pops from streamScripts.
type fakeLLM struct {
	jsonReplies   []string
	jsonErr       error
	streamScripts [][]string
	streamErrs    []error

	jsonCalls   int
	streamCalls int
}

func (f *fakeLLM) Complete(_ context.Context, _ []llm.Message) (string, error) {
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	if f.jsonCalls >= len(f.jsonReplies) {
		return "", errors.New("no scripted reply")
	}
	raw := f.jsonReplies[f.jsonCalls]
	f.jsonCalls++
	return raw, nil
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, msgs []llm.Message, out any) error {
	raw, err := f.Complete(ctx, msgs)
	if err != nil {
		return err
	}
	if decodeErr := llm.DecodeOutput(raw, out); decodeErr != nil {
		return &llm.ParseError{Raw: raw, Err: decodeErr}
	}
	return nil
}

func (f *fakeLLM) Stream(ctx context.Context, _ []llm.Message) (<-chan string, <-chan error) {
	deltas := make(chan string, 16)
	errs := make(chan error, 1)

	var script []string
	var scriptErr error
	if f.streamCalls < len(f.streamScripts) {
		script = f.streamScripts[f.streamCalls]
	}
	if f.streamCalls < len(f.streamErrs) {
		scriptErr = f.streamErrs[f.streamCalls]
	}
	f.streamCalls++

	go func() {
		defer close(deltas)
		defer close(errs)
		for _, delta := range script {
			select {
			case deltas <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if scriptErr != nil {
			errs <- scriptErr
		}
	}()
	return deltas, errs
}

// fakeRetriever scripts profile search results.
type fakeRetriever struct {
	matches []models.ProfileMatch
	total   int
	err     error

	semanticCalls int
	tagCalls      int
	hybridCalls   int
	lastQuery     string
	lastTags      []string
}

func (f *fakeRetriever) SearchSemantic(_ context.Context, query string, _ int, _ float64) ([]models.ProfileMatch, error) {
	f.semanticCalls++
	f.lastQuery = query
	return f.matches, f.err
}

func (f *fakeRetriever) SearchTags(_ context.Context, tags []string, _ bool, _ int) ([]models.ProfileMatch, error) {
	f.tagCalls++
	f.lastTags = tags
	return f.matches, f.err
}

func (f *fakeRetriever) SearchHybrid(_ context.Context, query string, tags []string, _ int) ([]models.ProfileMatch, error) {
	f.hybridCalls++
	f.lastQuery = query
	f.lastTags = tags
	return f.matches, f.err
}

func (f *fakeRetriever) CountTotal(_ context.Context) (int, error) {
	return f.total, nil
}

// collector gathers emitted events.
type collector struct {
	events []events.Event
}

func (c *collector) emit(ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) types() []events.Type {
	out := make([]events.Type, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func profileText(name, country, ptype string) string {
	return "Company Name: " + name + "\nCountry: " + country + "\nProvider Type: " + ptype
}
