// Package retriever is the read-only adapter over the provider profile
// index in Weaviate. It exposes the three retrieval modes the search agent
// dispatches to: semantic (vector similarity), tag (structured match), and
// hybrid (semantic plus tag bonus).
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/growbal/discovery/pkg/models"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wvmodels "github.com/weaviate/weaviate/entities/models"
)

// hybridTagBonus is added to the semantic score when any requested tag
// matches; the combined score is clamped to 1.0.
const hybridTagBonus = 0.3

// Retriever is the read-only profile search interface the agents use.
type Retriever interface {
	// SearchSemantic returns profiles by vector similarity, descending,
	// floored at minSimilarity.
	SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]models.ProfileMatch, error)
	// SearchTags returns profiles matching the requested tags. Similarity
	// is matched/requested; matchAll keeps only full matches.
	SearchTags(ctx context.Context, tags []string, matchAll bool, maxResults int) ([]models.ProfileMatch, error)
	// SearchHybrid combines semantic similarity with a tag bonus.
	SearchHybrid(ctx context.Context, query string, tags []string, maxResults int) ([]models.ProfileMatch, error)
	// CountTotal returns the number of profiles in the index.
	CountTotal(ctx context.Context) (int, error)
}

// Config holds the Weaviate connection settings.
type Config struct {
	Scheme string
	Host   string
	Class  string
}

// WeaviateRetriever implements Retriever against a Weaviate class with
// profileId, profileText and tags properties.
type WeaviateRetriever struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

// New creates a WeaviateRetriever from config.
func New(cfg Config) (*WeaviateRetriever, error) {
	client, err := weaviate.NewClient(weaviate.Config{
		Scheme: cfg.Scheme,
		Host:   cfg.Host,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	if cfg.Class == "" {
		cfg.Class = "ProviderProfile"
	}
	return &WeaviateRetriever{
		client: client,
		class:  cfg.Class,
		logger: slog.Default().With("component", "retriever"),
	}, nil
}

// scoredProfile carries the tags alongside the match for hybrid scoring.
type scoredProfile struct {
	match models.ProfileMatch
	tags  []string
}

// SearchSemantic returns profiles by vector similarity, descending.
func (r *WeaviateRetriever) SearchSemantic(ctx context.Context, query string, maxResults int, minSimilarity float64) ([]models.ProfileMatch, error) {
	profiles, err := r.querySemantic(ctx, query, maxResults, minSimilarity)
	if err != nil {
		return nil, err
	}

	matches := make([]models.ProfileMatch, len(profiles))
	for i, p := range profiles {
		matches[i] = p.match
	}
	sortDescending(matches)
	return matches, nil
}

// SearchTags returns profiles whose tags overlap the requested set.
// Similarity is the fraction of requested tags the profile carries.
func (r *WeaviateRetriever) SearchTags(ctx context.Context, tags []string, matchAll bool, maxResults int) ([]models.ProfileMatch, error) {
	requested := normalizeTags(tags)
	if len(requested) == 0 {
		return nil, nil
	}

	where := filters.Where().
		WithPath([]string{"tags"}).
		WithOperator(filters.ContainsAny).
		WithValueText(requested...)
	if matchAll {
		operands := make([]*filters.WhereBuilder, len(requested))
		for i, tag := range requested {
			operands[i] = filters.Where().
				WithPath([]string{"tags"}).
				WithOperator(filters.ContainsAny).
				WithValueText(tag)
		}
		where = filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}

	// Overlap-filtered profiles can still score below each other; fetch
	// extra so the similarity cut keeps the best maxResults.
	result, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithFields(profileFields()...).
		WithWhere(where).
		WithLimit(fetchLimit(maxResults)).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("tag search failed: %w", err)
	}
	profiles, err := r.parseObjects(result)
	if err != nil {
		return nil, err
	}

	matches := make([]models.ProfileMatch, 0, len(profiles))
	for _, p := range profiles {
		matched := countMatches(p.tags, requested)
		if matched == 0 {
			continue
		}
		p.match.SimilarityScore = float64(matched) / float64(len(requested))
		matches = append(matches, p.match)
	}
	sortDescending(matches)
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches, nil
}

// SearchHybrid ranks by semantic similarity plus a flat bonus when any
// requested tag matches. Combined scores are clamped to 1.0; ties are
// broken by the semantic score.
func (r *WeaviateRetriever) SearchHybrid(ctx context.Context, query string, tags []string, maxResults int) ([]models.ProfileMatch, error) {
	requested := normalizeTags(tags)
	if len(requested) == 0 {
		return r.SearchSemantic(ctx, query, maxResults, 0)
	}

	profiles, err := r.querySemantic(ctx, query, fetchLimit(maxResults), 0)
	if err != nil {
		return nil, err
	}

	type ranked struct {
		match    models.ProfileMatch
		semantic float64
	}
	combined := make([]ranked, len(profiles))
	for i, p := range profiles {
		semantic := p.match.SimilarityScore
		score := semantic
		if countMatches(p.tags, requested) > 0 {
			score += hybridTagBonus
		}
		if score > 1.0 {
			score = 1.0
		}
		p.match.SimilarityScore = score
		combined[i] = ranked{match: p.match, semantic: semantic}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].match.SimilarityScore != combined[j].match.SimilarityScore {
			return combined[i].match.SimilarityScore > combined[j].match.SimilarityScore
		}
		return combined[i].semantic > combined[j].semantic
	})

	matches := make([]models.ProfileMatch, 0, maxResults)
	for _, c := range combined {
		matches = append(matches, c.match)
		if len(matches) == maxResults {
			break
		}
	}
	return matches, nil
}

// CountTotal returns the number of profiles in the index.
func (r *WeaviateRetriever) CountTotal(ctx context.Context) (int, error) {
	result, err := r.client.GraphQL().Aggregate().
		WithClassName(r.class).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("aggregate query failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("aggregate query error: %s", result.Errors[0].Message)
	}

	agg, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	objects, ok := agg[r.class].([]interface{})
	if !ok || len(objects) == 0 {
		return 0, nil
	}
	entry, ok := objects[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := entry["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// querySemantic runs a nearText query and returns scored profiles with
// their tags.
func (r *WeaviateRetriever) querySemantic(ctx context.Context, query string, limit int, minSimilarity float64) ([]scoredProfile, error) {
	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query})
	if minSimilarity > 0 {
		nearText = nearText.WithCertainty(float32(minSimilarity))
	}

	result, err := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithFields(profileFields()...).
		WithNearText(nearText).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic search failed: %w", err)
	}
	return r.parseObjects(result)
}

// parseObjects extracts profiles from a GraphQL Get response, deduplicating
// by profile id.
func (r *WeaviateRetriever) parseObjects(result *wvmodels.GraphQLResponse) ([]scoredProfile, error) {
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[r.class].([]interface{})
	if !ok {
		return nil, nil
	}

	profiles := make([]scoredProfile, 0, len(objects))
	seen := map[int]bool{}
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}

		id, ok := m["profileId"].(float64)
		if !ok {
			r.logger.Warn("skipping profile without profileId")
			continue
		}
		profileID := int(id)
		if seen[profileID] {
			continue
		}
		seen[profileID] = true

		text, _ := m["profileText"].(string)
		similarity := 0.0
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				similarity = clamp01(certainty)
			}
		}

		var tags []string
		if raw, ok := m["tags"].([]interface{}); ok {
			for _, t := range raw {
				if s, ok := t.(string); ok {
					tags = append(tags, s)
				}
			}
		}

		profiles = append(profiles, scoredProfile{
			match: models.ProfileMatch{
				ProfileID:       profileID,
				SimilarityScore: similarity,
				ProfileText:     text,
			},
			tags: tags,
		})
	}
	return profiles, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func profileFields() []graphql.Field {
	return []graphql.Field{
		{Name: "profileId"},
		{Name: "profileText"},
		{Name: "tags"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}
}

// fetchLimit over-fetches so post-filtering still fills maxResults.
func fetchLimit(maxResults int) int {
	limit := maxResults * 3
	if limit < 30 {
		limit = 30
	}
	return limit
}

func normalizeTags(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// countMatches counts how many requested tags the profile carries.
func countMatches(profileTags, requested []string) int {
	have := map[string]bool{}
	for _, tag := range profileTags {
		have[strings.ToLower(strings.TrimSpace(tag))] = true
	}
	matched := 0
	for _, tag := range requested {
		if have[tag] {
			matched++
		}
	}
	return matched
}

// sortDescending orders matches by similarity, ties by profile id for
// deterministic output.
func sortDescending(matches []models.ProfileMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		return matches[i].ProfileID < matches[j].ProfileID
	})
}
