package retriever

import (
	"testing"

	"github.com/growbal/discovery/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"lowercases and trims", []string{" VAT ", "Audit"}, []string{"vat", "audit"}},
		{"drops duplicates", []string{"vat", "VAT", "vat"}, []string{"vat"}},
		{"drops empties", []string{"", "  ", "tax"}, []string{"tax"}},
		{"empty input", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTags(tt.in))
		})
	}
}

func TestCountMatches(t *testing.T) {
	profileTags := []string{"VAT", "corporate tax", "Audit"}

	assert.Equal(t, 2, countMatches(profileTags, []string{"vat", "audit"}))
	assert.Equal(t, 0, countMatches(profileTags, []string{"payroll"}))
	assert.Equal(t, 1, countMatches(profileTags, []string{"corporate tax", "payroll"}))
	assert.Equal(t, 0, countMatches(nil, []string{"vat"}))
}

func TestSortDescending(t *testing.T) {
	matches := []models.ProfileMatch{
		{ProfileID: 3, SimilarityScore: 0.5},
		{ProfileID: 1, SimilarityScore: 0.9},
		{ProfileID: 4, SimilarityScore: 0.5},
		{ProfileID: 2, SimilarityScore: 0.7},
	}
	sortDescending(matches)

	assert.Equal(t, []int{1, 2, 3, 4}, []int{
		matches[0].ProfileID, matches[1].ProfileID,
		matches[2].ProfileID, matches[3].ProfileID,
	})
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].SimilarityScore, matches[i].SimilarityScore)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.2))
	assert.Equal(t, 0.42, clamp01(0.42))
	assert.Equal(t, 1.0, clamp01(1.3))
}

func TestFetchLimit(t *testing.T) {
	assert.Equal(t, 30, fetchLimit(7))
	assert.Equal(t, 60, fetchLimit(20))
}
