package analysis

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kiranshivaraju/greeneye/pkg/models"
)

const (
	MaxCommonIssues            = 5
	MaxPriorityRecommendations = 8
)

var reWhitespace = regexp.MustCompile(`\s+`)

// Summarize aggregates all persisted results of a batch.
// Rankings sort by count descending and break ties alphabetically, so the same
// rows always produce the same summary regardless of order.
func Summarize(results []*models.ImageAnalysisResult) models.BatchSummary {
	summary := models.BatchSummary{
		TotalImages:             len(results),
		CommonIssues:            []models.IssueCount{},
		PriorityRecommendations: []string{},
	}

	issues := make(map[string]int)
	recs := make(map[string]int)
	var scoreSum float64

	for _, r := range results {
		if !r.Succeeded() {
			summary.FailedAnalyses++
			continue
		}
		summary.SuccessfulAnalyses++
		if r.OverallScore != nil {
			scoreSum += *r.OverallScore
		}

		if r.DiseaseAnalysis.Detected() {
			countLabels(issues, r.DiseaseAnalysis.DiseaseTypes)
		}
		if r.PestAnalysis.Detected() {
			countLabels(issues, r.PestAnalysis.PestTypes)
		}
		for _, rec := range r.Recommendations {
			recs[rec]++
		}
	}

	if summary.SuccessfulAnalyses > 0 {
		avg := scoreSum / float64(summary.SuccessfulAnalyses)
		summary.AverageHealthScore = &avg
	}

	summary.CommonIssues = append(summary.CommonIssues, rank(issues, MaxCommonIssues)...)
	for _, ic := range rank(recs, MaxPriorityRecommendations) {
		summary.PriorityRecommendations = append(summary.PriorityRecommendations, ic.Issue)
	}

	return summary
}

func countLabels(counts map[string]int, labels []string) {
	for _, l := range labels {
		l = NormalizeLabel(l)
		if l == "" {
			continue
		}
		counts[l]++
	}
}

// NormalizeLabel trims a model-produced label and collapses inner whitespace.
func NormalizeLabel(label string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(label, " "))
}

func rank(counts map[string]int, limit int) []models.IssueCount {
	ranked := make([]models.IssueCount, 0, len(counts))
	for k, n := range counts {
		ranked = append(ranked, models.IssueCount{Issue: k, Count: n})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Issue < ranked[j].Issue
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
