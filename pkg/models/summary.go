package models

// BatchSummary is the aggregate written to an AnalysisJob when it completes.
type BatchSummary struct {
	TotalImages             int          `json:"total_images"`
	SuccessfulAnalyses      int          `json:"successful_analyses"`
	FailedAnalyses          int          `json:"failed_analyses"`
	AverageHealthScore      *float64     `json:"average_health_score,omitempty"`
	CommonIssues            []IssueCount `json:"common_issues"`
	PriorityRecommendations []string     `json:"priority_recommendations"`
}

// IssueCount is a disease or pest label with the number of times it was
// reported across all results. A label listed twice in one image, or as both
// a disease and a pest, counts each time.
type IssueCount struct {
	Issue string `json:"issue"`
	Count int    `json:"count"`
}
