package services

import (
	"math"
	"sort"
)

type AnalyticsTimeseries struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// AssessmentSummary aggregates a user's history.
type AssessmentSummary struct {
	Total        int                   `json:"total"`
	ByLikelihood map[Likelihood]int    `json:"by_likelihood"`
	AverageScore float64               `json:"average_score"`
	Latest       *AssessmentRecord     `json:"latest,omitempty"`
	Timeseries   []AnalyticsTimeseries `json:"timeseries"`
}

// Summarize aggregates records in any order. The average is rounded to two
// decimals.
func Summarize(recs []*AssessmentRecord) *AssessmentSummary {
	out := &AssessmentSummary{
		ByLikelihood: map[Likelihood]int{
			LikelihoodHigh:    0,
			LikelihoodMedium:  0,
			LikelihoodLow:     0,
			LikelihoodUnknown: 0,
		},
		Timeseries: []AnalyticsTimeseries{},
	}
	countsByDay := map[string]int{}
	sum := 0
	for _, r := range recs {
		if r == nil {
			continue
		}
		out.Total++
		out.ByLikelihood[r.Result.Likelihood]++
		sum += r.Result.Score
		if out.Latest == nil || r.CreatedAt.After(out.Latest.CreatedAt) {
			out.Latest = r
		}
		countsByDay[r.CreatedAt.UTC().Format("2006-01-02")]++
	}
	if out.Total > 0 {
		out.AverageScore = math.Round(float64(sum)/float64(out.Total)*100) / 100
	}
	out.Timeseries = buildTimeseries(countsByDay)
	return out
}

func buildTimeseries(counts map[string]int) []AnalyticsTimeseries {
	days := make([]string, 0, len(counts))
	for d := range counts {
		days = append(days, d)
	}
	sort.Strings(days)
	out := make([]AnalyticsTimeseries, 0, len(days))
	for _, d := range days {
		out = append(out, AnalyticsTimeseries{Date: d, Count: counts[d]})
	}
	return out
}
