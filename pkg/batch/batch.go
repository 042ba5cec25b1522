// Package batch runs the analysis pipeline over many radiographs with a
// bounded worker pool. Images are independent, so items run in parallel;
// output preserves input order and one failed image never aborts the rest.
package batch

import (
	"context"
	"sync"

	"github.com/dentalvision/espace-analyzer/pkg/analyzer"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// Item is one batch input.
type Item struct {
	Filename string
	Data     []byte
}

// Runner fans batch items out over a fixed number of workers. Detector
// inference dominates the cost, so the worker count should track the
// number of usable inference slots.
type Runner struct {
	analyzer analyzer.ToothAnalyzer
	workers  int
}

// New creates a Runner. Worker counts below 1 are raised to 1.
func New(a analyzer.ToothAnalyzer, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{analyzer: a, workers: workers}
}

// Run analyzes every item and assembles the batch report. Context
// cancellation fails the not-yet-processed items with the context error
// rather than returning partial results silently.
func (r *Runner) Run(ctx context.Context, items []Item) types.BatchReport {
	results := make([]types.BatchItemResult, len(items))

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup

	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			item := items[idx]
			result := types.BatchItemResult{
				Filename: item.Filename,
				Size:     int64(len(item.Data)),
			}

			if err := ctx.Err(); err != nil {
				result.Status = types.StatusError
				result.Error = err.Error()
				results[idx] = result
				return
			}

			report, err := r.analyzer.Analyze(ctx, item.Data)
			if err != nil {
				result.Status = types.StatusError
				result.Error = err.Error()
			} else {
				result.Status = types.StatusSuccess
				result.Report = report
			}
			results[idx] = result
		}(i)
	}
	wg.Wait()

	return types.BatchReport{
		Items:   results,
		Summary: summarize(results),
	}
}

// summarize computes batch statistics over the successful items only.
func summarize(results []types.BatchItemResult) types.BatchSummary {
	summary := types.BatchSummary{
		TotalFiles:         len(results),
		SignificanceCounts: make(map[string]int),
	}

	var diffSum float64
	var diffCount int
	for _, res := range results {
		if res.Status != types.StatusSuccess {
			summary.FailedFiles++
			continue
		}
		summary.ProcessedFiles++
		for _, pair := range res.Report.Pairs {
			diffSum += pair.WidthDifference.ValueMM
			diffCount++
			summary.SignificanceCounts[pair.WidthDifference.ClinicalSignificance]++
		}
	}
	if diffCount > 0 {
		summary.AverageWidthDifference = diffSum / float64(diffCount)
	}
	return summary
}
