package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pharmacy/internal/jobs"
	"github.com/odyssey-erp/odyssey-pharmacy/internal/reorder"
)

// PharmacyLister enumerates pharmacies that own catalog entries.
type PharmacyLister interface {
	Pharmacies(ctx context.Context) ([]string, error)
}

// SuggestionSource produces reorder suggestions for one pharmacy.
type SuggestionSource interface {
	Suggestions(ctx context.Context, pharmacyID string) ([]reorder.Suggestion, error)
}

// ReorderScanJob logs and counts reorder suggestions per pharmacy.
type ReorderScanJob struct {
	Pharmacies PharmacyLister
	Advisor    SuggestionSource
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskReorderScan.
func (j *ReorderScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Advisor == nil || j.Pharmacies == nil {
		return errors.New("reorder scan: handler not configured")
	}
	var payload ReorderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("reorder scan payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskReorderScan)
	defer func() { resultErr = tracker.End(resultErr) }()

	start := time.Now()
	pharmacies, err := scope(ctx, j.Pharmacies, payload.PharmacyID)
	if err != nil {
		return err
	}
	logger := loggerOr(j.Logger)
	var failed []error
	total := 0
	for _, ph := range pharmacies {
		suggestions, err := j.Advisor.Suggestions(ctx, ph)
		if err != nil {
			logger.Error("reorder scan", slog.String("pharmacy_id", ph), slog.Any("error", err))
			failed = append(failed, fmt.Errorf("pharmacy %s: %w", ph, err))
			continue
		}
		byPriority := map[reorder.Priority]int{}
		for _, s := range suggestions {
			byPriority[s.Priority]++
		}
		for priority, count := range byPriority {
			j.Metrics.AddSuggestions(string(priority), count)
		}
		total += len(suggestions)
		if len(suggestions) > 0 {
			logger.Info("reorder suggestions",
				slog.String("pharmacy_id", ph),
				slog.Int("high", byPriority[reorder.PriorityHigh]),
				slog.Int("medium", byPriority[reorder.PriorityMedium]),
			)
		}
	}
	logger.Info("completed reorder scan",
		slog.Int("pharmacies", len(pharmacies)),
		slog.Int("suggestions", total),
		slog.Duration("duration", time.Since(start)),
	)
	return errors.Join(failed...)
}

func scope(ctx context.Context, lister PharmacyLister, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	return lister.Pharmacies(ctx)
}

func loggerOr(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
