// Package usage records every completed LLM call as an immutable ledger
// entry and computes aggregate statistics from them. Logging is strictly
// non-critical: a storage failure must never block a user-facing reply.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
)

const (
	usageKeyPrefix  = "usage_"
	recentActivityN = 10
)

// Ledger persists and aggregates usage records.
type Ledger struct {
	store  store.Store
	logger *logrus.Logger
	now    func() time.Time
}

func NewLedger(st store.Store, logger *logrus.Logger) *Ledger {
	return &Ledger{store: st, logger: logger, now: time.Now}
}

// Record accounts one completed LLM call. It never returns an error:
// persistence failures are logged and swallowed.
func (l *Ledger) Record(ctx context.Context, toolID, model, prompt, response, userID string, source models.UsageSource) models.UsageRecord {
	promptTokens := EstimateTokens(prompt)
	responseTokens := EstimateTokens(response)
	promptCost, responseCost, totalCost := CalculateCost(promptTokens, responseTokens, model)

	record := models.UsageRecord{
		ID:             uuid.NewString(),
		Timestamp:      l.now().UTC().Format(time.RFC3339),
		ToolID:         toolID,
		Model:          model,
		UserID:         userID,
		Source:         source,
		PromptTokens:   promptTokens,
		ResponseTokens: responseTokens,
		TotalTokens:    promptTokens + responseTokens,
		PromptCost:     promptCost,
		ResponseCost:   responseCost,
		TotalCost:      totalCost,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to marshal usage record")
		return record
	}
	if err := l.store.Set(ctx, usageKeyPrefix+record.ID, string(payload)); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"tool_id": toolID,
			"model":   model,
		}).Warn("Failed to persist usage record")
		return record
	}

	l.logger.WithFields(logrus.Fields{
		"tool_id": toolID,
		"model":   model,
		"tokens":  record.TotalTokens,
		"cost":    record.TotalCost,
		"source":  source,
	}).Debug("AI usage logged")
	return record
}

// Stats aggregates records from the trailing window of the given number of
// days, optionally filtered to one tool. Storage errors yield an all-zero
// report; callers treat that as "no data", not failure.
func (l *Ledger) Stats(ctx context.Context, toolID string, days int) models.UsageStats {
	records, err := l.loadAll(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("Failed to load usage records")
		return emptyStats(days)
	}

	cutoff := l.now().AddDate(0, 0, -days)
	var filtered []models.UsageRecord
	for _, record := range records {
		ts, parseErr := time.Parse(time.RFC3339, record.Timestamp)
		if parseErr != nil || ts.Before(cutoff) {
			continue
		}
		if toolID != "" && record.ToolID != toolID {
			continue
		}
		filtered = append(filtered, record)
	}

	return l.aggregate(filtered, days)
}

// TodayCost returns the tool's accumulated cost for the trailing day. Used
// by the cost governor; any error reads as zero.
func (l *Ledger) TodayCost(ctx context.Context, toolID string) float64 {
	return l.Stats(ctx, toolID, 1).Total.Cost
}

func (l *Ledger) loadAll(ctx context.Context) ([]models.UsageRecord, error) {
	keys, err := l.store.List(ctx, usageKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}

	records := make([]models.UsageRecord, 0, len(keys))
	for _, key := range keys {
		value, found, getErr := l.store.Get(ctx, key)
		if getErr != nil || !found {
			// Skip unreadable records rather than failing the whole report.
			continue
		}
		var record models.UsageRecord
		if unmarshalErr := json.Unmarshal([]byte(value), &record); unmarshalErr != nil {
			l.logger.WithField("key", key).Debug("Skipping malformed usage record")
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (l *Ledger) aggregate(records []models.UsageRecord, days int) models.UsageStats {
	stats := emptyStats(days)

	totalTokens := 0
	totalCost := 0.0
	for _, record := range records {
		totalTokens += record.TotalTokens
		totalCost += record.TotalCost

		accumulate(stats.ByTool, record.ToolID, record)
		accumulate(stats.ByModel, record.Model, record)
		accumulate(stats.BySource, string(record.Source), record)
	}

	stats.Total.Requests = len(records)
	stats.Total.Tokens = totalTokens
	stats.Total.Cost = round4(totalCost)
	if len(records) > 0 {
		stats.Total.AvgCostPerRequest = round4(totalCost / float64(len(records)))
		stats.Total.AvgTokensPerRequest = totalTokens / len(records)
	}

	stats.DailyBreakdown = l.dailyBreakdown(records, days)

	// Recent activity: newest first.
	start := len(records) - recentActivityN
	if start < 0 {
		start = 0
	}
	recent := records[start:]
	for i := len(recent) - 1; i >= 0; i-- {
		stats.RecentActivity = append(stats.RecentActivity, recent[i])
	}

	return stats
}

// dailyBreakdown produces one entry per day of the window, zero-filled for
// days with no activity.
func (l *Ledger) dailyBreakdown(records []models.UsageRecord, days int) []models.UsageDay {
	breakdown := make([]models.UsageDay, 0, days)
	today := l.now()

	for i := days - 1; i >= 0; i-- {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		day := models.UsageDay{Date: date}
		for _, record := range records {
			if len(record.Timestamp) >= 10 && record.Timestamp[:10] == date {
				day.Requests++
				day.Tokens += record.TotalTokens
				day.Cost += record.TotalCost
			}
		}
		day.Cost = round4(day.Cost)
		breakdown = append(breakdown, day)
	}
	return breakdown
}

func accumulate(groups map[string]models.UsageGroup, key string, record models.UsageRecord) {
	if key == "" {
		key = "unknown"
	}
	group := groups[key]
	group.Requests++
	group.Tokens += record.TotalTokens
	group.Cost = round4(group.Cost + record.TotalCost)
	groups[key] = group
}

func emptyStats(days int) models.UsageStats {
	return models.UsageStats{
		Period:         fmt.Sprintf("%d days", days),
		ByTool:         map[string]models.UsageGroup{},
		ByModel:        map[string]models.UsageGroup{},
		BySource:       map[string]models.UsageGroup{},
		DailyBreakdown: []models.UsageDay{},
		RecentActivity: []models.UsageRecord{},
	}
}
