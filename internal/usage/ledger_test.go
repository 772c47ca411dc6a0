package usage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
)

func newTestLedger() *Ledger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	provider := store.NewMemoryProvider()
	return NewLedger(provider.Namespace(store.NamespaceUsage), logger)
}

func TestRecordPersistsAndPrices(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	record := ledger.Record(ctx, "math-tutor", "gpt-4o", "what is 2+2", "2+2 equals 4", "user-1", models.UsageSourceWhatsApp)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "math-tutor", record.ToolID)
	assert.Equal(t, models.UsageSourceWhatsApp, record.Source)
	assert.Equal(t, EstimateTokens("what is 2+2"), record.PromptTokens)
	assert.Equal(t, record.PromptTokens+record.ResponseTokens, record.TotalTokens)

	stats := ledger.Stats(ctx, "", 1)
	assert.Equal(t, 1, stats.Total.Requests)
	assert.Equal(t, record.TotalTokens, stats.Total.Tokens)
}

func TestTodayCostAccumulatesPerTool(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	ledger.Record(ctx, "math-tutor", "gpt-4o", "prompt", "response", "u", models.UsageSourceWeb)
	ledger.Record(ctx, "math-tutor", "gpt-4o", "prompt", "response", "u", models.UsageSourceWeb)
	ledger.Record(ctx, "creative-writing", "gpt-4o", "prompt", "response", "u", models.UsageSourceWeb)

	mathCost := ledger.TodayCost(ctx, "math-tutor")
	writingCost := ledger.TodayCost(ctx, "creative-writing")
	assert.Greater(t, mathCost, writingCost)
	assert.Zero(t, ledger.TodayCost(ctx, "no-such-tool"))
}

func TestStatsWindowExcludesOldRecords(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	base := time.Now()
	ledger.now = func() time.Time { return base.AddDate(0, 0, -5) }
	ledger.Record(ctx, "math-tutor", "gpt-4o", "old prompt", "old response", "u", models.UsageSourceWeb)

	ledger.now = func() time.Time { return base }
	ledger.Record(ctx, "math-tutor", "gpt-4o", "new prompt", "new response", "u", models.UsageSourceWeb)

	recent := ledger.Stats(ctx, "math-tutor", 1)
	assert.Equal(t, 1, recent.Total.Requests)

	wide := ledger.Stats(ctx, "math-tutor", 7)
	assert.Equal(t, 2, wide.Total.Requests)
}

func TestStatsGroupsBySourceAndModel(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	ledger.Record(ctx, "math-tutor", "gpt-4o", "p", "r", "u", models.UsageSourceWeb)
	ledger.Record(ctx, "math-tutor", "gpt-4o-mini", "p", "r", "u", models.UsageSourceWhatsApp)

	stats := ledger.Stats(ctx, "", 1)
	assert.Equal(t, 1, stats.BySource[string(models.UsageSourceWeb)].Requests)
	assert.Equal(t, 1, stats.BySource[string(models.UsageSourceWhatsApp)].Requests)
	assert.Equal(t, 1, stats.ByModel["gpt-4o"].Requests)
	assert.Equal(t, 1, stats.ByModel["gpt-4o-mini"].Requests)
	assert.Equal(t, 2, stats.ByTool["math-tutor"].Requests)
}

func TestStatsDailyBreakdownZeroFilled(t *testing.T) {
	ledger := newTestLedger()
	ctx := context.Background()

	ledger.Record(ctx, "math-tutor", "gpt-4o", "p", "r", "u", models.UsageSourceWeb)

	stats := ledger.Stats(ctx, "", 7)
	require.Len(t, stats.DailyBreakdown, 7)

	today := stats.DailyBreakdown[6]
	assert.Equal(t, time.Now().Format("2006-01-02"), today.Date)
	assert.Equal(t, 1, today.Requests)
	for _, day := range stats.DailyBreakdown[:6] {
		assert.Zero(t, day.Requests)
	}
}

func TestStatsOnBrokenStoreIsEmptyNotFatal(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	ledger := NewLedger(brokenStore{}, logger)
	ctx := context.Background()

	// Record still returns a priced record even though nothing persists.
	record := ledger.Record(ctx, "math-tutor", "gpt-4o", "p", "r", "u", models.UsageSourceWeb)
	assert.Greater(t, record.TotalCost, 0.0)

	stats := ledger.Stats(ctx, "", 7)
	assert.Zero(t, stats.Total.Requests)
	assert.Equal(t, "7 days", stats.Period)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("store unavailable")
}
func (brokenStore) Set(context.Context, string, string) error { return fmt.Errorf("store unavailable") }
func (brokenStore) Delete(context.Context, string) error      { return fmt.Errorf("store unavailable") }
func (brokenStore) List(context.Context, string) ([]string, error) {
	return nil, fmt.Errorf("store unavailable")
}
