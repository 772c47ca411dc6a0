package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
)

func newGovernorFixture(t *testing.T, tool models.Tool) (*CostGovernor, *usage.Ledger) {
	t.Helper()
	provider := store.NewMemoryProvider()
	catalog := tools.NewCatalog(provider.Namespace(store.NamespaceTools), testLogger())
	require.NoError(t, catalog.Upsert(context.Background(), tool))
	ledger := usage.NewLedger(provider.Namespace(store.NamespaceUsage), testLogger())
	return NewCostGovernor(ledger, catalog, testLogger()), ledger
}

// spend records enough usage to push the tool's daily cost to at least want.
func spend(t *testing.T, ledger *usage.Ledger, toolID string, want float64) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		cost := ledger.TodayCost(ctx, toolID)
		if cost >= want {
			return
		}
		// gpt-4o prices high enough to accumulate quickly
		ledger.Record(ctx, toolID, "gpt-4o", makeText(4000), makeText(4000), "user", models.UsageSourceWeb)
	}
	require.GreaterOrEqual(t, ledger.TodayCost(ctx, toolID), want)
}

func makeText(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}

func TestSelectModelUnderCeiling(t *testing.T) {
	governor, _ := newGovernorFixture(t, models.Tool{
		ID:          "writer",
		Name:        "Writer",
		Model:       "gpt-4o",
		CostCeiling: 100,
	})

	model, err := governor.SelectModel(context.Background(), "writer", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model)
}

func TestSelectModelDowngradesAtCeiling(t *testing.T) {
	governor, ledger := newGovernorFixture(t, models.Tool{
		ID:            "writer",
		Name:          "Writer",
		Model:         "gpt-4o",
		CostCeiling:   0.05,
		FallbackModel: "gpt-4o-mini",
	})
	spend(t, ledger, "writer", 0.05)

	model, err := governor.SelectModel(context.Background(), "writer", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestSelectModelErrorsWithoutFallback(t *testing.T) {
	governor, ledger := newGovernorFixture(t, models.Tool{
		ID:          "writer",
		Name:        "Writer",
		Model:       "gpt-4o",
		CostCeiling: 0.05,
	})
	spend(t, ledger, "writer", 0.05)

	_, err := governor.SelectModel(context.Background(), "writer", "gpt-4o")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCostCeiling))
	assert.Contains(t, err.Error(), "writer")
}

func TestSelectModelCeilingDisabled(t *testing.T) {
	governor, ledger := newGovernorFixture(t, models.Tool{
		ID:    "writer",
		Name:  "Writer",
		Model: "gpt-4o",
	})
	spend(t, ledger, "writer", 1.0)

	model, err := governor.SelectModel(context.Background(), "writer", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model)
}

func TestSelectModelFailsOpenOnUnknownTool(t *testing.T) {
	governor, _ := newGovernorFixture(t, models.Tool{
		ID:    "writer",
		Name:  "Writer",
		Model: "gpt-4o",
	})

	model, err := governor.SelectModel(context.Background(), "nonexistent", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", model)
}
