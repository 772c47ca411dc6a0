package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/tools"
	"github.com/klappy/obt-helper-gpt/internal/usage"
)

// CostGovernor decides which model a tool may use given its daily spend.
// Everything fails open except a hit ceiling with no fallback configured,
// which must reach the user as "this tool is unavailable today".
type CostGovernor struct {
	ledger  *usage.Ledger
	catalog *tools.Catalog
	logger  *logrus.Logger
}

func NewCostGovernor(ledger *usage.Ledger, catalog *tools.Catalog, logger *logrus.Logger) *CostGovernor {
	return &CostGovernor{ledger: ledger, catalog: catalog, logger: logger}
}

// SelectModel returns the model the tool should use right now. The ceiling
// is an inclusive limit: todayCost == ceiling already downgrades.
func (g *CostGovernor) SelectModel(ctx context.Context, toolID, originalModel string) (string, error) {
	todayCost := g.ledger.TodayCost(ctx, toolID)

	tool, err := g.catalog.Get(ctx, toolID)
	if err != nil {
		// Missing tools and lookup failures alike fail open.
		g.logger.WithError(err).WithField("tool_id", toolID).Warn("Tool lookup failed, using original model")
		return originalModel, nil
	}

	if tool.CostCeiling <= 0 {
		return originalModel, nil
	}

	if todayCost >= tool.CostCeiling {
		if tool.FallbackModel != "" {
			g.logger.WithFields(logrus.Fields{
				"tool_id":  toolID,
				"cost":     todayCost,
				"ceiling":  tool.CostCeiling,
				"fallback": tool.FallbackModel,
			}).Info("Cost ceiling hit, downgrading model")
			return tool.FallbackModel, nil
		}
		g.logger.WithFields(logrus.Fields{
			"tool_id": toolID,
			"cost":    todayCost,
			"ceiling": tool.CostCeiling,
		}).Warn("Cost ceiling hit with no fallback, suspending tool for today")
		return "", errors.NewCostCeilingError(toolID, tool.CostCeiling)
	}

	return originalModel, nil
}
