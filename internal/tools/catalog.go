// Package tools manages the persona catalog. The catalog is read-mostly:
// chat and inference read it on every message, only the admin CRUD writes.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/klappy/obt-helper-gpt/internal/errors"
	"github.com/klappy/obt-helper-gpt/internal/models"
	"github.com/klappy/obt-helper-gpt/internal/store"
)

const toolKeyPrefix = "tool_"

// Catalog is the store-backed tool catalog, seeded with the default
// personas when empty.
type Catalog struct {
	store  store.Store
	logger *logrus.Logger
}

func NewCatalog(st store.Store, logger *logrus.Logger) *Catalog {
	return &Catalog{store: st, logger: logger}
}

// All returns every tool ordered by orderIndex, seeding defaults first if
// the catalog is empty.
func (c *Catalog) All(ctx context.Context) ([]models.Tool, error) {
	keys, err := c.store.List(ctx, toolKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	if len(keys) == 0 {
		if err := c.Reset(ctx); err != nil {
			return nil, err
		}
		result := make([]models.Tool, len(defaultTools))
		copy(result, defaultTools)
		return result, nil
	}

	tools := make([]models.Tool, 0, len(keys))
	for _, key := range keys {
		value, found, getErr := c.store.Get(ctx, key)
		if getErr != nil || !found {
			continue
		}
		var tool models.Tool
		if unmarshalErr := json.Unmarshal([]byte(value), &tool); unmarshalErr != nil {
			c.logger.WithField("key", key).Warn("Skipping malformed tool record")
			continue
		}
		tools = append(tools, tool)
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].OrderIndex < tools[j].OrderIndex })
	return tools, nil
}

// Active returns the tools available for chat and inference, in order.
func (c *Catalog) Active(ctx context.Context) ([]models.Tool, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, tool := range all {
		if tool.IsActive {
			active = append(active, tool)
		}
	}
	return active, nil
}

// Get returns one tool by id.
func (c *Catalog) Get(ctx context.Context, id string) (*models.Tool, error) {
	value, found, err := c.store.Get(ctx, toolKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("failed to get tool %s: %w", id, err)
	}
	if !found {
		// The catalog may not be seeded yet; go through All once.
		all, allErr := c.All(ctx)
		if allErr != nil {
			return nil, allErr
		}
		for i := range all {
			if all[i].ID == id {
				return &all[i], nil
			}
		}
		return nil, errors.NewNotFoundError("tool", id)
	}

	var tool models.Tool
	if err := json.Unmarshal([]byte(value), &tool); err != nil {
		return nil, fmt.Errorf("failed to decode tool %s: %w", id, err)
	}
	return &tool, nil
}

// Upsert creates or replaces a tool.
func (c *Catalog) Upsert(ctx context.Context, tool models.Tool) error {
	if tool.ID == "" {
		return errors.NewValidationError("id", tool.ID, "tool id is required")
	}
	if tool.CostCeiling < 0 {
		return errors.NewValidationError("costCeiling", fmt.Sprintf("%g", tool.CostCeiling), "cost ceiling cannot be negative")
	}

	payload, err := json.Marshal(tool)
	if err != nil {
		return fmt.Errorf("failed to encode tool %s: %w", tool.ID, err)
	}
	if err := c.store.Set(ctx, toolKeyPrefix+tool.ID, string(payload)); err != nil {
		return fmt.Errorf("failed to save tool %s: %w", tool.ID, err)
	}

	c.logger.WithField("tool_id", tool.ID).Info("Tool saved")
	return nil
}

// Delete removes a tool from the catalog.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, toolKeyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete tool %s: %w", id, err)
	}
	c.logger.WithField("tool_id", id).Info("Tool deleted")
	return nil
}

// Reset wipes the catalog back to the seeded defaults.
func (c *Catalog) Reset(ctx context.Context) error {
	keys, err := c.store.List(ctx, toolKeyPrefix)
	if err != nil {
		return fmt.Errorf("failed to list tools for reset: %w", err)
	}
	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to clear tool %s: %w", key, err)
		}
	}

	for _, tool := range defaultTools {
		payload, marshalErr := json.Marshal(tool)
		if marshalErr != nil {
			return fmt.Errorf("failed to encode default tool %s: %w", tool.ID, marshalErr)
		}
		if err := c.store.Set(ctx, toolKeyPrefix+tool.ID, string(payload)); err != nil {
			return fmt.Errorf("failed to seed tool %s: %w", tool.ID, err)
		}
	}

	c.logger.WithField("count", len(defaultTools)).Info("Tool catalog reset to defaults")
	return nil
}
