// Wayfarer - Experience Recommendation Engine
// Copyright 2026 Wayfarer Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wayfarerhq/wayfarer

package recommend

import (
	"context"
	"sync"
)

// MemoryProvider is an in-memory DataProvider for standalone deployments,
// tooling, and tests. Production deployments implement DataProvider over
// their own persistence layer instead.
type MemoryProvider struct {
	mu           sync.RWMutex
	interactions []Interaction
	items        map[string]Item
}

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{items: make(map[string]Item)}
}

// SeedInteractions replaces the interaction log.
func (p *MemoryProvider) SeedInteractions(events []Interaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactions = append([]Interaction(nil), events...)
}

// PutItem adds or replaces catalog metadata for one experience.
func (p *MemoryProvider) PutItem(item Item) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items[item.ID] = item
}

// Interactions implements DataProvider.
func (p *MemoryProvider) Interactions(_ context.Context) ([]Interaction, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Interaction(nil), p.interactions...), nil
}

// Item implements DataProvider. Unknown items return nil, not an error.
func (p *MemoryProvider) Item(_ context.Context, itemID string) (*Item, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if item, ok := p.items[itemID]; ok {
		return &item, nil
	}
	return nil, nil
}

// UserHistory implements DataProvider.
func (p *MemoryProvider) UserHistory(_ context.Context, userID string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	seen := make(map[string]struct{})
	var history []string
	for _, in := range p.interactions {
		if in.UserID != userID {
			continue
		}
		if _, dup := seen[in.ItemID]; dup {
			continue
		}
		seen[in.ItemID] = struct{}{}
		history = append(history, in.ItemID)
	}
	return history, nil
}

// RecordInteraction implements DataProvider.
func (p *MemoryProvider) RecordInteraction(_ context.Context, in Interaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactions = append(p.interactions, in)
	return nil
}

var _ DataProvider = (*MemoryProvider)(nil)
