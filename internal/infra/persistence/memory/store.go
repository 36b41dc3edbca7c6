// Package memory provides an in-process system-settings store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"qubecore/internal/core"
)

var _ core.SettingsStore = (*Store)(nil)

// Store keeps snapshots as encoded JSON so callers never share state with it.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string][]byte)}
}

func (s *Store) LoadSettings(ctx context.Context, chipID string) (core.SystemSettings, error) {
	if err := ctx.Err(); err != nil {
		return core.SystemSettings{}, err
	}
	s.mu.RLock()
	payload, ok := s.entries[chipID]
	s.mu.RUnlock()
	if !ok {
		return core.SystemSettings{}, core.ErrNotFound{Entity: core.EntitySettings, ID: chipID}
	}
	var out core.SystemSettings
	if err := json.Unmarshal(payload, &out); err != nil {
		return core.SystemSettings{}, fmt.Errorf("decode settings %s: %w", chipID, err)
	}
	return out, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings core.SystemSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if settings.ChipID == "" {
		return fmt.Errorf("settings chip id required")
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", settings.ChipID, err)
	}
	s.mu.Lock()
	s.entries[settings.ChipID] = payload
	s.mu.Unlock()
	return nil
}

// ListSettings returns the stored chip ids in sorted order.
func (s *Store) ListSettings(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
