package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"qubecore/internal/blob"
	"qubecore/internal/core"
)

const (
	keyPrefix    = "settings/"
	keySuffix    = ".json"
	stagedSuffix = ".json.staged"
	contentType  = "application/json"
)

var _ core.SettingsStore = (*BlobStore)(nil)

// BlobStore keeps each snapshot as a JSON object under settings/<chip>.json.
// A save first writes settings/<chip>.json.staged, which is read back when the
// final object is missing.
type BlobStore struct {
	blobs blob.Store
}

// NewBlobStore wraps a blob store.
func NewBlobStore(blobs blob.Store) *BlobStore {
	return &BlobStore{blobs: blobs}
}

func settingsKey(chipID string) string { return keyPrefix + chipID + keySuffix }

func stagedKey(chipID string) string { return keyPrefix + chipID + stagedSuffix }

func (s *BlobStore) LoadSettings(ctx context.Context, chipID string) (core.SystemSettings, error) {
	_, rc, err := s.blobs.Get(ctx, settingsKey(chipID))
	if errors.Is(err, blob.ErrNotExist) {
		_, rc, err = s.blobs.Get(ctx, stagedKey(chipID))
	}
	if errors.Is(err, blob.ErrNotExist) {
		return core.SystemSettings{}, core.ErrNotFound{Entity: core.EntitySettings, ID: chipID}
	}
	if err != nil {
		return core.SystemSettings{}, fmt.Errorf("get settings %s: %w", chipID, err)
	}
	defer func() { _ = rc.Close() }()
	var out core.SystemSettings
	if err := json.NewDecoder(rc).Decode(&out); err != nil {
		return core.SystemSettings{}, fmt.Errorf("decode settings %s: %w", chipID, err)
	}
	return out, nil
}

// SaveSettings replaces any previous snapshot of the chip. Blob writes are
// create-only, so the snapshot is staged before the old object is removed.
// A failed save leaves either the old object or the staged copy readable.
func (s *BlobStore) SaveSettings(ctx context.Context, settings core.SystemSettings) error {
	if settings.ChipID == "" || strings.Contains(settings.ChipID, "/") {
		return fmt.Errorf("invalid settings chip id %q", settings.ChipID)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings %s: %w", settings.ChipID, err)
	}
	opts := blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"chip":  settings.ChipID,
			"state": settings.State.ControlSystem,
		},
	}
	key, staged := settingsKey(settings.ChipID), stagedKey(settings.ChipID)
	if err := s.replace(ctx, staged, data, opts); err != nil {
		return fmt.Errorf("stage settings %s: %w", settings.ChipID, err)
	}
	if err := s.replace(ctx, key, data, opts); err != nil {
		return fmt.Errorf("put settings %s: %w", settings.ChipID, err)
	}
	// A staged copy left behind is overwritten by the next save.
	_, _ = s.blobs.Delete(ctx, staged)
	return nil
}

func (s *BlobStore) replace(ctx context.Context, key string, data []byte, opts blob.PutOptions) error {
	if _, err := s.blobs.Delete(ctx, key); err != nil {
		return err
	}
	_, err := s.blobs.Put(ctx, key, bytes.NewReader(data), opts)
	return err
}

func (s *BlobStore) ListSettings(ctx context.Context) ([]string, error) {
	infos, err := s.blobs.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	seen := make(map[string]struct{}, len(infos))
	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, keyPrefix)
		if strings.Contains(name, "/") {
			continue
		}
		var id string
		switch {
		case strings.HasSuffix(name, keySuffix):
			id = strings.TrimSuffix(name, keySuffix)
		case strings.HasSuffix(name, stagedSuffix):
			id = strings.TrimSuffix(name, stagedSuffix)
		default:
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op; blob drivers hold no releasable handles.
func (s *BlobStore) Close() error { return nil }
