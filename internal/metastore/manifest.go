package metastore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streamforge/live/internal/domain"
)

// ManifestKey builds the Meta Store key for a connection's rendition
// manifest. Edge and Transcoder must agree on this layout exactly.
func ManifestKey(connectionID, rendition string) string {
	return fmt.Sprintf("manifest:%s:%s", connectionID, rendition)
}

// MasterManifestKey builds the Meta Store key for a connection's master
// manifest.
func MasterManifestKey(connectionID string) string {
	return fmt.Sprintf("manifest:%s:master", connectionID)
}

// PutRenditionManifest JSON-encodes and writes m, the single-writer path
// the transcoder's manifest updater calls after every cut part/segment.
func PutRenditionManifest(ctx context.Context, s Store, connectionID string, m *domain.RenditionManifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.Set(ctx, ManifestKey(connectionID, m.Rendition.String()), b)
}

// GetRenditionManifest reads and decodes a rendition manifest. Returns
// ErrNotFound if absent.
func GetRenditionManifest(ctx context.Context, s Store, connectionID, rendition string) (*domain.RenditionManifest, error) {
	b, err := s.Get(ctx, ManifestKey(connectionID, rendition))
	if err != nil {
		return nil, err
	}
	var m domain.RenditionManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// PutMasterManifest JSON-encodes and writes the master manifest.
func PutMasterManifest(ctx context.Context, s Store, m *domain.MasterManifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.Set(ctx, MasterManifestKey(m.ConnectionID.String()), b)
}

// GetMasterManifest reads and decodes a master manifest.
func GetMasterManifest(ctx context.Context, s Store, connectionID string) (*domain.MasterManifest, error) {
	b, err := s.Get(ctx, MasterManifestKey(connectionID))
	if err != nil {
		return nil, err
	}
	var m domain.MasterManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
