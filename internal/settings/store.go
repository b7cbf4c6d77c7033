package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dirsync/internal/api"
	"dirsync/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	settingsFileName = "settings.yaml"
	rightsFileName   = "rights.yaml"
	avatarsFileName  = "avatars.yaml"
)

// Store persists the per-tenant records the engine consumes and produces:
// the directory settings, the access-rights snapshot and the avatar hash
// map. Records are versioned by simple overwrite; last-writer-wins is
// acceptable because at most one job runs per tenant.
type Store struct {
	root string
}

// NewStore creates a store rooted at the given directory. One
// subdirectory is created per tenant on first write.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// SettingsPath returns the path of a tenant's settings file. The
// settings watcher uses it to map file events back to tenants.
func (s *Store) SettingsPath(tenantID string) string {
	return filepath.Join(s.root, tenantID, settingsFileName)
}

// Root returns the directory the store persists under.
func (s *Store) Root() string { return s.root }

// LoadSettings reads a tenant's settings. The second return value is
// false when no settings have been saved yet.
func (s *Store) LoadSettings(tenantID string) (Settings, bool, error) {
	var cfg Settings
	ok, err := s.load(tenantID, settingsFileName, &cfg)
	return cfg, ok, err
}

// SaveSettings persists a tenant's settings, enforcing the credential
// erasure invariant and recomputing the IsDefault flag.
func (s *Store) SaveSettings(tenantID string, cfg *Settings) error {
	cfg.Sanitize()
	cfg.IsDefault = cfg.EqualsDefault()
	return s.save(tenantID, settingsFileName, cfg)
}

// LoadAccessRights reads the access-rights snapshot of the previous run.
// A missing snapshot yields an empty one.
func (s *Store) LoadAccessRights(tenantID string) (api.AccessRightsSnapshot, error) {
	snap := api.NewAccessRightsSnapshot()
	if _, err := s.load(tenantID, rightsFileName, &snap); err != nil {
		return snap, err
	}
	if snap.Granted == nil {
		snap.Granted = make(map[api.AccessRight][]string)
	}
	return snap, nil
}

// SaveAccessRights persists the access-rights snapshot.
func (s *Store) SaveAccessRights(tenantID string, snap api.AccessRightsSnapshot) error {
	return s.save(tenantID, rightsFileName, snap)
}

// LoadAvatarHashes reads the avatar hash map. A missing map yields an
// empty one.
func (s *Store) LoadAvatarHashes(tenantID string) (api.AvatarHashMap, error) {
	m := api.NewAvatarHashMap()
	if _, err := s.load(tenantID, avatarsFileName, &m); err != nil {
		return m, err
	}
	if m.Hashes == nil {
		m.Hashes = make(map[string]string)
	}
	return m, nil
}

// SaveAvatarHashes persists the avatar hash map.
func (s *Store) SaveAvatarHashes(tenantID string, m api.AvatarHashMap) error {
	return s.save(tenantID, avatarsFileName, m)
}

func (s *Store) load(tenantID, name string, out interface{}) (bool, error) {
	path := filepath.Join(s.root, tenantID, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Debug("SettingsStore", "No %s for tenant %s, using defaults", name, tenantID)
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

func (s *Store) save(tenantID, name string, in interface{}) error {
	dir := filepath.Join(s.root, tenantID)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	data, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
