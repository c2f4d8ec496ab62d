package schemacache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tessera-data/tessera-engine/pkg/models"
)

// snapshotFile is the on-disk form of a cached snapshot.
type snapshotFile struct {
	Key      string                 `yaml:"key"`
	Snapshot *models.SchemaSnapshot `yaml:"snapshot"`
}

// snapshotPath derives a stable filename from the cache key. Keys are
// connection strings and may contain characters unfit for filenames, so
// the name is a digest rather than the key itself.
func (c *Cache) snapshotPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.persistDir, "schema-"+hex.EncodeToString(sum[:8])+".yaml")
}

// persistSnapshot writes the snapshot atomically (temp file + rename) so a
// crash mid-write never leaves a truncated file behind.
func (c *Cache) persistSnapshot(key string, snapshot *models.SchemaSnapshot) error {
	if err := os.MkdirAll(c.persistDir, 0o755); err != nil {
		return fmt.Errorf("creating persist dir: %w", err)
	}

	data, err := yaml.Marshal(snapshotFile{Key: key, Snapshot: snapshot})
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	path := c.snapshotPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("installing snapshot: %w", err)
	}
	return nil
}

// WarmStart loads a previously persisted snapshot for the key, if any, and
// installs it as an already-expired entry. The next Get still refreshes,
// but a failed refresh can fall back to the persisted snapshot instead of
// hard-failing on a cold process.
func (c *Cache) WarmStart(key string) error {
	if c.persistDir == "" {
		return nil
	}

	data, err := os.ReadFile(c.snapshotPath(key))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading persisted snapshot: %w", err)
	}

	var file snapshotFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decoding persisted snapshot: %w", err)
	}
	if file.Key != key || file.Snapshot == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return nil
	}
	c.entries[key] = &entry{
		snapshot:  file.Snapshot,
		expiresAt: c.clock(), // expired: serves only as a stale fallback
	}
	c.logger.Info("loaded persisted schema snapshot",
		zap.String("key", key),
		zap.Int("tables", len(file.Snapshot.Tables)),
		zap.Time("captured_at", file.Snapshot.CapturedAt))
	return nil
}
