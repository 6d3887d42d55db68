package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kemonograb/pkg/logger"

	"github.com/spf13/afero"
)

const (
	stateDirName   = ".kemonograb"
	currentVersion = 1
)

// Checkpoint is a snapshot of where a crawl stopped, saved periodically
// so a later run can resume pagination instead of starting over. The
// ledger stays authoritative for which files completed; the checkpoint
// only shortcuts page discovery.
type Checkpoint struct {
	Target       string    `json:"target"`
	RunID        string    `json:"run_id"`
	NextOffset   int       `json:"next_offset"`
	PagesFetched int       `json:"pages_fetched"`
	PostsSeen    int       `json:"posts_seen"`
	Completed    int       `json:"completed"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

// Manager handles checkpoint operations for one target
type Manager struct {
	fs     afero.Fs
	path   string
	logger logger.Logger
}

// NewManager creates a checkpoint manager storing state under the
// output root's state directory.
func NewManager(outputDir, target string) (*Manager, error) {
	return NewManagerWithFS(afero.NewOsFs(), outputDir, target)
}

// NewManagerWithFS is NewManager on an explicit filesystem, used by tests.
func NewManagerWithFS(fs afero.Fs, outputDir, target string) (*Manager, error) {
	stateDir := filepath.Join(outputDir, stateDirName)
	if err := fs.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", stateDir, err)
	}

	return &Manager{
		fs:     fs,
		path:   filepath.Join(stateDir, fileNameForTarget(target)),
		logger: logger.GetLogger(),
	}, nil
}

// fileNameForTarget flattens a site:service:creator string into a safe
// file name component.
func fileNameForTarget(target string) string {
	safe := strings.NewReplacer(":", "-", "/", "-", "\\", "-").Replace(target)
	return fmt.Sprintf("checkpoint-%s.json", safe)
}

// Create starts a fresh checkpoint for a run and saves it immediately.
func (m *Manager) Create(target, runID string) (*Checkpoint, error) {
	cp := &Checkpoint{
		Target:    target,
		RunID:     runID,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Version:   currentVersion,
	}

	if err := m.Save(cp); err != nil {
		return nil, fmt.Errorf("save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("checkpoint started", map[string]interface{}{
		"target": target,
		"run_id": runID,
		"path":   m.path,
	})

	return cp, nil
}

// Load loads an existing checkpoint. Returns (nil, nil) when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := m.fs.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open checkpoint %s: %w", m.path, err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", m.path, err)
	}

	m.logger.InfoWithFields("resuming from checkpoint", map[string]interface{}{
		"target":      cp.Target,
		"next_offset": cp.NextOffset,
		"posts_seen":  cp.PostsSeen,
		"updated_at":  cp.UpdatedAt,
	})

	return &cp, nil
}

// Save writes the checkpoint atomically: temp file, sync, rename.
func (m *Manager) Save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.path + ".tmp"
	file, err := m.fs.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		file.Close()
		m.fs.Remove(tempPath)
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		m.fs.Remove(tempPath)
		return fmt.Errorf("sync checkpoint temp file: %w", err)
	}

	if err := file.Close(); err != nil {
		m.fs.Remove(tempPath)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}

	if err := m.fs.Rename(tempPath, m.path); err != nil {
		m.fs.Remove(tempPath)
		return fmt.Errorf("swap checkpoint into place: %w", err)
	}

	m.logger.DebugWithFields("checkpoint written", map[string]interface{}{
		"target":      cp.Target,
		"next_offset": cp.NextOffset,
		"completed":   cp.Completed,
	})

	return nil
}

// Delete removes the checkpoint file, typically after a clean completion.
func (m *Manager) Delete() error {
	if err := m.fs.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete checkpoint %s: %w", m.path, err)
	}

	m.logger.Debug("checkpoint removed")
	return nil
}

// Exists reports whether a checkpoint is on disk.
func (m *Manager) Exists() bool {
	_, err := m.fs.Stat(m.path)
	return err == nil
}

// UpdatePage records a finished listing page and saves.
func (m *Manager) UpdatePage(cp *Checkpoint, nextOffset, postsSeen int) error {
	cp.NextOffset = nextOffset
	cp.PagesFetched++
	cp.PostsSeen = postsSeen
	return m.Save(cp)
}

// RecordOutcomes updates the per-outcome counters without saving; the
// crawler batches saves to page boundaries.
func (c *Checkpoint) RecordOutcomes(completed, skipped, failed int) {
	c.Completed = completed
	c.Skipped = skipped
	c.Failed = failed
}

// Info returns a loggable summary of the stored checkpoint, or nil when
// none exists.
func (m *Manager) Info() (map[string]interface{}, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"target":      cp.Target,
		"next_offset": cp.NextOffset,
		"posts_seen":  cp.PostsSeen,
		"completed":   cp.Completed,
		"created_at":  cp.CreatedAt,
		"updated_at":  cp.UpdatedAt,
		"age":         time.Since(cp.UpdatedAt),
	}, nil
}
