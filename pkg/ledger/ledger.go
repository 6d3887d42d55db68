package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kemonograb/pkg/logger"

	"github.com/spf13/afero"
)

const (
	stateDirName   = ".kemonograb"
	ledgerFileName = "ledger.jsonl"

	// Torn lines from an interrupted append can be long for deep paths.
	maxLineBytes = 1 << 20
)

// Entry is one durable completion record. Entries are only ever appended;
// an invalidation is itself a new record, never an edit of an old one.
type Entry struct {
	Creator     string    `json:"creator"`
	PostID      string    `json:"post_id"`
	FileName    string    `json:"file_name"`
	Bytes       int64     `json:"bytes,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	Invalidated bool      `json:"invalidated,omitempty"`
}

type tripleKey struct {
	creator string
	post    string
	file    string
}

// Ledger records which (creator, post, filename) triples have finished
// downloading. Reads take no lock; appends are serialized and synced to
// disk before they become visible, so a reported success is never lost
// to a crash.
type Ledger struct {
	fs   afero.Fs
	path string

	entries sync.Map // tripleKey -> Entry

	mu   sync.Mutex
	file afero.File

	logger logger.Logger
}

// Open opens (or creates) the ledger under outputDir's state directory.
func Open(outputDir string) (*Ledger, error) {
	return OpenWithFS(afero.NewOsFs(), outputDir)
}

// OpenWithFS is Open on an explicit filesystem, used by tests.
func OpenWithFS(fs afero.Fs, outputDir string) (*Ledger, error) {
	stateDir := filepath.Join(outputDir, stateDirName)
	if err := fs.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	l := &Ledger{
		fs:     fs,
		path:   filepath.Join(stateDir, ledgerFileName),
		logger: logger.GetLogger(),
	}

	if err := l.replay(); err != nil {
		return nil, err
	}

	file, err := fs.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger for appending: %w", err)
	}
	l.file = file

	l.logger.DebugWithFields("Ledger opened", map[string]interface{}{
		"path":      l.path,
		"completed": l.Len(),
	})

	return l, nil
}

// replay loads every record into memory. A missing or empty file means
// nothing has completed yet. A line that does not parse (a torn append
// from an interrupted run) is skipped, not treated as corruption.
func (l *Ledger) replay() error {
	file, err := l.fs.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			l.logger.WarnWithFields("Skipping unreadable ledger line", map[string]interface{}{
				"path":  l.path,
				"error": err.Error(),
			})
			continue
		}

		key := tripleKey{entry.Creator, entry.PostID, entry.FileName}
		if entry.Invalidated {
			l.entries.Delete(key)
			continue
		}
		l.entries.Store(key, entry)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	return nil
}

// IsComplete reports whether the triple has a live completion record.
// Safe for concurrent use without coordination.
func (l *Ledger) IsComplete(creator, post, fileName string) bool {
	_, ok := l.entries.Load(tripleKey{creator, post, fileName})
	return ok
}

// Get returns the completion record for a triple, if one exists.
func (l *Ledger) Get(creator, post, fileName string) (Entry, bool) {
	v, ok := l.entries.Load(tripleKey{creator, post, fileName})
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// MarkComplete durably records a finished transfer. The record is synced
// to disk before this returns, so callers may report success as soon as
// it does. Marking an already-complete triple is a no-op.
func (l *Ledger) MarkComplete(creator, post, fileName string, size int64) error {
	key := tripleKey{creator, post, fileName}
	if _, ok := l.entries.Load(key); ok {
		return nil
	}

	entry := Entry{
		Creator:     creator,
		PostID:      post,
		FileName:    fileName,
		Bytes:       size,
		CompletedAt: time.Now().UTC(),
	}

	if err := l.append(entry); err != nil {
		return err
	}

	l.entries.Store(key, entry)
	return nil
}

// Invalidate retracts a completion record, e.g. when the local file went
// missing or its size no longer matches. The triple becomes eligible for
// download again. Invalidating an unknown triple is a no-op.
func (l *Ledger) Invalidate(creator, post, fileName string) error {
	key := tripleKey{creator, post, fileName}
	if _, ok := l.entries.Load(key); !ok {
		return nil
	}

	entry := Entry{
		Creator:     creator,
		PostID:      post,
		FileName:    fileName,
		CompletedAt: time.Now().UTC(),
		Invalidated: true,
	}

	if err := l.append(entry); err != nil {
		return err
	}

	l.entries.Delete(key)
	return nil
}

func (l *Ledger) append(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("ledger is closed")
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync ledger: %w", err)
	}
	return nil
}

// Range calls fn for every live completion record, stopping early when
// fn returns false. Iteration order is unspecified. Safe to call
// concurrently with reads and writes; records added or invalidated
// during iteration may or may not be visited.
func (l *Ledger) Range(fn func(Entry) bool) {
	l.entries.Range(func(_, v interface{}) bool {
		return fn(v.(Entry))
	})
}

// Len returns the number of live completion records.
func (l *Ledger) Len() int {
	n := 0
	l.entries.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Path returns the on-disk location of the ledger file.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the append handle. Reads keep working; further writes fail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}
	return nil
}
