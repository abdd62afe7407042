package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/philipphutterer/metube/internal/models"
)

// Record is what gets persisted per job: the immutable request and the
// observable status. Runtime state is rebuilt from scratch on reload.
type Record struct {
	Request *models.DownloadRequest `json:"request"`
	Info    *models.DownloadInfo    `json:"info"`
}

// PersistentQueue is a crash-safe, insertion-ordered mapping from job id to
// Record. Every mutation is written through to the backing file before it
// returns, so an acknowledged Put survives a process kill. The physical file
// is an unordered JSON object; logical order is rebuilt on load by sorting on
// Info.Timestamp.
type PersistentQueue struct {
	mu       sync.RWMutex
	filePath string
	order    []string
	items    map[string]Record
}

// New opens or creates the queue at filePath. An unreadable or corrupt state
// file degrades to an empty queue rather than failing startup.
func New(filePath string) *PersistentQueue {
	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		slog.Warn("Could not create state directory", "dir", filepath.Dir(filePath), "error", err)
	}

	q := &PersistentQueue{filePath: filePath, items: make(map[string]Record)}
	if err := q.load(); err != nil {
		slog.Warn("Could not load queue state, starting fresh", "file", filePath, "error", err)
		q.order = nil
		q.items = make(map[string]Record)
	}
	return q
}

func (q *PersistentQueue) load() error {
	data, err := os.ReadFile(q.filePath)
	if os.IsNotExist(err) {
		return q.persist()
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &q.items); err != nil {
		return err
	}
	for key, rec := range q.items {
		if rec.Info == nil || rec.Request == nil {
			return fmt.Errorf("record %q is incomplete", key)
		}
		q.order = append(q.order, key)
	}
	sort.Slice(q.order, func(i, j int) bool {
		return q.items[q.order[i]].Info.Timestamp < q.items[q.order[j]].Info.Timestamp
	})
	return nil
}

// persist writes the full state to disk. Callers must hold the write lock.
// The write goes through a temp file and rename so a crash mid-write leaves
// the previous state intact.
func (q *PersistentQueue) persist() error {
	data, err := json.Marshal(q.items)
	if err != nil {
		return err
	}
	tmp := q.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, q.filePath)
}

// Exists reports whether key is present.
func (q *PersistentQueue) Exists(key string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.items[key]
	return ok
}

// Get returns the record stored under key.
func (q *PersistentQueue) Get(key string) (Record, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	rec, ok := q.items[key]
	return rec, ok
}

// KV is one ordered queue entry.
type KV struct {
	Key    string
	Record Record
}

// Items returns all entries in logical insertion order.
func (q *PersistentQueue) Items() []KV {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]KV, 0, len(q.order))
	for _, key := range q.order {
		out = append(out, KV{Key: key, Record: q.items[key]})
	}
	return out
}

// Put upserts rec under the job's id and synchronously persists. The record
// is only acknowledged once it has hit the disk; a failed write is reported
// to the caller.
func (q *PersistentQueue) Put(rec Record) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := rec.Info.ID
	if _, ok := q.items[key]; !ok {
		q.order = append(q.order, key)
	}
	q.items[key] = rec
	return q.persist()
}

// Delete removes key and synchronously persists. Unknown keys are a no-op.
func (q *PersistentQueue) Delete(key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[key]; !ok {
		return nil
	}
	delete(q.items, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return q.persist()
}

// Next returns the oldest entry without removing it.
func (q *PersistentQueue) Next() (KV, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.order) == 0 {
		return KV{}, false
	}
	key := q.order[0]
	return KV{Key: key, Record: q.items[key]}, true
}

// Empty reports whether the queue has no entries.
func (q *PersistentQueue) Empty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.order) == 0
}
