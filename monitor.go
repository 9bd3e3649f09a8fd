package cassync

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	c "github.com/unkn0wn-root/cassync/codec"
)

// File is one pending item handed to a FileWriter.
type File struct {
	ID       string // item id, e.g. "p1abc/notes.md" or "workspace/dir/todo.txt"
	Name     string // last path segment of ID
	Contents string
	ThreadID string // set for project-scoped ids when the monitor has a thread
}

// FileWriter performs one remote write per item.
type FileWriter interface {
	WriteFile(ctx context.Context, f File) error
}

// FileWriterFunc adapts a function to FileWriter.
type FileWriterFunc func(ctx context.Context, f File) error

func (fn FileWriterFunc) WriteFile(ctx context.Context, f File) error { return fn(ctx, f) }

type FileMonitorOptions struct {
	ThreadID string        // attached to project-scoped files
	Interval time.Duration // 0 => 1s
	Logger   Logger
	Hooks    Hooks
}

// FileMonitor autosaves per-item edits. Each dirty item is written on the
// next tick and removed from the pending set once the content that was
// written is still the content on record.
type FileMonitor struct {
	w        FileWriter
	threadID string
	log      Logger

	mu    sync.Mutex
	files map[string]string

	rec *Reconciler[map[string]string]
}

func NewFileMonitor(w FileWriter, opts FileMonitorOptions) (*FileMonitor, error) {
	if w == nil {
		return nil, fmt.Errorf("cassync: file writer is required")
	}
	m := &FileMonitor{
		w:        w,
		threadID: opts.ThreadID,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		files:    make(map[string]string),
	}
	rec, err := NewReconciler(ReconcilerOptions[map[string]string]{
		Value:    m.snapshot,
		Persist:  m.persist,
		Commit:   m.commit,
		Interval: opts.Interval,
		Codec:    c.JSON[map[string]string]{},
		IsEmpty:  func(files map[string]string) bool { return len(files) == 0 },
		Logger:   opts.Logger,
		Hooks:    opts.Hooks,
	})
	if err != nil {
		return nil, err
	}
	m.rec = rec
	return m, nil
}

// OnFileChange records new contents for id.
func (m *FileMonitor) OnFileChange(id, contents string) {
	m.mu.Lock()
	m.files[id] = contents
	m.mu.Unlock()
}

// Pending returns a copy of the items not yet committed.
func (m *FileMonitor) Pending() map[string]string {
	return m.snapshot()
}

func (m *FileMonitor) Start(ctx context.Context) (func() error, error) { return m.rec.Start(ctx) }
func (m *FileMonitor) Save(ctx context.Context) error                  { return m.rec.Save(ctx) }
func (m *FileMonitor) Stop(ctx context.Context) error                  { return m.rec.Stop(ctx) }

func (m *FileMonitor) snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.files)
}

func (m *FileMonitor) persist(ctx context.Context, files map[string]string) (map[string]string, error) {
	for _, id := range slices.Sorted(maps.Keys(files)) {
		f := File{ID: id, Name: fileName(id), Contents: files[id]}
		if isProjectScoped(id) {
			f.ThreadID = m.threadID
		}
		if err := m.w.WriteFile(ctx, f); err != nil {
			return nil, fmt.Errorf("write %q: %w", id, err)
		}
	}
	m.log.Debug("files written", Fields{"count": len(files)})
	return files, nil
}

// commit drops only the items whose recorded contents still equal what was
// written; an item edited again mid-flight stays pending.
func (m *FileMonitor) commit(written map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, contents := range written {
		if cur, ok := m.files[id]; ok && cur == contents {
			delete(m.files, id)
		}
	}
}

func fileName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 && i < len(id)-1 {
		return id[i+1:]
	}
	return id
}

// isProjectScoped matches ids of the form "p1<project>/<name>".
func isProjectScoped(id string) bool {
	return strings.HasPrefix(id, "p1") && strings.Count(id, "/") == 1
}
