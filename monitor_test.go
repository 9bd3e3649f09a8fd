package cassync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memWriter struct {
	mu     sync.Mutex
	writes []File
	during func(File) // runs inside WriteFile
	err    error
}

func (w *memWriter) WriteFile(_ context.Context, f File) error {
	w.mu.Lock()
	w.writes = append(w.writes, f)
	during, err := w.during, w.err
	w.mu.Unlock()
	if during != nil {
		during(f)
	}
	return err
}

func newTestMonitor(t *testing.T, w FileWriter, threadID string) *FileMonitor {
	t.Helper()
	m, err := NewFileMonitor(w, FileMonitorOptions{ThreadID: threadID, Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewFileMonitor: %v", err)
	}
	if _, err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func TestFileMonitor_WritesAndClears(t *testing.T) {
	w := &memWriter{}
	m := newTestMonitor(t, w, "thread-9")

	m.OnFileChange("p1proj/notes.md", "hello")
	m.OnFileChange("workspace/dir/todo.txt", "buy milk")
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if len(w.writes) != 2 {
		t.Fatalf("want 2 writes, got %v", w.writes)
	}
	byID := map[string]File{}
	for _, f := range w.writes {
		byID[f.ID] = f
	}
	notes := byID["p1proj/notes.md"]
	if notes.Name != "notes.md" || notes.ThreadID != "thread-9" || notes.Contents != "hello" {
		t.Fatalf("project file: %+v", notes)
	}
	todo := byID["workspace/dir/todo.txt"]
	if todo.Name != "todo.txt" || todo.ThreadID != "" {
		t.Fatalf("workspace file: %+v", todo)
	}
	if p := m.Pending(); len(p) != 0 {
		t.Fatalf("pending after commit: %v", p)
	}
}

func TestFileMonitor_EditDuringWriteStaysPending(t *testing.T) {
	w := &memWriter{}
	m := newTestMonitor(t, w, "")

	m.OnFileChange("a.txt", "v1")
	var once sync.Once
	w.during = func(File) { once.Do(func() { m.OnFileChange("a.txt", "v2") }) }

	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := m.Pending()["a.txt"]; got != "v2" {
		t.Fatalf("mid-flight edit lost: pending=%v", m.Pending())
	}

	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if last := w.writes[len(w.writes)-1]; last.Contents != "v2" {
		t.Fatalf("latest content not written: %+v", last)
	}
	if p := m.Pending(); len(p) != 0 {
		t.Fatalf("pending after second save: %v", p)
	}
}

func TestFileMonitor_CommitKeepsNewerContent(t *testing.T) {
	m := &FileMonitor{files: map[string]string{"a": "new", "b": "same"}}
	m.commit(map[string]string{"a": "old", "b": "same"})
	if len(m.files) != 1 || m.files["a"] != "new" {
		t.Fatalf("files=%v", m.files)
	}
}

func TestFileMonitor_WriteErrorKeepsPending(t *testing.T) {
	boom := errors.New("offline")
	w := &memWriter{err: boom}
	m := newTestMonitor(t, w, "")

	m.OnFileChange("a.txt", "v1")
	if err := m.Save(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want offline error, got %v", err)
	}
	if m.Pending()["a.txt"] != "v1" {
		t.Fatalf("pending dropped on failure")
	}

	w.mu.Lock()
	w.err = nil
	w.mu.Unlock()
	if err := m.Save(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(m.Pending()) != 0 {
		t.Fatalf("retry did not clear pending")
	}
}

func TestIsProjectScoped(t *testing.T) {
	cases := map[string]bool{
		"p1abc/notes.md":     true,
		"p1abc/dir/notes.md": false,
		"workspace/notes.md": false,
		"p1abc":              false,
	}
	for id, want := range cases {
		if got := isProjectScoped(id); got != want {
			t.Errorf("isProjectScoped(%q)=%v want %v", id, got, want)
		}
	}
}
