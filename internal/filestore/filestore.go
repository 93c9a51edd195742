// Package filestore persists collections, history and analytics as files in a
// single directory. Each collection is one JSON array; whole-file writes go
// through a temp file and rename so readers never observe a partial file.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rpggio/folio/internal/domain/analytics"
	"github.com/rpggio/folio/internal/domain/content"
	"github.com/rpggio/folio/internal/domain/history"
	"github.com/rpggio/folio/internal/repository"
)

const (
	historyFile   = "history.json"
	analyticsFile = "analytics.jsonl"
)

// Dir is a data directory.
type Dir struct {
	path string
	mu   sync.Mutex
	// per-file locks
	files map[string]*sync.RWMutex
}

// Open creates path if needed.
func Open(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, repository.IOFailure("creating data dir", err)
	}
	return &Dir{path: path, files: make(map[string]*sync.RWMutex)}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) lock(name string) *sync.RWMutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.files[name]
	if !ok {
		l = &sync.RWMutex{}
		d.files[name] = l
	}
	return l
}

// readJSON decodes name into v. A missing file leaves v untouched.
func (d *Dir) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return repository.IOFailure("reading "+name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return repository.IOFailure("decoding "+name, err)
	}
	return nil
}

// writeJSON replaces name with the encoding of v.
func (d *Dir) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(d.path, "."+name+".*")
	if err != nil {
		return repository.IOFailure("writing "+name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return repository.IOFailure("writing "+name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return repository.IOFailure("syncing "+name, err)
	}
	if err := tmp.Close(); err != nil {
		return repository.IOFailure("writing "+name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.path, name)); err != nil {
		return repository.IOFailure("replacing "+name, err)
	}
	return nil
}

// Documents returns the document.Backend stored in d.
func (d *Dir) Documents() *Documents {
	return &Documents{dir: d}
}

// History returns the history.Repository stored in d.
func (d *Dir) History() *History {
	return &History{dir: d}
}

// Analytics returns the analytics.Repository stored in d.
func (d *Dir) Analytics() *Analytics {
	return &Analytics{dir: d}
}

// Documents stores each collection as <collection>.json.
type Documents struct {
	dir *Dir
}

func collectionFile(collection string) (string, error) {
	if collection == "" || collection != filepath.Base(collection) || collection[0] == '.' {
		return "", fmt.Errorf("%w: collection name %q", repository.ErrInvalidInput, collection)
	}
	return collection + ".json", nil
}

// Load reads a collection. A collection never written is empty.
func (s *Documents) Load(_ context.Context, collection string) ([]content.Entity, error) {
	name, err := collectionFile(collection)
	if err != nil {
		return nil, err
	}
	l := s.dir.lock(name)
	l.RLock()
	defer l.RUnlock()

	var entities []content.Entity
	if err := s.dir.readJSON(name, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Save replaces a collection file.
func (s *Documents) Save(_ context.Context, collection string, entities []content.Entity) error {
	name, err := collectionFile(collection)
	if err != nil {
		return err
	}
	l := s.dir.lock(name)
	l.Lock()
	defer l.Unlock()

	if entities == nil {
		entities = []content.Entity{}
	}
	return s.dir.writeJSON(name, entities)
}

// History stores the ledger newest first in history.json.
type History struct {
	dir *Dir
}

func (h *History) load() ([]history.Entry, error) {
	var entries []history.Entry
	if err := h.dir.readJSON(historyFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Append rewrites the ledger with entries at the head.
func (h *History) Append(_ context.Context, entries []*history.Entry, retain int) error {
	l := h.dir.lock(historyFile)
	l.Lock()
	defer l.Unlock()

	existing, err := h.load()
	if err != nil {
		return err
	}
	all := make([]history.Entry, 0, len(entries)+len(existing))
	for i := len(entries) - 1; i >= 0; i-- {
		all = append(all, *entries[i])
	}
	all = append(all, existing...)
	if retain > 0 && len(all) > retain {
		all = all[:retain]
	}
	return h.dir.writeJSON(historyFile, all)
}

// Get returns one entry.
func (h *History) Get(_ context.Context, id string) (*history.Entry, error) {
	l := h.dir.lock(historyFile)
	l.RLock()
	defer l.RUnlock()

	entries, err := h.load()
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i], nil
		}
	}
	return nil, repository.ErrNotFound
}

// List returns matching entries newest first.
func (h *History) List(_ context.Context, opts history.ListOptions) ([]history.Entry, error) {
	l := h.dir.lock(historyFile)
	l.RLock()
	defer l.RUnlock()

	entries, err := h.load()
	if err != nil {
		return nil, err
	}
	out := make([]history.Entry, 0, len(entries))
	for _, e := range entries {
		if opts.EntityID != "" && e.EntityID != opts.EntityID {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

// Analytics appends one JSON event per line to analytics.jsonl.
type Analytics struct {
	dir *Dir
}

// Append writes event as a new line.
func (a *Analytics) Append(_ context.Context, event *analytics.Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	if len(line) > analytics.MaxEventBytes {
		return fmt.Errorf("%w: %d bytes", analytics.ErrEventTooLarge, len(line))
	}
	l := a.dir.lock(analyticsFile)
	l.Lock()
	defer l.Unlock()

	f, err := os.OpenFile(filepath.Join(a.dir.path, analyticsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return repository.IOFailure("opening "+analyticsFile, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return repository.IOFailure("appending event", err)
	}
	return repository.IOFailure("closing "+analyticsFile, f.Close())
}

// List scans the log in append order. Malformed lines and lines longer than
// analytics.MaxEventBytes are skipped.
func (a *Analytics) List(_ context.Context, opts analytics.ListOptions) ([]analytics.Event, error) {
	l := a.dir.lock(analyticsFile)
	l.RLock()
	defer l.RUnlock()

	f, err := os.Open(filepath.Join(a.dir.path, analyticsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []analytics.Event{}, nil
	}
	if err != nil {
		return nil, repository.IOFailure("opening "+analyticsFile, err)
	}
	defer f.Close()

	out := []analytics.Event{}
	r := bufio.NewReaderSize(f, analytics.MaxEventBytes+1)
	for {
		line, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			err = skipLine(r)
			line = nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, repository.IOFailure("reading "+analyticsFile, err)
		}

		var e analytics.Event
		if len(line) > 0 && json.Unmarshal(line, &e) == nil && opts.Matches(e) {
			out = append(out, e)
			if opts.Limit > 0 && len(out) == opts.Limit {
				break
			}
		}
		if err != nil {
			break
		}
	}
	return out, nil
}

// skipLine discards the rest of the current line.
func skipLine(r *bufio.Reader) error {
	for {
		_, err := r.ReadSlice('\n')
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}
