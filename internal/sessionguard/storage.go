package sessionguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Storage is a string key/value store for one persistence scope.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// StorageEvent reports a change made to shared storage by another tab.
// NewValue is empty when the key was removed.
type StorageEvent struct {
	Key      string
	OldValue string
	NewValue string
}

// EventSource is implemented by storages that report changes made elsewhere.
type EventSource interface {
	Events() <-chan StorageEvent
}

// MemoryStorage is a volatile in-process Storage.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// tabEventBuffer is the per-tab event queue size. Events beyond it are
// dropped for that tab.
const tabEventBuffer = 64

// SharedArea is durable storage shared by several tabs. A write through one
// Tab is visible to every Tab and raises a StorageEvent on all the others.
type SharedArea struct {
	mu     sync.Mutex
	values map[string]string
	tabs   map[*Tab]struct{}
}

// NewSharedArea creates an empty shared area.
func NewSharedArea() *SharedArea {
	return &SharedArea{
		values: make(map[string]string),
		tabs:   make(map[*Tab]struct{}),
	}
}

// Tab is one view of a SharedArea.
type Tab struct {
	area   *SharedArea
	events chan StorageEvent
	closed bool
}

// NewTab opens a view of the area.
func (a *SharedArea) NewTab() *Tab {
	t := &Tab{area: a, events: make(chan StorageEvent, tabEventBuffer)}
	a.mu.Lock()
	a.tabs[t] = struct{}{}
	a.mu.Unlock()
	return t
}

func (t *Tab) Get(key string) (string, bool) {
	t.area.mu.Lock()
	defer t.area.mu.Unlock()
	v, ok := t.area.values[key]
	return v, ok
}

func (t *Tab) Set(key, value string) error {
	t.area.write(t, key, value, false)
	return nil
}

func (t *Tab) Remove(key string) error {
	t.area.write(t, key, "", true)
	return nil
}

// Events delivers changes made by other tabs. The channel is closed by Close.
func (t *Tab) Events() <-chan StorageEvent {
	return t.events
}

// Close detaches the tab from its area.
func (t *Tab) Close() {
	t.area.mu.Lock()
	defer t.area.mu.Unlock()

	if t.closed {
		return
	}
	t.closed = true
	delete(t.area.tabs, t)
	close(t.events)
}

func (a *SharedArea) write(from *Tab, key, value string, remove bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, existed := a.values[key]
	if remove {
		if !existed {
			return
		}
		delete(a.values, key)
	} else {
		if existed && old == value {
			return
		}
		a.values[key] = value
	}

	ev := StorageEvent{Key: key, OldValue: old, NewValue: value}
	for t := range a.tabs {
		if t == from {
			continue
		}
		select {
		case t.events <- ev:
		default:
		}
	}
}

// FileStorage is durable Storage backed by a JSON file. Every read loads the
// file so writes from another process are seen; every write replaces the
// file atomically.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage opens (or prepares) the store at path, creating its
// directory with owner-only permissions.
func NewFileStorage(path string) (*FileStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	s := &FileStorage{path: path}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (f *FileStorage) Path() string { return f.path }

func (f *FileStorage) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", false
	}
	v, ok := values[key]
	return v, ok
}

func (f *FileStorage) Set(key, value string) error {
	return f.update(func(values map[string]string) bool {
		if old, ok := values[key]; ok && old == value {
			return false
		}
		values[key] = value
		return true
	})
}

func (f *FileStorage) Remove(key string) error {
	return f.update(func(values map[string]string) bool {
		if _, ok := values[key]; !ok {
			return false
		}
		delete(values, key)
		return true
	})
}

func (f *FileStorage) update(mutate func(map[string]string) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return err
	}
	if !mutate(values) {
		return nil
	}
	return f.save(values)
}

func (f *FileStorage) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", f.path, err)
	}
	return values, nil
}

func (f *FileStorage) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".state-*.json")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck // sync error takes precedence
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing state: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting state permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
