package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Document is a single JSON file holding named top-level sections, such as
// {"memz-logs": [...], "users": [...]}. It backs the json store backend.
// Several repositories share one Document; each owns its own section and
// all of them go through the same lock.
type Document struct {
	path string
	mu   sync.RWMutex
}

// OpenDocument returns a Document at path, creating parent directories.
// A missing file reads as an empty document.
func OpenDocument(path string) (*Document, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("storage error creating directories: %w", err)
	}
	d := &Document{path: path}

	// Surface a corrupt file at startup rather than on the first request.
	if _, err := d.load(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the file the document is stored in.
func (d *Document) Path() string {
	return d.path
}

// View decodes section into v under a read lock. A missing section leaves
// v untouched.
func (d *Document) View(section string, v any) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	sections, err := d.load()
	if err != nil {
		return err
	}
	return decodeSection(sections, section, v)
}

// Update decodes section into v, calls fn to change v, and writes the
// document back atomically. Nothing is written if fn returns an error.
func (d *Document) Update(section string, v any, fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sections, err := d.load()
	if err != nil {
		return err
	}
	if err := decodeSection(sections, section, v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage error marshalling %s: %w", section, err)
	}
	sections[section] = raw
	return d.save(sections)
}

func decodeSection(sections map[string]json.RawMessage, section string, v any) error {
	raw, ok := sections[section]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("storage error decoding %s: %w", section, err)
	}
	return nil
}

// load reads the file. A corrupt file is backed up and reported.
func (d *Document) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage error reading %s: %w", d.path, err)
	}

	sections := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &sections); err != nil {
		backupPath := d.path + ".corrupt"
		_ = os.Rename(d.path, backupPath)
		return nil, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", d.path, backupPath, err)
	}
	return sections, nil
}

// save writes to a temp file and renames it over the document.
func (d *Document) save(sections map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(sections, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	tmpPath := d.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}
