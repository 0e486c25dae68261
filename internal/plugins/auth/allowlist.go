package auth

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// allowlistFile is the YAML shape of ALLOWLIST_FILE. A bare list of
// addresses is accepted too.
type allowlistFile struct {
	Emails []string `yaml:"emails"`
}

// AllowList is the set of email addresses permitted to sign in. It is the
// union of a static list from the environment and an optional YAML file,
// which can be watched for changes. Safe for concurrent use.
type AllowList struct {
	static map[string]struct{}
	path   string

	mu      sync.RWMutex
	fromDoc map[string]struct{}
}

// NewAllowList builds an allow-list from static addresses and, when path is
// not empty, the addresses in that file.
func NewAllowList(static []string, path string) (*AllowList, error) {
	a := &AllowList{
		static:  emailSet(static),
		path:    path,
		fromDoc: map[string]struct{}{},
	}
	if path != "" {
		if err := a.Reload(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Allowed reports whether email may sign in.
func (a *AllowList) Allowed(email string) bool {
	email = NormalizeEmail(email)
	if email == "" {
		return false
	}
	if _, ok := a.static[email]; ok {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.fromDoc[email]
	return ok
}

// Emails returns every allowed address, sorted.
func (a *AllowList) Emails() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.static)+len(a.fromDoc))
	for e := range a.static {
		out = append(out, e)
	}
	for e := range a.fromDoc {
		if _, dup := a.static[e]; !dup {
			out = append(out, e)
		}
	}
	sort.Strings(out)
	return out
}

// Reload re-reads the allow-list file. A missing file empties the file part
// of the list; a file that does not parse leaves the current list in place.
func (a *AllowList) Reload() error {
	if a.path == "" {
		return nil
	}

	emails, err := readAllowlistFile(a.path)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.fromDoc = emailSet(emails)
	a.mu.Unlock()
	return nil
}

// Watch reloads the list whenever its file changes, until ctx is done. The
// parent directory is watched so that editors which save by renaming a
// temp file are picked up. Watch returns once the watcher is running.
func (a *AllowList) Watch(ctx context.Context) error {
	if a.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating allow-list watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(a.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(a.path), err)
	}

	target := filepath.Clean(a.path)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := a.Reload(); err != nil {
					slog.Warn("allow-list reload failed, keeping previous list",
						slog.String("path", a.path),
						slog.Any("error", err),
					)
					continue
				}
				slog.Info("allow-list reloaded", slog.String("path", a.path))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("allow-list watcher error", slog.Any("error", err))
			}
		}
	}()
	return nil
}

func readAllowlistFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading allow-list: %w", err)
	}

	var doc allowlistFile
	if err := yaml.Unmarshal(data, &doc); err == nil {
		return doc.Emails, nil
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parsing allow-list %s: %w", path, err)
	}
	return list, nil
}

func emailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = NormalizeEmail(e); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}
