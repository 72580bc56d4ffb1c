package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/selfhostd/appctl/config"
	"github.com/selfhostd/appctl/interfaces"
)

// Store implements interfaces.Registry over a JSON document.
type Store struct {
	path         string
	lockPath     string
	pollInterval time.Duration
	log          *slog.Logger
}

type document struct {
	Installed []string `json:"installed"`
}

// NewStore creates a registry store over cfg's registry file.
func NewStore(cfg *config.Config, log *slog.Logger) *Store {
	path := cfg.RegistryFile()
	return &Store{
		path:         path,
		lockPath:     path + ".lock",
		pollInterval: cfg.LockPollInterval(),
		log:          log,
	}
}

// List returns the installed app IDs, sorted. An absent or malformed
// document yields an empty list, never an error.
func (s *Store) List() ([]interfaces.AppID, error) {
	set := s.readSet()
	ids := make([]interfaces.AppID, 0, len(set))
	for id := range set {
		ids = append(ids, interfaces.AppID(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Add registers an app. Adding an already-registered app is a no-op.
func (s *Store) Add(ctx context.Context, id interfaces.AppID) error {
	return s.mutate(ctx, func(set map[string]struct{}) {
		set[id.String()] = struct{}{}
	})
}

// Remove deregisters an app. Removing an unregistered app is a no-op.
func (s *Store) Remove(ctx context.Context, id interfaces.AppID) error {
	return s.mutate(ctx, func(set map[string]struct{}) {
		delete(set, id.String())
	})
}

// mutate acquires the advisory lock, applies fn to the current set, and
// atomically replaces the document. The lock is released on every exit
// path via defer.
func (s *Store) mutate(ctx context.Context, fn func(set map[string]struct{})) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	lock := flock.New(s.lockPath)
	if err := s.acquire(ctx, lock); err != nil {
		return err
	}
	defer lock.Unlock()

	set := s.readSet()
	fn(set)
	return s.writeSet(set)
}

// acquire polls the lock at a fixed interval until it is granted or ctx
// is done. Contention is expected and never surfaced as failure.
func (s *Store) acquire(ctx context.Context, lock *flock.Flock) error {
	for {
		ok, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire registry lock: %w", err)
		}
		if ok {
			return nil
		}
		s.log.Info("waiting for registry lock", "path", s.lockPath)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Store) readSet() map[string]struct{} {
	set := make(map[string]struct{})
	data, err := os.ReadFile(s.path)
	if err != nil {
		return set
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.Debug("registry document malformed, treating as empty", "path", s.path, "err", err)
		return set
	}
	for _, id := range doc.Installed {
		set[id] = struct{}{}
	}
	return set
}

// writeSet replaces the document via temp file and rename so readers
// never observe a partial write.
func (s *Store) writeSet(set map[string]struct{}) error {
	doc := document{Installed: make([]string, 0, len(set))}
	for id := range set {
		doc.Installed = append(doc.Installed, id)
	}
	sort.Strings(doc.Installed)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".registry-*")
	if err != nil {
		return fmt.Errorf("failed to create registry temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write registry document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close registry temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace registry document: %w", err)
	}
	return nil
}
