package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultOutputDir is the FileStore root used when none is configured.
const DefaultOutputDir = "./outputs"

// FileStore keeps artifacts under <root>/runs/<run_id>/ on the local disk.
type FileStore struct {
	root string

	// mu serializes appends within this process. Runs never share a log
	// file, so one lock per store is enough.
	mu sync.Mutex
}

// NewFileStore returns a FileStore rooted at root, or DefaultOutputDir when root is empty.
func NewFileStore(root string) *FileStore {
	if root == "" {
		root = DefaultOutputDir
	}
	return &FileStore{root: root}
}

// Root returns the store's base directory.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) runDir(runID string) string {
	return filepath.Join(s.root, "runs", runID)
}

func (s *FileStore) objectPath(runID, stage string) string {
	return filepath.Join(s.runDir(runID), stage+".json")
}

// EventsLocation implements Store.
func (s *FileStore) EventsLocation(runID string) string {
	return filepath.Join(s.runDir(runID), EventsName)
}

// WriteObject implements Store. The object is written to a temp file and
// renamed, so readers never see a partial object.
func (s *FileStore) WriteObject(_ context.Context, runID, stage string, v any) (string, error) {
	if err := validate(runID, stage); err != nil {
		return "", err
	}
	data, err := encodeObject(v)
	if err != nil {
		return "", err
	}

	dir := s.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}

	path := s.objectPath(runID, stage)
	tmp, err := os.CreateTemp(dir, "."+stage+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file for %s: %w", stage, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", stage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", stage, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod %s: %w", stage, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename %s: %w", stage, err)
	}

	log.Debug().Str("run_id", runID).Str("path", path).Int("bytes", len(data)).Msg("Artifact written")
	return path, nil
}

// AppendEvent implements Store.
func (s *FileStore) AppendEvent(_ context.Context, runID string, ev Event) (string, error) {
	if err := validate(runID, ""); err != nil {
		return "", err
	}
	line, err := encodeEvent(ev)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.runDir(runID), 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	path := s.EventsLocation(runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return "", fmt.Errorf("append event %s: %w", ev.Name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close event log: %w", err)
	}
	return path, nil
}

// ReadObject implements Store.
func (s *FileStore) ReadObject(_ context.Context, runID, stage string) ([]byte, error) {
	if err := validate(runID, stage); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.objectPath(runID, stage))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, runID, stage)
		}
		return nil, fmt.Errorf("read %s: %w", stage, err)
	}
	return data, nil
}

// Exists implements Store.
func (s *FileStore) Exists(_ context.Context, runID, stage string) (bool, error) {
	if err := validate(runID, stage); err != nil {
		return false, err
	}
	_, err := os.Stat(s.objectPath(runID, stage))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", stage, err)
	}
}

// ReadEvents implements Store.
func (s *FileStore) ReadEvents(_ context.Context, runID string) ([]Event, error) {
	if err := validate(runID, ""); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.EventsLocation(runID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, runID, EventsName)
		}
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return decodeEvents(data)
}
