// Package manifest owns data.jsonl, the one-row-per-meeting record set that
// every stage reads and that the scraper and publisher rewrite.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"council-pipeline-go/internal/artifact"
	"council-pipeline-go/internal/types"
)

const FileName = "data.jsonl"

var ErrLocked = errors.New("manifest is locked by another process")

// Path returns the manifest location inside the data directory.
func Path(dataDir string) string {
	return filepath.Join(dataDir, FileName)
}

// Load reads the manifest. A missing file is an empty manifest.
func Load(path string) ([]types.Meeting, error) {
	meetings, err := artifact.ReadJSONL[types.Meeting](path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return meetings, nil
}

// Save overwrites the manifest in full.
func Save(path string, meetings []types.Meeting) error {
	if err := artifact.WriteJSONL(path, meetings); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// Merge returns fresh with each record's public link carried over from the
// old record with the same video URL. All other fields come from fresh.
func Merge(fresh, old []types.Meeting) []types.Meeting {
	links := make(map[string]string, len(old))
	for _, m := range old {
		if m.Video != "" && m.BoxLink != "" {
			links[m.Video] = m.BoxLink
		}
	}

	out := make([]types.Meeting, len(fresh))
	for i, m := range fresh {
		m.BoxLink = links[m.Video]
		out[i] = m
	}
	return out
}

// FindByVideoName returns the index of the first record whose video URL has
// the given basename, or -1.
func FindByVideoName(meetings []types.Meeting, name string) int {
	for i, m := range meetings {
		if m.Video != "" && artifact.VideoName(m.Video) == name {
			return i
		}
	}
	return -1
}

// Lock takes the manifest's writer lock. The returned func releases it.
func Lock(path string) (func(), error) {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: remove %s if no other run is active", ErrLocked, lockPath)
	}
	if err != nil {
		return nil, fmt.Errorf("lock manifest: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() { os.Remove(lockPath) }, nil
}

// Update runs fn on the current manifest under the writer lock and saves
// the result.
func Update(path string, fn func([]types.Meeting) ([]types.Meeting, error)) error {
	unlock, err := Lock(path)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := Load(path)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return Save(path, next)
}
