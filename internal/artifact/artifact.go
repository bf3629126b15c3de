// Package artifact derives per-video artifact paths and reads/writes them.
//
// Every artifact for a video lives next to the video file in the data
// directory and differs only by extension: name.mp4, name.txt, name.json,
// name.summary. Writes go through a temp file and rename so that a crash
// mid-write never leaves an output that a later skip-check would accept.
package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	ExtVideo   = ".mp4"
	ExtText    = ".txt"
	ExtSegment = ".json"
	ExtSummary = ".summary"
)

// VideoPath returns the local path for a remote video URL: the URL's
// basename inside dir.
func VideoPath(dir, videoURL string) string {
	return filepath.Join(dir, VideoName(videoURL))
}

// VideoName is the basename of the URL path, ignoring any query string.
func VideoName(videoURL string) string {
	p := videoURL
	if u, err := url.Parse(videoURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return path.Base(p)
}

// WithExt swaps the extension of p for ext.
func WithExt(p, ext string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ext
}

// Exists reports whether every path exists.
func Exists(paths ...string) bool {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

// WriteFileAtomic writes data to path via path.tmp and a rename.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// ReadJSONL decodes one T per non-blank line.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// EncodeJSONL renders rows one JSON object per line.
func EncodeJSONL[T any](rows []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range rows {
		if err := enc.Encode(rows[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// WriteJSONL atomically replaces path with rows.
func WriteJSONL[T any](path string, rows []T) error {
	data, err := EncodeJSONL(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

// Glob lists files in dir with the given extension, sorted.
func Glob(dir, ext string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*"+ext))
}
