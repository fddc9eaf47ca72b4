package tle

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrEmptyCache reports a cache directory without snapshots.
var ErrEmptyCache = errors.New("tle: no cached snapshots")

// snapshotLayout names snapshot files, e.g. tle_20210610T130000Z.txt.
const snapshotLayout = "20060102T150405Z"

// Cache keeps fetched element-set snapshots on disk. Together the snapshots
// form the element-set history used for epoch selection; only the newest
// maxFiles are kept.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache in dir. A non-positive maxFiles keeps 30.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 30
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

// Write stores data as the snapshot taken at ts, replacing any snapshot
// with the same second, and prunes the oldest beyond maxFiles.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	f, err := os.CreateTemp(c.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, snapshotName(ts))); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return c.prune()
}

func snapshotName(ts time.Time) string {
	return "tle_" + ts.UTC().Format(snapshotLayout) + ".txt"
}

// LoadLatest returns the newest snapshot and its timestamp.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("%s: %w", c.dir, ErrEmptyCache)
	}

	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, latest.ts, nil
}

// LoadHistory parses every snapshot, oldest first, and returns the merged
// entries with duplicate (NORAD ID, epoch) pairs removed. The timestamp is
// that of the newest snapshot.
func (c *Cache) LoadHistory(logger *slog.Logger) ([]Entry, time.Time, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("%s: %w", c.dir, ErrEmptyCache)
	}

	sets := make([][]Entry, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(c.dir, f.name))
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
		}
		entries, err := Parse(bytes.NewReader(data), logger)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("parsing cache file %s: %w", f.name, err)
		}
		sets = append(sets, entries)
	}
	return Merge(sets...), files[len(files)-1].ts, nil
}

type cacheFile struct {
	name string
	ts   time.Time
}

// listFiles returns the snapshots oldest first. A missing directory is an
// empty cache.
func (c *Cache) listFiles() ([]cacheFile, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		stamp, ok := strings.CutPrefix(e.Name(), "tle_")
		if !ok {
			continue
		}
		stamp, ok = strings.CutSuffix(stamp, ".txt")
		if !ok {
			continue
		}
		ts, err := time.Parse(snapshotLayout, stamp)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: e.Name(), ts: ts})
	}

	slices.SortFunc(files, func(a, b cacheFile) int { return a.ts.Compare(b.ts) })
	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}
	for len(files) > c.maxFiles {
		if err := os.Remove(filepath.Join(c.dir, files[0].name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", files[0].name, err)
		}
		files = files[1:]
	}
	return nil
}
