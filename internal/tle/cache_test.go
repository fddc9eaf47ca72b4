package tle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheWriteLoadLatest(t *testing.T) {
	c := NewCache(t.TempDir(), 2)

	base := time.Unix(1623283200, 0)
	for i, body := range []string{"first", "second", "third"} {
		if err := c.Write([]byte(body), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if string(data) != "third" {
		t.Errorf("latest = %q, want third", data)
	}
	if !ts.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("timestamp = %s", ts)
	}

	files, err := c.listFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("kept %d files, want 2 after pruning", len(files))
	}
}

func TestCacheLoadHistory(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 10)

	history, err := os.ReadFile(filepath.Join("testdata", "history.txt"))
	if err != nil {
		t.Fatal(err)
	}
	newer := "1 25544U 98067A   21162.50000000  .00016717  00000-0  10270-3 0  9005\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09\n"

	base := time.Unix(1623283200, 0)
	if err := c.Write(history, base); err != nil {
		t.Fatal(err)
	}
	// The second snapshot repeats the whole history plus one new set.
	if err := c.Write(append(history, newer...), base.Add(24*time.Hour)); err != nil {
		t.Fatal(err)
	}

	entries, ts, err := c.LoadHistory(testLogger)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("got %d entries, want 5 after de-duplication", len(entries))
	}
	if !ts.Equal(base.Add(24 * time.Hour)) {
		t.Errorf("timestamp = %s, want newest snapshot", ts)
	}
}

func TestCacheEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 0)
	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrEmptyCache) {
		t.Errorf("LoadLatest on empty cache = %v, want ErrEmptyCache", err)
	}
	if _, _, err := c.LoadHistory(testLogger); !errors.Is(err, ErrEmptyCache) {
		t.Errorf("LoadHistory on empty cache = %v, want ErrEmptyCache", err)
	}
}

func TestCacheIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"notes.txt", "tle_yesterday.txt", "tle_20210610T000000Z.json", ".snapshot-123"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	c := NewCache(dir, 1)
	ts := time.Date(2021, 6, 10, 13, 0, 0, 0, time.UTC)
	if err := c.Write([]byte("snapshot"), ts); err != nil {
		t.Fatal(err)
	}

	files, err := c.listFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].name != "tle_20210610T130000Z.txt" {
		t.Fatalf("files = %+v", files)
	}
	// Pruning never touches files it did not write.
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Error(err)
	}
}
