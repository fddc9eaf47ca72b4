package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komasaru/iss-sgp4-json/internal/config"
	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
	"github.com/komasaru/iss-sgp4-json/internal/track"
)

var testdata = filepath.Join("..", "..", "internal", "track", "testdata")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(testdata, name))
	require.NoError(t, err)
	return data
}

// laterElements is the test element set moved to 2021-06-10 12:00 UTC.
func laterElements(t *testing.T) []byte {
	return bytes.Replace(readTestdata(t, "iss.txt"), []byte("21160.25000000"), []byte("21161.50000000"), 1)
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "iss-sgp4-json.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestStartInstant(t *testing.T) {
	a := &app{cfg: &config.Config{UTCOffset: 9 * time.Hour}}
	now := time.Date(2021, 6, 10, 3, 30, 0, 0, time.UTC)

	got, err := a.startInstant(nil, now)
	require.NoError(t, err)
	assert.Equal(t, "2021-06-10 12:30:00.000", got.String())

	got, err = a.startInstant([]string{"20210610000000123"}, now)
	require.NoError(t, err)
	assert.Equal(t, "2021-06-10 00:00:00.123", got.String())

	_, err = a.startInstant([]string{"202106100000001234567890"}, now)
	assert.ErrorIs(t, err, epoch.ErrCompactFormat)

	_, err = a.startInstant([]string{"2021-06-10"}, now)
	assert.ErrorIs(t, err, epoch.ErrCompactFormat)
}

func TestLoadElementsMergesFileAndCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tle.txt"), readTestdata(t, "iss.txt"), 0o644))

	cacheDir := filepath.Join(dir, "cache")
	cache := tle.NewCache(cacheDir, 5)
	ts := time.Date(2021, 6, 10, 13, 0, 0, 0, time.UTC)
	require.NoError(t, cache.Write(readTestdata(t, "iss.txt"), ts.Add(-time.Hour)))
	require.NoError(t, cache.Write(laterElements(t), ts))

	cfg := &config.Config{DataDir: dir, TLEFile: "tle.txt", TLECacheDir: cacheDir, TLECacheMaxFiles: 5}
	ds, err := loadElements(cfg, quietLogger())
	require.NoError(t, err)

	require.Len(t, ds.Entries, 2)
	assert.True(t, ds.EpochRange.Min.Equal(time.Date(2021, 6, 9, 6, 0, 0, 0, time.UTC)), "min %s", ds.EpochRange.Min)
	assert.True(t, ds.EpochRange.Max.Equal(time.Date(2021, 6, 10, 12, 0, 0, 0, time.UTC)), "max %s", ds.EpochRange.Max)
	// The file was written after the newest snapshot.
	assert.True(t, ds.FetchedAt.After(ts), "fetched at %s", ds.FetchedAt)
	assert.Contains(t, ds.Source, "cache")
}

func TestLoadElementsMissing(t *testing.T) {
	cfg := &config.Config{DataDir: t.TempDir(), TLEFile: "tle.txt"}
	_, err := loadElements(cfg, quietLogger())
	assert.ErrorIs(t, err, tle.ErrNoElements)
}

func TestRefreshElements(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(laterElements(t))
	}))
	defer srv.Close()

	entries, err := tle.Parse(bytes.NewReader(readTestdata(t, "iss.txt")), quietLogger())
	require.NoError(t, err)
	store := tle.NewStore()
	store.Set(tle.NewDataset("file", time.Now().Add(-time.Hour), entries))

	cacheDir := t.TempDir()
	cache := tle.NewCache(cacheDir, 5)
	fetcher := tle.NewFetcher(srv.URL, quietLogger())

	require.NoError(t, refreshElements(context.Background(), store, fetcher, cache, quietLogger()))

	ds := store.Get()
	require.Len(t, ds.Entries, 2)
	assert.Equal(t, srv.URL, ds.Source)
	assert.Less(t, store.AgeSeconds(), 60.0)

	data, _, err := cache.LoadLatest()
	require.NoError(t, err)
	assert.Equal(t, laterElements(t), data)

	// A second refresh with the same payload adds nothing.
	require.NoError(t, refreshElements(context.Background(), store, fetcher, nil, quietLogger()))
	assert.Len(t, store.Get().Entries, 2)
}

func TestRefreshElementsEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("no elements here\n"))
	}))
	defer srv.Close()

	store := tle.NewStore()
	err := refreshElements(context.Background(), store, tle.NewFetcher(srv.URL, quietLogger()), nil, quietLogger())
	assert.ErrorIs(t, err, tle.ErrNoElements)
	assert.Nil(t, store.Get())
}

func TestAppendElements(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tle.txt")
	first, err := tle.Parse(bytes.NewReader(readTestdata(t, "iss.txt")), quietLogger())
	require.NoError(t, err)
	second, err := tle.Parse(bytes.NewReader(laterElements(t)), quietLogger())
	require.NoError(t, err)

	added, err := appendElements(path, first, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = appendElements(path, append(first, second...), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = appendElements(path, second, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, added)

	ds, err := tle.LoadFile(path, quietLogger())
	require.NoError(t, err)
	require.Len(t, ds.Entries, 2)
	assert.Equal(t, "ISS (ZARYA)", ds.Entries[1].Name)
}

func TestRootWritesTrack(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs(testdata)
	require.NoError(t, err)
	output := filepath.Join(dir, "iss.json")

	cfgFile := writeConfig(t, dir, strings.Join([]string{
		"data_dir: " + abs,
		"tle_file: iss.txt",
		"output: " + output,
		"days: 1",
		"step: 6h",
		"workers: 2",
		"log_level: error",
	}, "\n"))

	require.NoError(t, execute(t, "--config", cfgFile, "20210610000000"))

	doc, err := track.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, 4, doc.Counts)
	require.Len(t, doc.Data, 4)
	assert.Equal(t, "2021-06-10 00:00:00.000", doc.Data[0].Local)
	assert.Equal(t, "2021-06-09 15:00:00.000", doc.Data[0].UTC)
	assert.Equal(t, "2021-06-10 18:00:00.000", doc.Data[3].Local)
}

func TestRootWritesTrackToStdout(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs(testdata)
	require.NoError(t, err)

	cfgFile := writeConfig(t, dir, strings.Join([]string{
		"data_dir: " + abs,
		"tle_file: iss.txt",
		"days: 1",
		"step: 6h",
		"workers: 2",
		"log_level: info",
	}, "\n"))

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgFile, "--output", "-", "20210610000000"})
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	require.NoError(t, root.ExecuteContext(context.Background()))

	// stdout holds the document alone; logs went to stderr.
	var doc track.Document
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc), stdout.String())
	assert.Equal(t, 4, doc.Counts)
	assert.Equal(t, "2021-06-10 00:00:00.000", doc.Data[0].Local)
	assert.NotContains(t, stdout.String(), `"msg"`)
	assert.Contains(t, stderr.String(), "track written")

	_, err = os.Stat("-")
	assert.True(t, os.IsNotExist(err), "no file named - may be created")
}

func TestRootFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs(testdata)
	require.NoError(t, err)
	output := filepath.Join(dir, "iss.json")

	cfgFile := writeConfig(t, dir, strings.Join([]string{
		"data_dir: " + abs,
		"tle_file: iss.txt",
		"output: " + output,
		"days: 1",
		"step: 6h",
		"log_level: error",
	}, "\n"))

	require.NoError(t, execute(t, "--config", cfgFile, "--step", "12h", "20210610000000"))

	doc, err := track.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.Counts)
}

func TestRootRejectsBadStart(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeConfig(t, dir, "log_level: error\n")
	err := execute(t, "--config", cfgFile, "20210610")
	assert.ErrorIs(t, err, epoch.ErrCompactFormat)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := writeConfig(t, dir, "days: 0\nlog_level: error\n")
	err := execute(t, "--config", cfgFile, "20210610000000")
	assert.ErrorContains(t, err, "days must be positive")
}

func TestFetchCommand(t *testing.T) {
	payloads := map[string][]byte{
		"/tle":  readTestdata(t, "iss.txt"),
		"/eop":  readTestdata(t, "eop.txt"),
		"/leap": readTestdata(t, "Leap_Second.dat"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := payloads[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgFile := writeConfig(t, dir, strings.Join([]string{
		"data_dir: " + dir,
		"tle_cache_dir: " + filepath.Join(dir, "cache"),
		"tle_source_url: " + srv.URL + "/tle",
		"eop_source_url: " + srv.URL + "/eop",
		"leap_second_source_url: " + srv.URL + "/leap",
		"log_level: error",
	}, "\n"))

	require.NoError(t, execute(t, "--config", cfgFile, "fetch"))

	ds, err := tle.LoadFile(filepath.Join(dir, "tle.txt"), quietLogger())
	require.NoError(t, err)
	assert.Len(t, ds.Entries, 1)

	for name, src := range map[string]string{"eop.txt": "eop.txt", "Leap_Second.dat": "Leap_Second.dat"} {
		got, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, readTestdata(t, src), got, name)
	}

	_, _, err = tle.NewCache(filepath.Join(dir, "cache"), 30).LoadLatest()
	assert.NoError(t, err)

	// Fetching the same element set again keeps a single entry.
	require.NoError(t, execute(t, "--config", cfgFile, "fetch", "--eop=false", "--leap-seconds=false"))
	ds, err = tle.LoadFile(filepath.Join(dir, "tle.txt"), quietLogger())
	require.NoError(t, err)
	assert.Len(t, ds.Entries, 1)
}

func TestFetchCommandRejectsBadTable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgFile := writeConfig(t, dir, strings.Join([]string{
		"data_dir: " + dir,
		"leap_second_source_url: " + srv.URL,
		"log_level: error",
	}, "\n"))

	err := execute(t, "--config", cfgFile, "fetch", "--tle=false")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leap_seconds")

	_, statErr := os.Stat(filepath.Join(dir, "Leap_Second.dat"))
	assert.True(t, os.IsNotExist(statErr))
}
