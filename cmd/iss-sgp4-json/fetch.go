package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/komasaru/iss-sgp4-json/internal/iers"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
)

func newFetchCmd(a *app) *cobra.Command {
	var withTLE, withEOP, withLeap bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download element sets and IERS tables into the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := background(cmd)
			if withTLE {
				if err := a.fetchElements(ctx); err != nil {
					return err
				}
			}
			if withEOP {
				if err := a.fetchTable(ctx, "eop", a.cfg.EOPSourceURL, a.cfg.Path(a.cfg.EOPFile), validateEOP); err != nil {
					return err
				}
			}
			if withLeap {
				if err := a.fetchTable(ctx, "leap_seconds", a.cfg.LeapSecondSourceURL, a.cfg.Path(a.cfg.LeapSecondFile), validateLeapSeconds); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withTLE, "tle", true, "fetch element sets")
	cmd.Flags().BoolVar(&withEOP, "eop", true, "fetch the Earth-orientation table")
	cmd.Flags().BoolVar(&withLeap, "leap-seconds", true, "fetch the leap-second table")
	return cmd
}

// fetchElements downloads element sets, snapshots them to the cache and
// appends the new ones to the element-set file.
func (a *app) fetchElements(ctx context.Context) error {
	fetcher := tle.NewFetcher(a.cfg.TLESourceURL, a.logger, a.cfg.TLEExtraURLs...)
	data, err := fetcher.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching element sets: %w", err)
	}
	fresh, err := tle.Parse(bytes.NewReader(data), a.logger)
	if err != nil {
		return err
	}
	if len(fresh) == 0 {
		return fmt.Errorf("fetching %s: %w", fetcher.SourceURL(), tle.ErrNoElements)
	}

	if a.cfg.TLECacheDir != "" {
		if err := tle.NewCache(a.cfg.TLECacheDir, a.cfg.TLECacheMaxFiles).Write(data, time.Now()); err != nil {
			return fmt.Errorf("caching element sets: %w", err)
		}
	}

	path := a.cfg.Path(a.cfg.TLEFile)
	added, err := appendElements(path, fresh, a.logger)
	if err != nil {
		return err
	}
	a.logger.Info("fetched element sets", "url", fetcher.SourceURL(), "fetched", len(fresh), "added", added, "file", path)
	return nil
}

// appendElements merges fresh into the element-set file at path and returns
// how many entries were new.
func appendElements(path string, fresh []tle.Entry, logger *slog.Logger) (int, error) {
	var existing []tle.Entry
	ds, err := tle.LoadFile(path, logger)
	switch {
	case err == nil:
		existing = ds.Entries
	case errors.Is(err, os.ErrNotExist), errors.Is(err, tle.ErrNoElements):
	default:
		return 0, err
	}

	merged := tle.Merge(existing, fresh)
	added := len(merged) - len(existing)
	if added == 0 {
		return 0, nil
	}
	return added, writeAtomic(path, tle.Format(merged))
}

// fetchTable downloads one IERS table, validates it and replaces the file.
// An empty URL skips the table.
func (a *app) fetchTable(ctx context.Context, name, url, path string, validate func([]byte) (int, error)) error {
	if url == "" {
		a.logger.Info("no source configured, skipping", "table", name)
		return nil
	}

	data, err := tle.NewFetcher(url, a.logger).Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", name, err)
	}
	n, err := validate(data)
	if err != nil {
		return fmt.Errorf("validating %s from %s: %w", name, url, err)
	}
	if err := writeAtomic(path, data); err != nil {
		return err
	}
	a.logger.Info("fetched table", "table", name, "url", url, "records", n, "file", path)
	return nil
}

func validateEOP(data []byte) (int, error) {
	t, err := iers.LoadEOP(bytes.NewReader(data), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return 0, err
	}
	if t.Len() == 0 {
		return 0, fmt.Errorf("no dated records: %w", iers.ErrNotFound)
	}
	return t.Len(), nil
}

func validateLeapSeconds(data []byte) (int, error) {
	t, err := iers.LoadLeapSeconds(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	if t.Len() == 0 {
		return 0, fmt.Errorf("no entries: %w", iers.ErrNotFound)
	}
	return t.Len(), nil
}

// writeAtomic replaces path with data via a temporary file in the same
// directory.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temporary file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
