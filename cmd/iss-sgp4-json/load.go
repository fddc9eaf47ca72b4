package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/komasaru/iss-sgp4-json/internal/config"
	"github.com/komasaru/iss-sgp4-json/internal/iers"
	"github.com/komasaru/iss-sgp4-json/internal/metrics"
	"github.com/komasaru/iss-sgp4-json/internal/propagation"
	"github.com/komasaru/iss-sgp4-json/internal/timescale"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
)

// pipeline is the loaded state every computing command needs.
type pipeline struct {
	eop      *iers.EOPTable
	leap     *iers.LeapSecondTable
	store    *tle.Store
	resolver timescale.Resolver
	pool     *propagation.WorkerPool
}

func (a *app) pipelineConverter() timescale.Converter {
	return timescale.Converter{UTCOffset: a.cfg.UTCOffset}
}

// loadPipeline opens the IERS tables and the element-set history. With
// requireElements unset, a missing history leaves the store empty.
func loadPipeline(cfg *config.Config, logger *slog.Logger, requireElements bool) (*pipeline, error) {
	eop, err := iers.OpenEOP(cfg.Path(cfg.EOPFile), logger)
	if err != nil {
		return nil, err
	}
	leap, err := iers.OpenLeapSeconds(cfg.Path(cfg.LeapSecondFile))
	if err != nil {
		return nil, err
	}
	first, last := eop.Range()
	logger.Info("loaded IERS tables",
		"eop_records", eop.Len(),
		"eop_first", first.String(),
		"eop_last", last.String(),
		"leap_second_entries", leap.Len(),
	)

	store := tle.NewStore()
	ds, err := loadElements(cfg, logger)
	switch {
	case err == nil:
		store.Set(ds)
		metrics.SetTLEDatasetAge(store.AgeSeconds())
	case requireElements:
		return nil, err
	default:
		logger.Warn("starting without element sets", "error", err)
	}

	gravity, err := propagation.ParseGravity(cfg.Gravity)
	if err != nil {
		return nil, err
	}
	prop := propagation.NewPropagator(gravity, logger)

	return &pipeline{
		eop:   eop,
		leap:  leap,
		store: store,
		resolver: timescale.Resolver{
			Converter: timescale.Converter{UTCOffset: cfg.UTCOffset},
			EOP:       eop,
			Leap:      leap,
		},
		pool: propagation.NewWorkerPool(cfg.Workers, prop, logger),
	}, nil
}

// loadElements merges the element-set file with the snapshot cache.
// Either source may be absent, but not both.
func loadElements(cfg *config.Config, logger *slog.Logger) (*tle.Dataset, error) {
	var (
		sets      [][]tle.Entry
		sources   []string
		fetchedAt time.Time
	)

	path := cfg.Path(cfg.TLEFile)
	if info, err := os.Stat(path); err == nil {
		ds, err := tle.LoadFile(path, logger)
		if err != nil && !errors.Is(err, tle.ErrNoElements) {
			return nil, err
		}
		if ds != nil && len(ds.Entries) > 0 {
			sets = append(sets, ds.Entries)
			sources = append(sources, path)
			fetchedAt = info.ModTime()
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("element-set file: %w", err)
	}

	if cfg.TLECacheDir != "" {
		entries, ts, err := tle.NewCache(cfg.TLECacheDir, cfg.TLECacheMaxFiles).LoadHistory(logger)
		switch {
		case errors.Is(err, tle.ErrEmptyCache):
			logger.Info("element-set cache is empty", "dir", cfg.TLECacheDir)
		case err != nil:
			logger.Warn("ignoring element-set cache", "dir", cfg.TLECacheDir, "error", err)
		default:
			sets = append(sets, entries)
			sources = append(sources, "cache")
			if ts.After(fetchedAt) {
				fetchedAt = ts
			}
		}
	}

	merged := tle.Merge(sets...)
	if len(merged) == 0 {
		return nil, fmt.Errorf("loading element sets from %s: %w", path, tle.ErrNoElements)
	}

	ds := tle.NewDataset(strings.Join(sources, "+"), fetchedAt, merged)
	logger.Info("loaded element sets",
		"count", len(ds.Entries),
		"sources", sources,
		"epoch_min", ds.EpochRange.Min.Format(time.RFC3339),
		"epoch_max", ds.EpochRange.Max.Format(time.RFC3339),
	)
	return ds, nil
}

// refreshElements fetches new element sets, snapshots them to the cache
// and merges them into the store.
func refreshElements(ctx context.Context, store *tle.Store, fetcher *tle.Fetcher, cache *tle.Cache, logger *slog.Logger) error {
	return store.Update(func(cur *tle.Dataset) (*tle.Dataset, error) {
		data, err := fetcher.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		fresh, err := tle.Parse(bytes.NewReader(data), logger)
		if err != nil {
			return nil, err
		}
		if len(fresh) == 0 {
			return nil, fmt.Errorf("fetching %s: %w", fetcher.SourceURL(), tle.ErrNoElements)
		}

		now := time.Now()
		if cache != nil {
			if err := cache.Write(data, now); err != nil {
				logger.Warn("failed to cache element sets", "error", err)
			}
		}

		var current []tle.Entry
		if cur != nil {
			current = cur.Entries
		}
		merged := tle.Merge(current, fresh)
		metrics.SetTLEDatasetAge(0)
		logger.Info("refreshed element sets",
			"fetched", len(fresh),
			"added", len(merged)-len(current),
			"total", len(merged),
		)
		return tle.NewDataset(fetcher.SourceURL(), now, merged), nil
	})
}
