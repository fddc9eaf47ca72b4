// Package track generates the time series of geodetic positions for one
// satellite over a span of local civil time.
//
// For every sample the generator resolves the five time scales, selects the
// element set in force at UT1, propagates it in TEME and hands the state to
// transform.Convert. Propagation runs on a propagation.WorkerPool; the rest
// of the pipeline is pure and runs on the calling goroutine.
package track

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
	"github.com/komasaru/iss-sgp4-json/internal/iers"
	"github.com/komasaru/iss-sgp4-json/internal/metrics"
	"github.com/komasaru/iss-sgp4-json/internal/propagation"
	"github.com/komasaru/iss-sgp4-json/internal/timescale"
	"github.com/komasaru/iss-sgp4-json/internal/tle"
	"github.com/komasaru/iss-sgp4-json/internal/transform"
)

// TableElements labels element-set selection failures in metrics.
const TableElements = "tle"

// ErrEmptyGrid is returned when the configured span holds no sample.
var ErrEmptyGrid = errors.New("track: span shorter than one step")

// ErrSpanTooLong is returned when Days exceeds MaxDays.
var ErrSpanTooLong = fmt.Errorf("track: span longer than %d days", MaxDays)

// ElementSource selects the element set for a satellite at a UT1 instant.
type ElementSource interface {
	Select(noradID int, t time.Time) (tle.Entry, error)
}

// Config controls the sample grid and the failure policy.
type Config struct {
	NoradID int
	Days    int
	Step    time.Duration

	// SkipErrors omits failed samples instead of aborting the run.
	SkipErrors bool
}

// MaxDays is the longest span whose length still fits in a time.Duration.
const MaxDays = int(math.MaxInt64 / int64(24*time.Hour))

// Span returns Days × 24 h, or false when that overflows a time.Duration.
func (c Config) Span() (time.Duration, bool) {
	if c.Days > MaxDays {
		return 0, false
	}
	return time.Duration(c.Days) * 24 * time.Hour, true
}

// Samples returns the number of grid points: Days × 86400 s divided by Step,
// truncated. It is never negative; a span beyond MaxDays saturates to
// math.MaxInt so any position budget rejects it.
func (c Config) Samples() int {
	if c.Step <= 0 || c.Days <= 0 {
		return 0
	}
	span, ok := c.Span()
	if !ok {
		return math.MaxInt
	}
	return int(span / c.Step)
}

// Generator runs the per-sample pipeline.
type Generator struct {
	resolver timescale.Resolver
	elements ElementSource
	pool     *propagation.WorkerPool
	cfg      Config
	logger   *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(resolver timescale.Resolver, elements ElementSource, pool *propagation.WorkerPool, cfg Config, logger *slog.Logger) *Generator {
	return &Generator{
		resolver: resolver,
		elements: elements,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
	}
}

// Grid returns the local civil instants start + i·Step for i in [0, Samples).
func (g *Generator) Grid(start epoch.Instant) []epoch.Instant {
	n := g.cfg.Samples()
	step := g.cfg.Step.Seconds()
	out := make([]epoch.Instant, n)
	for i := range out {
		out[i] = start.Add(float64(i) * step)
	}
	return out
}

// pending is a sample whose scales and element set have been resolved.
type pending struct {
	scales  timescale.Scales
	eop     iers.Sample
	entry   tle.Entry
	elapsed time.Duration
}

// Generate computes the track starting at the local civil instant start.
func (g *Generator) Generate(ctx context.Context, start epoch.Instant) (*Document, error) {
	began := time.Now()
	if _, ok := g.cfg.Span(); !ok {
		return nil, ErrSpanTooLong
	}
	grid := g.Grid(start)
	if len(grid) == 0 {
		return nil, ErrEmptyGrid
	}

	samples := make([]pending, 0, len(grid))
	for _, local := range grid {
		t0 := time.Now()
		p, err := g.prepare(local)
		if err != nil {
			if ferr := g.fail("resolve", local, err, time.Since(t0)); ferr != nil {
				return nil, ferr
			}
			continue
		}
		p.elapsed = time.Since(t0)
		samples = append(samples, p)
	}

	jobs := make([]propagation.Job, len(samples))
	for i, p := range samples {
		jobs[i] = propagation.Job{Entry: p.entry, UT1: p.scales.UT1}
	}
	states, err := g.pool.PropagateBatch(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("propagating track: %w", err)
	}

	doc := &Document{Data: make([]Point, 0, len(samples))}
	for i, p := range samples {
		t0 := time.Now()
		pt, err := g.finish(p, states[i])
		elapsed := p.elapsed + time.Since(t0)
		if err != nil {
			if ferr := g.fail("convert", p.scales.Local, err, elapsed); ferr != nil {
				return nil, ferr
			}
			continue
		}
		metrics.RecordSample(metrics.StatusOK, elapsed)
		doc.Data = append(doc.Data, pt)
	}
	doc.Counts = len(doc.Data)

	g.logger.Info("track generated",
		"start", start.String(),
		"samples", len(grid),
		"written", doc.Counts,
		"skipped", len(grid)-doc.Counts,
		"duration", time.Since(began),
	)
	return doc, nil
}

// At computes a single sample at the local civil instant local. Failures are
// always returned regardless of SkipErrors.
func (g *Generator) At(ctx context.Context, local epoch.Instant) (Point, error) {
	t0 := time.Now()
	pt, err := g.at(ctx, local)
	if err != nil {
		g.recordLookup(err)
		metrics.RecordSample(metrics.StatusFailed, time.Since(t0))
		return Point{}, err
	}
	metrics.RecordSample(metrics.StatusOK, time.Since(t0))
	return pt, nil
}

func (g *Generator) at(ctx context.Context, local epoch.Instant) (Point, error) {
	p, err := g.prepare(local)
	if err != nil {
		return Point{}, err
	}
	states, err := g.pool.PropagateBatch(ctx, []propagation.Job{{Entry: p.entry, UT1: p.scales.UT1}})
	if err != nil {
		return Point{}, err
	}
	return g.finish(p, states[0])
}

func (g *Generator) prepare(local epoch.Instant) (pending, error) {
	sc, eop, err := g.resolver.Resolve(local)
	if err != nil {
		return pending{}, err
	}
	entry, err := g.elements.Select(g.cfg.NoradID, sc.UT1.Time())
	if err != nil {
		return pending{}, err
	}
	return pending{scales: sc, eop: eop, entry: entry}, nil
}

func (g *Generator) finish(p pending, r propagation.Result) (Point, error) {
	if r.Err != nil {
		return Point{}, r.Err
	}
	res, err := transform.Convert(p.scales.UT1, p.scales.TAI, p.eop.PolarX, p.eop.PolarY, p.eop.LOD, r.State)
	if err != nil {
		return Point{}, err
	}
	return newPoint(p.scales, res), nil
}

// fail applies the failure policy to one sample. It returns nil when the
// sample is skipped.
func (g *Generator) fail(stage string, local epoch.Instant, err error, elapsed time.Duration) error {
	g.recordLookup(err)
	if !g.cfg.SkipErrors {
		metrics.RecordSample(metrics.StatusFailed, elapsed)
		return fmt.Errorf("sample %s: %s: %w", local, stage, err)
	}
	metrics.RecordSample(metrics.StatusSkipped, elapsed)
	g.logger.Warn("skipping sample",
		"local", local.String(),
		"stage", stage,
		"error", err,
	)
	return nil
}

func (g *Generator) recordLookup(err error) {
	var le *timescale.LookupError
	switch {
	case errors.As(err, &le):
		metrics.RecordLookupFailure(le.Table, iers.Kind(err))
	case errors.Is(err, tle.ErrNoElements):
		metrics.RecordLookupFailure(TableElements, "not_found")
	}
}
