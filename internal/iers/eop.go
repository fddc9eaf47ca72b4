package iers

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
)

// Sample holds the Earth-orientation parameters for one UTC date.
type Sample struct {
	PolarX float64 // milliarcseconds
	PolarY float64 // milliarcseconds
	DUT1   float64 // UT1 - UTC, seconds
	LOD    float64 // length-of-day excess, seconds; 0 when not published
}

// EarthOrientation looks up the Earth-orientation sample for an exact date.
type EarthOrientation interface {
	Lookup(date epoch.Date) (Sample, error)
}

// column is a half-open byte range of a fixed-width record.
type column struct {
	start, end int
}

func (c column) slice(line string) (string, bool) {
	if len(line) < c.end {
		return "", false
	}
	return line[c.start:c.end], true
}

// eopLayout is the fixed-column layout of an eop.txt line.
var eopLayout = struct {
	date, polarX, polarY, dut1, lod column
}{
	date:   column{0, 10},
	polarX: column{22, 31},
	polarY: column{41, 50},
	dut1:   column{62, 72},
	lod:    column{83, 90},
}

type eopRecord struct {
	sample Sample
	err    error
}

// EOPTable is an in-memory Earth-orientation table keyed by UTC date.
type EOPTable struct {
	records map[epoch.Date]eopRecord
	first   epoch.Date
	last    epoch.Date
}

// OpenEOP loads an EOP table from the file at path.
func OpenEOP(path string, logger *slog.Logger) (*EOPTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()
	return LoadEOP(f, logger)
}

// LoadEOP parses fixed-column EOP records from r.
//
// Lines whose date column does not parse are skipped with a warning. A line
// with a valid date but unparseable numeric fields is kept as a malformed
// record so that a lookup for that date reports ErrMalformedRecord. When
// several lines carry the same date the first one wins.
func LoadEOP(r io.Reader, logger *slog.Logger) (*EOPTable, error) {
	t := &EOPTable{records: make(map[epoch.Date]eopRecord)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		dateStr, ok := eopLayout.date.slice(line)
		if !ok {
			logger.Warn("skipping short EOP line", "line", lineNo)
			continue
		}
		d, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			logger.Warn("skipping EOP line with invalid date", "line", lineNo, "date", dateStr)
			continue
		}
		date := epoch.Date{Year: d.Year(), Month: d.Month(), Day: d.Day()}
		if _, dup := t.records[date]; dup {
			continue
		}

		sample, err := parseEOPRecord(line)
		if err != nil {
			err = errors.Wrapf(err, "eop %s (line %d)", date, lineNo)
			logger.Warn("malformed EOP record", "date", date.String(), "error", err)
		}
		t.records[date] = eopRecord{sample: sample, err: err}

		if len(t.records) == 1 || date.Before(t.first) {
			t.first = date
		}
		if len(t.records) == 1 || t.last.Before(date) {
			t.last = date
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading EOP data: %v", ErrSourceUnavailable, err)
	}

	return t, nil
}

func parseEOPRecord(line string) (Sample, error) {
	var s Sample
	var err error

	if s.PolarX, err = parseField(line, eopLayout.polarX, "polar motion x"); err != nil {
		return Sample{}, err
	}
	if s.PolarY, err = parseField(line, eopLayout.polarY, "polar motion y"); err != nil {
		return Sample{}, err
	}
	if s.DUT1, err = parseField(line, eopLayout.dut1, "dut1"); err != nil {
		return Sample{}, err
	}

	// LOD is not published for predicted dates; blank or missing columns mean 0.
	if raw, ok := eopLayout.lod.slice(line); ok && strings.TrimSpace(raw) != "" {
		if s.LOD, err = parseField(line, eopLayout.lod, "lod"); err != nil {
			return Sample{}, err
		}
	}

	return s, nil
}

func parseField(line string, c column, name string) (float64, error) {
	raw, ok := c.slice(line)
	if !ok {
		return 0, errors.Wrapf(ErrMalformedRecord, "%s: line too short", name)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, errors.Wrapf(ErrMalformedRecord, "%s %q", name, raw)
	}
	return v, nil
}

// Lookup returns the sample for date.
func (t *EOPTable) Lookup(date epoch.Date) (Sample, error) {
	rec, ok := t.records[date]
	if !ok {
		return Sample{}, fmt.Errorf("eop %s: %w", date, ErrNotFound)
	}
	if rec.err != nil {
		return Sample{}, rec.err
	}
	return rec.sample, nil
}

// Len returns the number of dated records, malformed ones included.
func (t *EOPTable) Len() int {
	return len(t.records)
}

// Range returns the first and last dates covered by the table.
func (t *EOPTable) Range() (first, last epoch.Date) {
	return t.first, t.last
}
