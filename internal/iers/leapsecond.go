package iers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
)

// LeapSeconds returns the cumulative TAI - UTC offset in effect on a date.
type LeapSeconds interface {
	Lookup(date epoch.Date) (int, error)
}

// LeapSecond is one row of the leap-second history.
type LeapSecond struct {
	Effective   epoch.Date
	TAIMinusUTC int
}

// leapLayout is the fixed-column layout of a Leap_Second.dat line.
var leapLayout = struct {
	day, month, year, dat column
}{
	day:   column{14, 16},
	month: column{17, 19},
	year:  column{20, 24},
	dat:   column{31, 33},
}

// LeapSecondTable answers range lookups over the leap-second history.
type LeapSecondTable struct {
	entries []LeapSecond // ascending by Effective
}

// NewLeapSecondTable builds a table from entries in any order.
func NewLeapSecondTable(entries []LeapSecond) *LeapSecondTable {
	sorted := make([]LeapSecond, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Effective.Before(sorted[j].Effective)
	})
	return &LeapSecondTable{entries: sorted}
}

// OpenLeapSeconds loads the leap-second table from the file at path.
func OpenLeapSeconds(path string) (*LeapSecondTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()
	return LoadLeapSeconds(f)
}

// LoadLeapSeconds parses Leap_Second.dat records from r. Lines starting with
// '#' are comments. Any other non-blank line must be a complete record; a
// malformed row fails the whole load because later lookups depend on every
// range boundary.
func LoadLeapSeconds(r io.Reader) (*LeapSecondTable, error) {
	var entries []LeapSecond

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ls, err := parseLeapRecord(line)
		if err != nil {
			return nil, errors.Wrapf(err, "leap second line %d", lineNo)
		}
		entries = append(entries, ls)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading leap second data: %v", ErrSourceUnavailable, err)
	}

	return NewLeapSecondTable(entries), nil
}

func parseLeapRecord(line string) (LeapSecond, error) {
	fields := [4]int{}
	for i, c := range []column{leapLayout.day, leapLayout.month, leapLayout.year, leapLayout.dat} {
		raw, ok := c.slice(line)
		if !ok {
			return LeapSecond{}, errors.Wrap(ErrMalformedRecord, "line too short")
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return LeapSecond{}, errors.Wrapf(ErrMalformedRecord, "field %q", raw)
		}
		fields[i] = v
	}

	day, month, year := fields[0], fields[1], fields[2]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return LeapSecond{}, errors.Wrapf(ErrMalformedRecord, "invalid date %04d-%02d-%02d", year, month, day)
	}

	return LeapSecond{
		Effective:   epoch.Date{Year: year, Month: time.Month(month), Day: day},
		TAIMinusUTC: fields[3],
	}, nil
}

// Lookup returns TAI - UTC for the most recent entry whose effective date is
// on or before date.
func (t *LeapSecondTable) Lookup(date epoch.Date) (int, error) {
	// Index of the first entry effective strictly after date.
	i := sort.Search(len(t.entries), func(i int) bool {
		return date.Before(t.entries[i].Effective)
	})
	if i == 0 {
		return 0, fmt.Errorf("leap seconds %s: %w", date, ErrNotFound)
	}
	return t.entries[i-1].TAIMinusUTC, nil
}

// Len returns the number of entries.
func (t *LeapSecondTable) Len() int {
	return len(t.entries)
}

// Last returns the most recent entry, or false for an empty table.
func (t *LeapSecondTable) Last() (LeapSecond, bool) {
	if len(t.entries) == 0 {
		return LeapSecond{}, false
	}
	return t.entries[len(t.entries)-1], true
}
