package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/komasaru/iss-sgp4-json/internal/epoch"
)

// Parse reads NORAD element sets from r and returns parsed entries in input
// order. Both the 3-line format (name line first) and the bare 2-line format
// are accepted, and may be mixed. Malformed entries are skipped with a
// warning log.
func Parse(r io.Reader, logger *slog.Logger) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var entries []Entry
	for i := 0; i < len(lines); {
		var name string
		if !isElementLine(lines[i], '1') {
			if i+2 < len(lines) && isElementLine(lines[i+1], '1') && isElementLine(lines[i+2], '2') {
				name = strings.TrimSpace(lines[i])
				i++
			} else {
				// Try to find next valid set.
				logger.Warn("skipping malformed TLE entry", "line_index", i, "line", lines[i])
				i++
				continue
			}
		}

		if i+1 >= len(lines) || !isElementLine(lines[i+1], '2') {
			logger.Warn("skipping TLE entry without line 2", "line_index", i, "name", name)
			i++
			continue
		}
		line1, line2 := lines[i], lines[i+1]
		i += 2

		entry, err := parseEntry(name, line1, line2)
		if err != nil {
			logger.Warn("skipping TLE entry", "name", name, "line1", line1, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// LoadFile parses the element-set history file at path into a Dataset.
// FetchedAt is the file's modification time.
func LoadFile(path string, logger *slog.Logger) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening TLE file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat TLE file: %w", err)
	}

	entries, err := Parse(f, logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoElements)
	}
	return NewDataset(path, info.ModTime(), entries), nil
}

func isElementLine(line string, n byte) bool {
	return len(line) >= 2 && line[0] == n && line[1] == ' '
}

func parseEntry(name, line1, line2 string) (Entry, error) {
	if len(line1) < 32 {
		return Entry{}, errors.Errorf("short line1 (%d columns)", len(line1))
	}

	// NORAD ID from line1 cols 3-7 (0-indexed: 2..7).
	noradStr := strings.TrimSpace(line1[2:7])
	noradID, err := strconv.Atoi(noradStr)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "invalid NORAD ID %q", noradStr)
	}
	if len(line2) >= 7 && strings.TrimSpace(line2[2:7]) != noradStr {
		return Entry{}, errors.Errorf("line2 catalog number %q does not match %q", strings.TrimSpace(line2[2:7]), noradStr)
	}

	// Epoch from line1 cols 19-32 (0-indexed: 18..32).
	epochStr := strings.TrimSpace(line1[18:32])
	ep, err := parseEpoch(epochStr)
	if err != nil {
		return Entry{}, errors.Wrapf(err, "invalid epoch %q", epochStr)
	}

	return Entry{
		NORADID: noradID,
		Name:    name,
		Epoch:   ep,
		Line1:   line1,
		Line2:   line2,
	}, nil
}

// parseEpoch converts a TLE epoch string in YYDDD.DDDDDDDD format to time.Time.
// Year 00-56 → 2000s, 57-99 → 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}

	dt := epoch.DaysToCalendar(year, dayOfYear)
	t := time.Date(dt.Year, time.Month(dt.Month), dt.Day, dt.Hour, dt.Minute, 0, 0, time.UTC)
	return t.Add(time.Duration(math.Round(dt.Second * 1e6)) * time.Microsecond), nil
}
