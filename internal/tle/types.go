package tle

import (
	"bytes"
	"time"
)

// Entry represents a single satellite's two-line element set.
type Entry struct {
	NORADID int
	Name    string // empty for two-line input
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset represents a history of element sets from one source.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Entries    []Entry
}

// NewDataset builds a Dataset and computes its epoch range.
func NewDataset(source string, fetchedAt time.Time, entries []Entry) *Dataset {
	ds := &Dataset{Source: source, FetchedAt: fetchedAt, Entries: entries}
	if len(entries) == 0 {
		return ds
	}

	ds.EpochRange = EpochRange{Min: entries[0].Epoch, Max: entries[0].Epoch}
	for _, e := range entries[1:] {
		if e.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = e.Epoch
		}
		if e.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = e.Epoch
		}
	}
	return ds
}

// Merge concatenates entry lists in order, dropping later duplicates of a
// (NORAD ID, epoch) pair.
func Merge(sets ...[]Entry) []Entry {
	type key struct {
		norad int
		epoch int64
	}
	seen := make(map[key]bool)
	var merged []Entry
	for _, set := range sets {
		for _, e := range set {
			k := key{e.NORADID, e.Epoch.UnixNano()}
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, e)
		}
	}
	return merged
}

// Format renders entries as element-set text, with a name line for entries
// that carry one. Parse reads the output back unchanged.
func Format(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		if e.Name != "" {
			buf.WriteString(e.Name)
			buf.WriteByte('\n')
		}
		buf.WriteString(e.Line1)
		buf.WriteByte('\n')
		buf.WriteString(e.Line2)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
