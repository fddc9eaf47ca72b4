// Package iers loads the Earth-orientation and leap-second tables published
// by the IERS and answers point lookups by calendar date.
//
// Both tables are parsed and validated once at load time. After loading they
// are immutable and safe for concurrent reads.
package iers

import "errors"

var (
	// ErrNotFound reports that no record applies to the requested date.
	ErrNotFound = errors.New("iers: record not found")

	// ErrSourceUnavailable reports that the backing data source could not be read.
	ErrSourceUnavailable = errors.New("iers: data source unavailable")

	// ErrMalformedRecord reports a record whose numeric fields could not be parsed.
	ErrMalformedRecord = errors.New("iers: malformed record")
)

// Kind returns a short label for the error class of err, for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	default:
		return "other"
	}
}
