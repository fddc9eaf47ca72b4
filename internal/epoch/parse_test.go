package epoch

import (
	"errors"
	"testing"
	"time"
)

func TestParseCompact(t *testing.T) {
	base := time.Date(2021, 6, 10, 9, 30, 15, 0, time.UTC).Unix()

	tests := []struct {
		in   string
		want Instant
	}{
		{"20210610093015", Instant{Sec: base}},
		{"202106100930151", Instant{Sec: base, Nsec: 100000000}},
		{"20210610093015123", Instant{Sec: base, Nsec: 123000000}},
		{"20210610093015123456789", Instant{Sec: base, Nsec: 123456789}},
		{"20210610093015000000001", Instant{Sec: base, Nsec: 1}},
		{"20000229000000", FromDate(2000, time.February, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCompact(tt.in)
			if err != nil {
				t.Fatalf("ParseCompact(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCompact(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseCompactErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"24 digits", "202106100930151234567890"},
		{"too short", "2021061009"},
		{"empty", ""},
		{"non-digit", "2021-06-10T09:30:15"},
		{"non-digit fraction", "20210610093015.5"},
		{"month 13", "20211310093015"},
		{"day 31 in June", "20210631093015"},
		{"hour 24", "20210610243015"},
		{"not a leap year", "21000229000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCompact(tt.in); !errors.Is(err, ErrCompactFormat) {
				t.Errorf("ParseCompact(%q) error = %v, want ErrCompactFormat", tt.in, err)
			}
		})
	}
}

func TestParseCompactString(t *testing.T) {
	got, err := ParseCompact("20210610093015987654321")
	if err != nil {
		t.Fatal(err)
	}
	if s := got.String(); s != "2021-06-10 09:30:15.987" {
		t.Errorf("String() = %s, want 2021-06-10 09:30:15.987", s)
	}
}
