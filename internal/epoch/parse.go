package epoch

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MaxCompactDigits is the longest accepted compact timestamp: 14 digits of
// YYYYMMDDhhmmss plus up to 9 fraction digits.
const MaxCompactDigits = 23

const compactLayout = "20060102150405"

// ErrCompactFormat reports a compact timestamp that cannot be parsed.
var ErrCompactFormat = errors.New("epoch: invalid compact timestamp")

// ParseCompact parses "YYYYMMDDhhmmss[fraction]" into an Instant on the wall
// clock the digits describe. The fraction is right-padded to nanoseconds.
func ParseCompact(s string) (Instant, error) {
	if len(s) > MaxCompactDigits {
		return Instant{}, fmt.Errorf("%w: %q has more than %d digits", ErrCompactFormat, s, MaxCompactDigits)
	}
	if len(s) < len(compactLayout) {
		return Instant{}, fmt.Errorf("%w: %q has fewer than %d digits", ErrCompactFormat, s, len(compactLayout))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Instant{}, fmt.Errorf("%w: %q contains a non-digit", ErrCompactFormat, s)
		}
	}

	t, err := time.Parse(compactLayout, s[:len(compactLayout)])
	if err != nil {
		return Instant{}, fmt.Errorf("%w: %v", ErrCompactFormat, err)
	}

	var nsec int64
	if frac := s[len(compactLayout):]; frac != "" {
		padded := frac + "000000000"[len(frac):]
		nsec, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return Instant{}, fmt.Errorf("%w: %v", ErrCompactFormat, err)
		}
	}
	return Instant{Sec: t.Unix(), Nsec: nsec}, nil
}
