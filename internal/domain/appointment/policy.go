package appointment

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMinAdvance = 5 * time.Minute
	DefaultUTCOffset  = -3 * time.Hour
	DefaultOpenAt     = 9 * time.Hour
	DefaultCloseAt    = 18 * time.Hour

	MaxUserNameLength = 100

	// MaxUTCOffset bounds accepted offsets to the real-world range.
	MaxUTCOffset = 14 * time.Hour

	// TimePrecision is the finest resolution kept for appointment times,
	// the resolution of a postgres timestamp.
	TimePrecision = time.Microsecond
)

// offsetLayouts are the accepted ISO-8601 forms. Every one of them requires
// an explicit offset or Z.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04Z07:00",
}

// Policy decides whether a requested appointment instant is bookable.
// Business hours are evaluated in a fixed-offset reference zone and the
// interval [OpenAt, CloseAt] is closed on both ends.
type Policy struct {
	MinAdvance time.Duration
	Location   *time.Location
	OpenAt     time.Duration
	CloseAt    time.Duration
}

func DefaultPolicy() *Policy {
	return NewPolicy(DefaultMinAdvance, DefaultUTCOffset, DefaultOpenAt, DefaultCloseAt)
}

func NewPolicy(minAdvance, utcOffset, openAt, closeAt time.Duration) *Policy {
	return &Policy{
		MinAdvance: minAdvance,
		Location:   time.FixedZone(zoneName(utcOffset), int(utcOffset/time.Second)),
		OpenAt:     openAt,
		CloseAt:    closeAt,
	}
}

// Validate parses raw and checks it against the policy at instant now.
// The result is the same instant in UTC, truncated to TimePrecision. Every
// rejection is ErrValidation.
func (p *Policy) Validate(raw string, now time.Time) (time.Time, error) {
	t, ok := parseWithOffset(raw)
	if !ok {
		return time.Time{}, ErrValidation
	}
	t = t.Truncate(TimePrecision)
	if t.Before(now.UTC().Add(p.MinAdvance)) {
		return time.Time{}, ErrValidation
	}
	if !p.withinBusinessHours(t) {
		return time.Time{}, ErrValidation
	}
	return t.UTC(), nil
}

func (p *Policy) withinBusinessHours(t time.Time) bool {
	local := t.In(p.Location)
	sinceMidnight := time.Duration(local.Hour())*time.Hour +
		time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return sinceMidnight >= p.OpenAt && sinceMidnight <= p.CloseAt
}

func parseWithOffset(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range offsetLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		_, offset := t.Zone()
		if d := time.Duration(offset) * time.Second; d > MaxUTCOffset || d < -MaxUTCOffset {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// NormalizeUserName trims the name and checks it holds 1..100 letters
// (accents included, precomposed or combining), digits or spaces.
func NormalizeUserName(name string) (string, error) {
	normalized := strings.TrimSpace(name)
	if normalized == "" {
		return "", ErrValidation
	}
	if utf8.RuneCountInString(normalized) > MaxUserNameLength {
		return "", ErrValidation
	}
	for _, r := range normalized {
		if !unicode.IsLetter(r) && !unicode.Is(unicode.Mn, r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return "", ErrValidation
		}
	}
	return normalized, nil
}

func zoneName(offset time.Duration) string {
	if offset == 0 {
		return "UTC"
	}
	return "UTC" + time.Date(2000, 1, 1, 0, 0, 0, 0, time.FixedZone("", int(offset/time.Second))).Format("-07:00")
}
