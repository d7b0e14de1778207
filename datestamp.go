package oaipmh

import (
	"strings"
	"time"

	"emperror.dev/errors"
)

// Datestamp layouts (3.3.1 UTCdatetime).
const (
	DayLayout    = "2006-01-02"
	SecondLayout = "2006-01-02T15:04:05Z"
)

// Granularity is the precision used when sending datestamps to a repository.
type Granularity string

const (
	// GranularityAuto picks day or second precision from the values themselves.
	GranularityAuto   Granularity = "auto"
	GranularityDay    Granularity = "YYYY-MM-DD"
	GranularitySecond Granularity = "YYYY-MM-DDThh:mm:ssZ"
)

var ErrInvalidGranularity = errors.NewPlain("invalid granularity")

// ParseGranularity accepts "auto" or one of the two protocol granularities.
// The shorthands "day" and "second" are accepted as well.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.TrimSpace(s) {
	case "", "auto":
		return GranularityAuto, nil
	case "YYYY-MM-DD", "day":
		return GranularityDay, nil
	case "YYYY-MM-DDThh:mm:ssZ", "second":
		return GranularitySecond, nil
	}
	return "", errors.Wrapf(ErrInvalidGranularity, "%q", s)
}

// Datestamp is either a point in time or a literal string, which is sent to
// the repository as is. The zero value means no datestamp.
type Datestamp struct {
	t       time.Time
	literal string
	isTime  bool
}

// DatestampTime wraps a time. A zero time yields an unset datestamp.
func DatestampTime(t time.Time) Datestamp {
	if t.IsZero() {
		return Datestamp{}
	}
	return Datestamp{t: t, isTime: true}
}

// DatestampLiteral wraps an already formatted datestamp.
func DatestampLiteral(s string) Datestamp {
	return Datestamp{literal: s}
}

// IsZero reports whether the datestamp is unset.
func (d Datestamp) IsZero() bool {
	return !d.isTime && d.literal == ""
}

// Time returns the instant in UTC and true, or false for literals.
func (d Datestamp) Time() (time.Time, bool) {
	if !d.isTime {
		return time.Time{}, false
	}
	return d.t.UTC(), true
}

func (d Datestamp) hasTimeOfDay() bool {
	t, ok := d.Time()
	if !ok {
		return false
	}
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
}

// Format renders the datestamp with the given granularity. Literals are
// returned unchanged, unset datestamps render as the empty string.
func (d Datestamp) Format(g Granularity) string {
	if !d.isTime {
		return d.literal
	}
	t := d.t.UTC()
	if g == GranularityAuto {
		g = ResolveGranularity(GranularityAuto, d)
	}
	if g == GranularityDay {
		return t.Format(DayLayout)
	}
	return t.Format(SecondLayout)
}

// String formats with automatic granularity.
func (d Datestamp) String() string {
	return d.Format(GranularityAuto)
}

// ResolveGranularity turns auto into a concrete granularity, considering all
// datestamps together: a single bound with a time of day (in UTC) switches
// every bound to seconds. Explicit granularities are returned unchanged.
func ResolveGranularity(g Granularity, ds ...Datestamp) Granularity {
	if g != GranularityAuto {
		return g
	}
	for _, d := range ds {
		if d.hasTimeOfDay() {
			return GranularitySecond
		}
	}
	return GranularityDay
}

// FormatRange formats a from/until pair at a common granularity.
func FormatRange(g Granularity, from, until Datestamp) (string, string) {
	g = ResolveGranularity(g, from, until)
	return from.Format(g), until.Format(g)
}

// ParseDatestamp parses datestamps found in responses. Both protocol
// granularities are accepted, as are RFC 3339 values with offsets or
// fractional seconds, which some repositories emit.
func ParseDatestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{SecondLayout, DayLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("cannot parse datestamp %q", s)
}
