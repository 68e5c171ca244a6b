// Package dateparse normalizes the date formats found in raw sensor
// exports. The counting hardware's export tool writes German dates like
// "3. März 2021 14:00"; newer exports use ISO timestamps.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// germanMonths maps the month names used by the export tool to their
// numeric values. The trailing dot is part of the abbreviated forms.
var germanMonths = map[string]time.Month{
	"Jan.": time.January,
	"Feb.": time.February,
	"März": time.March,
	"Apr.": time.April,
	"Mai":  time.May,
	"Juni": time.June,
	"Juli": time.July,
	"Aug.": time.August,
	"Sep.": time.September,
	"Okt.": time.October,
	"Nov.": time.November,
	"Dez.": time.December,
}

// germanDateRe matches "day. month_name year hour:minute". The pattern is
// anchored so partial or garbled strings fail instead of producing a wrong
// date.
var germanDateRe = regexp.MustCompile(
	`^\s*(\d{1,2})\.\s*(Jan\.|Feb\.|März|Apr\.|Mai|Juni|Juli|Aug\.|Sep\.|Okt\.|Nov\.|Dez\.)\s*(\d{4})\s*(\d{2}):(\d{2})\s*$`,
)

// genericLayouts are tried in order when the German pattern does not match.
var genericLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006",
}

// ParseGermanTime parses the German "day. month_name year hour:minute"
// format. Returns false for anything that does not match exactly.
func ParseGermanTime(s string) (time.Time, bool) {
	m := germanDateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := germanMonths[m[2]]
	if !ok {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	t := time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes out-of-range days (e.g. Feb 30 -> Mar 2); treat
	// any normalization as a parse failure.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// ParseAny parses a free-text date value: German format first, then the
// generic layouts. Returns false when nothing matches; the caller decides
// whether to null or drop the row.
func ParseAny(s string) (time.Time, bool) {
	if t, ok := ParseGermanTime(s); ok {
		return t, true
	}
	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseColumn parses every value of a raw date column. Unparseable values
// are returned in bad (by row position); parsed values for those rows are
// the zero time.
func ParseColumn(values []string) (times []time.Time, bad []int) {
	times = make([]time.Time, len(values))
	for i, v := range values {
		t, ok := ParseAny(v)
		if !ok {
			bad = append(bad, i)
			continue
		}
		times[i] = t
	}
	return times, bad
}

// MustParse is a test helper for fixed timestamps in "2006-01-02 15:04:05"
// form. It panics on malformed input.
func MustParse(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(fmt.Sprintf("dateparse: bad fixture timestamp %q: %v", s, err))
	}
	return t
}
