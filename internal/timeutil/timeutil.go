// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package timeutil implements the civil-day arithmetic behind the
// one-call-per-day rule. Day boundaries are computed in the student's zone
// by date arithmetic, never by adding 24 hours, so DST transitions and
// fractional-offset zones produce correct 23h, 24.5h or 25h days.
package timeutil

import "time"

// NormalizeZone loads an IANA zone name. An empty or unknown name resolves
// to UTC and returns false so call sites can log the fallback.
func NormalizeZone(zone string) (*time.Location, bool) {
	if zone == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// DayBounds returns the half-open interval [start, end) of the civil day
// containing instant in the given zone, expressed as UTC instants. In zones
// where midnight does not exist on a spring-forward day, the bound is the
// first valid instant of that day.
func DayBounds(instant time.Time, loc *time.Location) (time.Time, time.Time) {
	local := instant.In(loc)
	year, month, day := local.Date()
	start := dayStart(year, month, day, loc)
	end := dayStart(year, month, day+1, loc)
	return start.UTC(), end.UTC()
}

// LocalDate formats the civil date of instant in the given zone. It is the
// date component of the day-reservation index key.
func LocalDate(instant time.Time, loc *time.Location) string {
	return instant.In(loc).Format("2006-01-02")
}

// dayStart is the first valid instant of the given civil day. The day may be
// out of range (such as December 32nd) and is normalized the way time.Date
// normalizes it. When midnight falls inside a DST gap, time.Date lands on
// the previous day; the day then opens at the transition instant, one gap
// width later.
func dayStart(year int, month time.Month, day int, loc *time.Location) time.Time {
	wantYear, wantMonth, wantDay := time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Date()
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if y, m, d := start.Date(); y != wantYear || m != wantMonth || d != wantDay {
		_, before := start.Zone()
		_, after := start.Add(12 * time.Hour).Zone()
		start = start.Add(time.Duration(after-before) * time.Second)
	}
	return start
}
