// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"strconv"
	"time"
)

// Keys of the runtime-tunable engine settings as stored in the settings
// bucket. Values are decimal integers.
const (
	SettingDurationMinutes           = "meeting.duration_minutes"
	SettingMinDurationMinutes        = "meeting.min_duration_minutes"
	SettingAutoTimeoutMinutes        = "meeting.auto_timeout_minutes"
	SettingMaxFutureMonths           = "meeting.max_future_months"
	SettingCallsPerStudentPerDay     = "meeting.calls_per_student_per_day"
	SettingMeetingsPerPair           = "meeting.meetings_per_volunteer_student_pair"
	SettingInstantResponseTimeoutSec = "instant_call.response_timeout_seconds"
	SettingWarning1Minutes           = "call_timer.warning_1_minutes"
	SettingWarning2Minutes           = "call_timer.warning_2_minutes"
	SettingCancellationRateThreshold = "volunteer.cancellation_rate_threshold"
	SettingMissedRateThreshold       = "volunteer.missed_rate_threshold"
	SettingMinReputationScore        = "volunteer.min_reputation_score"
)

// EngineSettings is an immutable snapshot of the runtime-tunable engine
// configuration. Every admission or lifecycle decision reads exactly one
// snapshot so that a mid-decision settings change cannot mix limits.
type EngineSettings struct {
	DurationMinutes               int
	MinDurationMinutes            int
	AutoTimeoutMinutes            int
	MaxFutureMonths               int
	CallsPerStudentPerDay         int
	MeetingsPerPair               int
	InstantResponseTimeoutSeconds int
	Warning1Minutes               int
	Warning2Minutes               int
	CancellationRateThreshold     int
	MissedRateThreshold           int
	MinReputationScore            int
}

// DefaultEngineSettings returns the built-in defaults used when the settings
// bucket is empty or unreachable.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		DurationMinutes:               40,
		MinDurationMinutes:            5,
		AutoTimeoutMinutes:            40,
		MaxFutureMonths:               3,
		CallsPerStudentPerDay:         1,
		MeetingsPerPair:               3,
		InstantResponseTimeoutSeconds: 180,
		Warning1Minutes:               5,
		Warning2Minutes:               1,
		CancellationRateThreshold:     40,
		MissedRateThreshold:           30,
		MinReputationScore:            30,
	}
}

// ParseEngineSettings builds a snapshot from raw stored values. Missing or
// unparseable entries resolve to the built-in default for that key; the keys
// that failed to parse are returned so the caller can log them.
func ParseEngineSettings(values map[string]string) (EngineSettings, []string) {
	settings := DefaultEngineSettings()
	var badKeys []string

	parse := func(key string, target *int) {
		raw, ok := values[key]
		if !ok {
			return
		}
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badKeys = append(badKeys, key)
			return
		}
		*target = parsed
	}

	parse(SettingDurationMinutes, &settings.DurationMinutes)
	parse(SettingMinDurationMinutes, &settings.MinDurationMinutes)
	parse(SettingAutoTimeoutMinutes, &settings.AutoTimeoutMinutes)
	parse(SettingMaxFutureMonths, &settings.MaxFutureMonths)
	parse(SettingCallsPerStudentPerDay, &settings.CallsPerStudentPerDay)
	parse(SettingMeetingsPerPair, &settings.MeetingsPerPair)
	parse(SettingInstantResponseTimeoutSec, &settings.InstantResponseTimeoutSeconds)
	parse(SettingWarning1Minutes, &settings.Warning1Minutes)
	parse(SettingWarning2Minutes, &settings.Warning2Minutes)
	parse(SettingCancellationRateThreshold, &settings.CancellationRateThreshold)
	parse(SettingMissedRateThreshold, &settings.MissedRateThreshold)
	parse(SettingMinReputationScore, &settings.MinReputationScore)

	return settings, badKeys
}

// MeetingDuration is the planned call length.
func (s EngineSettings) MeetingDuration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// AutoTimeoutGrace is how long after the scheduled start a meeting waits
// before the sweep marks it missed.
func (s EngineSettings) AutoTimeoutGrace() time.Duration {
	return time.Duration(s.AutoTimeoutMinutes) * time.Minute
}

// InstantResponseTimeout is how long an instant invitation stays pending.
func (s EngineSettings) InstantResponseTimeout() time.Duration {
	return time.Duration(s.InstantResponseTimeoutSeconds) * time.Second
}

// Warning1Lead is the lead time of the first expiry warning.
func (s EngineSettings) Warning1Lead() time.Duration {
	return time.Duration(s.Warning1Minutes) * time.Minute
}

// Warning2Lead is the lead time of the final expiry warning.
func (s EngineSettings) Warning2Lead() time.Duration {
	return time.Duration(s.Warning2Minutes) * time.Minute
}
