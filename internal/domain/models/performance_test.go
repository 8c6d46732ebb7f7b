// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceStatsRates(t *testing.T) {
	tests := []struct {
		name           string
		stats          PerformanceStats
		wantCancelRate int
		wantMissedRate int
	}{
		{
			name: "no history has zero rates",
		},
		{
			name:           "rates are percentages of the counted total",
			stats:          PerformanceStats{Completed: 10, Canceled: 7, Missed: 3},
			wantCancelRate: 35,
			wantMissedRate: 15,
		},
		{
			name:           "halves round away from zero",
			stats:          PerformanceStats{Completed: 39, Canceled: 1},
			wantCancelRate: 3, // 2.5 rounds up
		},
		{
			name:           "all-canceled history",
			stats:          PerformanceStats{Canceled: 4},
			wantCancelRate: 100,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantCancelRate, tc.stats.CancelRate())
			assert.Equal(t, tc.wantMissedRate, tc.stats.MissedRate())
		})
	}
}

func TestPerformanceStatsReputationScore(t *testing.T) {
	tests := []struct {
		name  string
		stats PerformanceStats
		want  int
	}{
		{
			name:  "no history scores a clean 100",
			stats: PerformanceStats{},
			want:  100,
		},
		{
			// 20 meetings, 7 canceled, 3 missed: rates 35 and 15,
			// 100 - 52.5 - 30 = 17.5 rounds to 18.
			name:  "mixed history",
			stats: PerformanceStats{Completed: 10, Canceled: 7, Missed: 3},
			want:  18,
		},
		{
			name:  "score floors at zero",
			stats: PerformanceStats{Canceled: 4},
			want:  0,
		},
		{
			name:  "perfect history keeps 100",
			stats: PerformanceStats{Completed: 12},
			want:  100,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.stats.ReputationScore())
		})
	}
}

func TestTallyPerformance(t *testing.T) {
	t.Run("counts terminal statuses into their buckets", func(t *testing.T) {
		stats := TallyPerformance([]*Meeting{
			{Status: MeetingStatusCompleted},
			{Status: MeetingStatusCompleted},
			{Status: MeetingStatusCanceled, EndReason: EndReasonCanceled},
			{Status: MeetingStatusMissed, EndReason: EndReasonAutoMissed},
		})
		assert.Equal(t, PerformanceStats{Completed: 2, Canceled: 1, Missed: 1}, stats)
		assert.Equal(t, 4, stats.Total())
	})

	t.Run("expired instant invitations are reputation neutral", func(t *testing.T) {
		stats := TallyPerformance([]*Meeting{
			{Status: MeetingStatusCanceled, EndReason: EndReasonResponseTimeout, IsInstant: true},
			{Status: MeetingStatusCanceled, EndReason: EndReasonCanceled},
		})
		assert.Equal(t, PerformanceStats{Canceled: 1}, stats)
	})

	t.Run("cleared records are invisible", func(t *testing.T) {
		stats := TallyPerformance([]*Meeting{
			{Status: MeetingStatusMissed, ClearedByAdmin: true},
			{Status: MeetingStatusCompleted, ClearedByAdmin: true},
			{Status: MeetingStatusCompleted},
		})
		assert.Equal(t, PerformanceStats{Completed: 1}, stats)
	})

	t.Run("open and short-ended meetings count toward nothing", func(t *testing.T) {
		stats := TallyPerformance([]*Meeting{
			{Status: MeetingStatusScheduled},
			{Status: MeetingStatusPending},
			{Status: MeetingStatusActive},
			{Status: MeetingStatusEnded, EndReason: EndReasonParticipantLeft},
		})
		assert.Equal(t, PerformanceStats{}, stats)
		assert.Equal(t, 0, stats.Total())
	})

	t.Run("empty history tallies to zero", func(t *testing.T) {
		assert.Equal(t, PerformanceStats{}, TallyPerformance(nil))
	})
}
