// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package models

import "math"

// PerformanceStats aggregates a volunteer's terminal meetings, excluding
// records cleared by an admin and expired instant invitations.
type PerformanceStats struct {
	Completed int `json:"completed"`
	Canceled  int `json:"canceled"`
	Missed    int `json:"missed"`
}

// Total is the number of meetings that count toward reputation.
func (p PerformanceStats) Total() int {
	return p.Completed + p.Canceled + p.Missed
}

// CancelRate is the percentage of counted meetings the volunteer canceled,
// rounded half away from zero. A volunteer without history has rate zero.
func (p PerformanceStats) CancelRate() int {
	total := p.Total()
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(p.Canceled) / float64(total)))
}

// MissedRate is the percentage of counted meetings the volunteer missed,
// rounded half away from zero.
func (p PerformanceStats) MissedRate() int {
	total := p.Total()
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(p.Missed) / float64(total)))
}

// ReputationScore derives the volunteer's score from the rounded rates:
// max(0, round(100 - 1.5*cancelRate - 2*missedRate)). A volunteer without
// history scores 100.
func (p PerformanceStats) ReputationScore() int {
	score := math.Round(100 - 1.5*float64(p.CancelRate()) - 2*float64(p.MissedRate()))
	if score < 0 {
		return 0
	}
	return int(score)
}

// TallyPerformance folds a volunteer's meetings into reputation counters.
// Cleared records are invisible, `ended` short calls count toward nothing,
// and cancellations caused by an unanswered instant invitation
// (response_timeout) are the student's silence, not the volunteer's fault.
func TallyPerformance(meetings []*Meeting) PerformanceStats {
	var stats PerformanceStats
	for _, m := range meetings {
		if m.ClearedByAdmin {
			continue
		}
		switch m.Status {
		case MeetingStatusCompleted:
			stats.Completed++
		case MeetingStatusCanceled:
			if m.EndReason != EndReasonResponseTimeout {
				stats.Canceled++
			}
		case MeetingStatusMissed:
			stats.Missed++
		}
	}
	return stats
}

// PairStats summarizes a volunteer-student pair against the pair meeting
// limit.
type PairStats struct {
	Count           int  `json:"count"`
	Limit           int  `json:"limit"`
	CanScheduleMore bool `json:"can_schedule_more"`
}
