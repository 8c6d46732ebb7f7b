// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
)

// NatsMeetingRepository is the NATS KV store repository for meetings. Records
// live in the meetings bucket keyed by UID; the room, day-reservation and
// pair entries live in the meeting-indexes bucket and are kept consistent
// with the records here.
type NatsMeetingRepository struct {
	*NatsBaseRepository[models.Meeting]
	indexes    *natsIndexStore
	keyBuilder *KeyBuilder
}

// NewNatsMeetingRepository creates a new NATS KV store repository for meetings.
func NewNatsMeetingRepository(meetings INatsKeyValue, indexes INatsKeyValue) *NatsMeetingRepository {
	return &NatsMeetingRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.Meeting](meetings, "meeting"),
		indexes:            newNatsIndexStore(indexes),
		keyBuilder:         NewKeyBuilder(""),
	}
}

// IsReady checks if the repository is ready
func (r *NatsMeetingRepository) IsReady(ctx context.Context) bool {
	return r.NatsBaseRepository.IsReady() && r.indexes.isReady()
}

// CreateMeeting writes the meeting record and its index entries. Index keys
// are claimed before the record so that uniqueness conflicts surface without
// leaving a half-visible meeting; a later failure unwinds the keys already
// claimed.
func (r *NatsMeetingRepository) CreateMeeting(ctx context.Context, meeting *models.Meeting) error {
	if meeting.UID == "" || meeting.RoomUID == "" {
		return domain.NewValidationError("meeting UID and room UID are required")
	}

	roomKey := r.keyBuilder.RoomIndexKey(meeting.RoomUID)
	err := r.indexes.createExclusive(ctx, roomKey, &indexEntry{
		MeetingUID: meeting.UID,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeConflict {
			conflict := domain.NewConflictError(
				fmt.Sprintf("room ID '%s' is already in use", meeting.RoomUID), err).
				WithCode(domain.ErrorCodeDuplicateRoom)
			if existing, _, gerr := r.indexes.get(ctx, roomKey); gerr == nil {
				conflict = conflict.WithDetail("existing_meeting_uid", existing.MeetingUID)
			}
			return conflict
		}
		return err
	}
	claimed := []string{roomKey}

	if meeting.ReservedDate != "" {
		if err := r.ReserveDay(ctx, meeting, meeting.ReservedDate); err != nil {
			r.unwindIndexKeys(ctx, claimed)
			return err
		}
		claimed = append(claimed, r.keyBuilder.DayIndexKey(meeting.StudentUID, meeting.ReservedDate))
	}

	pairKey := r.keyBuilder.PairIndexKey(meeting.VolunteerUID, meeting.StudentUID, meeting.UID)
	if err := r.indexes.createExclusive(ctx, pairKey, &indexEntry{
		MeetingUID:   meeting.UID,
		VolunteerUID: meeting.VolunteerUID,
		StudentUID:   meeting.StudentUID,
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		r.unwindIndexKeys(ctx, claimed)
		return err
	}
	claimed = append(claimed, pairKey)

	if err := r.NatsBaseRepository.Put(ctx, meeting.UID, meeting); err != nil {
		r.unwindIndexKeys(ctx, claimed)
		return err
	}

	return nil
}

func (r *NatsMeetingRepository) unwindIndexKeys(ctx context.Context, keys []string) {
	for i := len(keys) - 1; i >= 0; i-- {
		if err := r.indexes.deleteUnchecked(ctx, keys[i]); err != nil {
			slog.WarnContext(ctx, "failed to unwind index entry",
				logging.ErrKey, err, "index_key", keys[i])
		}
	}
}

// MeetingExists checks whether a meeting record exists.
func (r *NatsMeetingRepository) MeetingExists(ctx context.Context, meetingUID string) (bool, error) {
	return r.Exists(ctx, meetingUID)
}

// GetMeeting retrieves a meeting by UID.
func (r *NatsMeetingRepository) GetMeeting(ctx context.Context, meetingUID string) (*models.Meeting, error) {
	return r.Get(ctx, meetingUID)
}

// GetMeetingWithRevision retrieves a meeting and the revision its record is at.
func (r *NatsMeetingRepository) GetMeetingWithRevision(ctx context.Context, meetingUID string) (*models.Meeting, uint64, error) {
	return r.GetWithRevision(ctx, meetingUID)
}

// GetMeetingByRoom resolves a signaling room to its meeting.
func (r *NatsMeetingRepository) GetMeetingByRoom(ctx context.Context, roomUID string) (*models.Meeting, error) {
	entry, _, err := r.indexes.get(ctx, r.keyBuilder.RoomIndexKey(roomUID))
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return nil, domain.NewNotFoundError(
				fmt.Sprintf("no meeting with room ID '%s'", roomUID), err)
		}
		return nil, err
	}
	return r.Get(ctx, entry.MeetingUID)
}

// UpdateMeeting writes a meeting record at a known revision.
func (r *NatsMeetingRepository) UpdateMeeting(ctx context.Context, meeting *models.Meeting, revision uint64) error {
	return r.Update(ctx, meeting.UID, meeting, revision)
}

// ReserveDay claims the student's local day for the given meeting. A taken
// day surfaces as a day_conflict carrying the holder's UID.
func (r *NatsMeetingRepository) ReserveDay(ctx context.Context, meeting *models.Meeting, localDate string) error {
	key := r.keyBuilder.DayIndexKey(meeting.StudentUID, localDate)
	err := r.indexes.createExclusive(ctx, key, &indexEntry{
		MeetingUID:     meeting.UID,
		VolunteerUID:   meeting.VolunteerUID,
		StudentUID:     meeting.StudentUID,
		LocalDate:      localDate,
		ScheduledStart: meeting.ScheduledStart,
		CreatedAt:      time.Now().UTC(),
	})
	if err == nil {
		return nil
	}
	if domain.GetErrorType(err) != domain.ErrorTypeConflict {
		return err
	}

	conflict := domain.NewConflictError(
		fmt.Sprintf("student '%s' already has a meeting on %s", meeting.StudentUID, localDate), err).
		WithCode(domain.ErrorCodeDayConflict).
		WithDetail("local_date", localDate)
	if existing, _, gerr := r.indexes.get(ctx, key); gerr == nil {
		conflict = conflict.WithDetail("existing_meeting_uid", existing.MeetingUID)
	}
	return conflict
}

// ReleaseDay removes the student's reservation for the date if the given
// meeting still owns it. An absent key, a key owned by another meeting, or
// a key replaced mid-release all count as released.
func (r *NatsMeetingRepository) ReleaseDay(ctx context.Context, studentUID, localDate, meetingUID string) error {
	if localDate == "" {
		return nil
	}

	key := r.keyBuilder.DayIndexKey(studentUID, localDate)
	entry, revision, err := r.indexes.get(ctx, key)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return nil
		}
		return err
	}
	if entry.MeetingUID != meetingUID {
		return nil
	}

	err = r.indexes.delete(ctx, key, revision)
	if err != nil && domain.GetErrorType(err) == domain.ErrorTypeConflict {
		return nil
	}
	return err
}

// FindDayConflict resolves the student's reservation for the date to the
// meeting still holding it, or nil when the date is free. Stale reservations
// whose meeting no longer occupies the day are removed on the way. The
// reservation create in ReserveDay stays the authority; this lookup exists
// for admission checks and their error details.
func (r *NatsMeetingRepository) FindDayConflict(ctx context.Context, studentUID, localDate string) (*models.Meeting, error) {
	key := r.keyBuilder.DayIndexKey(studentUID, localDate)
	entry, revision, err := r.indexes.get(ctx, key)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			return nil, nil
		}
		return nil, err
	}

	meeting, err := r.Get(ctx, entry.MeetingUID)
	if err != nil {
		if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
			r.dropStaleReservation(ctx, key, revision)
			return nil, nil
		}
		return nil, err
	}

	if !meeting.HoldsDayReservation(localDate) {
		r.dropStaleReservation(ctx, key, revision)
		return nil, nil
	}

	return meeting, nil
}

func (r *NatsMeetingRepository) dropStaleReservation(ctx context.Context, key string, revision uint64) {
	err := r.indexes.delete(ctx, key, revision)
	if err != nil && domain.GetErrorType(err) != domain.ErrorTypeConflict {
		slog.WarnContext(ctx, "failed to drop stale day reservation",
			logging.ErrKey, err, "index_key", key)
	}
}

// pairMeetingUIDs resolves the pair index to the UIDs of every meeting the
// volunteer and student ever had together.
func (r *NatsMeetingRepository) pairMeetingUIDs(ctx context.Context, volunteerUID, studentUID string) ([]string, error) {
	keys, err := r.indexes.listKeys(ctx)
	if err != nil {
		return nil, err
	}

	prefix := r.keyBuilder.PairIndexPrefix(volunteerUID, studentUID)
	var uids []string
	for _, key := range keys {
		decoded, err := r.keyBuilder.DecodeKey(key)
		if err != nil {
			slog.WarnContext(ctx, "skipping undecodable index key",
				logging.ErrKey, err, "index_key", key)
			continue
		}
		if !strings.HasPrefix(decoded, prefix) {
			continue
		}
		uids = append(uids, strings.TrimPrefix(decoded, prefix))
	}
	return uids, nil
}

// CountActivePair counts the pair's meetings that consume pair budget.
func (r *NatsMeetingRepository) CountActivePair(ctx context.Context, volunteerUID, studentUID string) (int, error) {
	meetings, err := r.ListPairMeetings(ctx, volunteerUID, studentUID)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, meeting := range meetings {
		if meeting.CountsTowardPairLimit() {
			count++
		}
	}
	return count, nil
}

// ListPairMeetings returns every meeting of the volunteer-student pair.
func (r *NatsMeetingRepository) ListPairMeetings(ctx context.Context, volunteerUID, studentUID string) ([]*models.Meeting, error) {
	uids, err := r.pairMeetingUIDs(ctx, volunteerUID, studentUID)
	if err != nil {
		return nil, err
	}

	meetings := []*models.Meeting{}
	for _, uid := range uids {
		meeting, err := r.Get(ctx, uid)
		if err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
				continue
			}
			return nil, err
		}
		meetings = append(meetings, meeting)
	}
	return meetings, nil
}

// ListByParticipant returns every meeting the user takes part in.
func (r *NatsMeetingRepository) ListByParticipant(ctx context.Context, participantUID string) ([]*models.Meeting, error) {
	all, err := r.ListEntities(ctx, "")
	if err != nil {
		return nil, err
	}

	meetings := []*models.Meeting{}
	for _, meeting := range all {
		if meeting.IsParticipant(participantUID) {
			meetings = append(meetings, meeting)
		}
	}
	return meetings, nil
}

// ListAllMeetings returns every meeting record.
func (r *NatsMeetingRepository) ListAllMeetings(ctx context.Context) ([]*models.Meeting, error) {
	return r.ListEntities(ctx, "")
}

// MarkOverdueMissed flips every scheduled meeting whose start lies before the
// cutoff to missed, queueing the meeting.missed event in the same write and
// releasing the day reservation. A record whose revision moved underneath the
// sweep was transitioned by another actor and is skipped.
func (r *NatsMeetingRepository) MarkOverdueMissed(ctx context.Context, cutoff, now time.Time) ([]*models.Meeting, error) {
	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	return r.missOverdue(ctx, keys, cutoff, now)
}

// MarkOverdueMissedForPair is MarkOverdueMissed scoped to one
// volunteer-student pair, used during admission so stale rows free pair
// budget immediately.
func (r *NatsMeetingRepository) MarkOverdueMissedForPair(ctx context.Context, volunteerUID, studentUID string, cutoff, now time.Time) ([]*models.Meeting, error) {
	uids, err := r.pairMeetingUIDs(ctx, volunteerUID, studentUID)
	if err != nil {
		return nil, err
	}
	return r.missOverdue(ctx, uids, cutoff, now)
}

func (r *NatsMeetingRepository) missOverdue(ctx context.Context, uids []string, cutoff, now time.Time) ([]*models.Meeting, error) {
	var missed []*models.Meeting
	for _, uid := range uids {
		meeting, revision, err := r.GetWithRevision(ctx, uid)
		if err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
				continue
			}
			slog.WarnContext(ctx, "skipping meeting during missed sweep",
				logging.ErrKey, err, "meeting_uid", uid)
			continue
		}
		if meeting.Status != models.MeetingStatusScheduled || !meeting.ScheduledStart.Before(cutoff) {
			continue
		}

		meeting.Status = models.MeetingStatusMissed
		meeting.EndReason = models.EndReasonAutoMissed
		endedAt := now
		meeting.EndedAt = &endedAt
		meeting.UpdatedAt = &endedAt
		event := meeting.RecordEvent(models.MeetingEventMissed, now)
		event.Data.EndReason = models.EndReasonAutoMissed
		event.Data.FinalStatus = models.MeetingStatusMissed

		if err := r.Update(ctx, meeting.UID, meeting, revision); err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeConflict {
				continue
			}
			return missed, err
		}

		if err := r.ReleaseDay(ctx, meeting.StudentUID, meeting.ReservedDate, meeting.UID); err != nil {
			slog.WarnContext(ctx, "failed to release day reservation of missed meeting",
				logging.ErrKey, err, "meeting_uid", meeting.UID)
		}
		missed = append(missed, meeting)
	}
	return missed, nil
}

// ExpireStalePending flips instant invitations still pending past the cutoff
// to canceled with reason response_timeout, which reputation ignores.
func (r *NatsMeetingRepository) ExpireStalePending(ctx context.Context, cutoff, now time.Time) ([]*models.Meeting, error) {
	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, err
	}

	var expired []*models.Meeting
	for _, uid := range keys {
		meeting, revision, err := r.GetWithRevision(ctx, uid)
		if err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeNotFound {
				continue
			}
			slog.WarnContext(ctx, "skipping meeting during pending sweep",
				logging.ErrKey, err, "meeting_uid", uid)
			continue
		}
		if meeting.Status != models.MeetingStatusPending || !meeting.ScheduledStart.Before(cutoff) {
			continue
		}

		meeting.Status = models.MeetingStatusCanceled
		meeting.EndReason = models.EndReasonResponseTimeout
		endedAt := now
		meeting.EndedAt = &endedAt
		meeting.UpdatedAt = &endedAt
		event := meeting.RecordEvent(models.MeetingEventCanceled, now)
		event.Data.EndReason = models.EndReasonResponseTimeout
		event.Data.FinalStatus = models.MeetingStatusCanceled

		if err := r.Update(ctx, meeting.UID, meeting, revision); err != nil {
			if domain.GetErrorType(err) == domain.ErrorTypeConflict {
				continue
			}
			return expired, err
		}
		expired = append(expired, meeting)
	}
	return expired, nil
}

// GetVolunteerPerformance folds the volunteer's meetings into the reputation
// counters.
func (r *NatsMeetingRepository) GetVolunteerPerformance(ctx context.Context, volunteerUID string) (models.PerformanceStats, error) {
	all, err := r.ListEntities(ctx, "")
	if err != nil {
		return models.PerformanceStats{}, err
	}

	var own []*models.Meeting
	for _, meeting := range all {
		if meeting.VolunteerUID == volunteerUID {
			own = append(own, meeting)
		}
	}
	return models.TallyPerformance(own), nil
}
