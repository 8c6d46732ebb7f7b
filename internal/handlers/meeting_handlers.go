// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package handlers is the engine's NATS surface. Handlers decode payloads and
// build replies; every decision lives in the service layer.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/infrastructure/auth"
	"github.com/talktime/meeting-engine/internal/logging"
	"github.com/talktime/meeting-engine/internal/service"
)

// MeetingHandler serves the request/reply API subjects plus the
// fire-and-forget signaling, user, and config consumers.
type MeetingHandler struct {
	meetingService  *service.MeetingService
	settingsService *service.SettingsService
	tokenValidator  *auth.LinkTokenValidator
}

// NewMeetingHandler creates a new MeetingHandler.
func NewMeetingHandler(
	meetingService *service.MeetingService,
	settingsService *service.SettingsService,
	tokenValidator *auth.LinkTokenValidator,
) *MeetingHandler {
	return &MeetingHandler{
		meetingService:  meetingService,
		settingsService: settingsService,
		tokenValidator:  tokenValidator,
	}
}

// HandlerReady checks if the handler's dependencies are ready for use.
func (h *MeetingHandler) HandlerReady() bool {
	return h.meetingService != nil && h.meetingService.ServiceReady() &&
		h.settingsService != nil && h.settingsService.ServiceReady() &&
		h.tokenValidator.Ready()
}

// HandleMessage implements domain.MessageHandler. Request/reply subjects get
// either the operation's response or the error envelope; consumed subjects
// only log failures.
func (h *MeetingHandler) HandleMessage(ctx context.Context, msg domain.Message) {
	subject := msg.Subject()
	ctx = logging.AppendCtx(ctx, slog.String("subject", subject))
	slog.DebugContext(ctx, "handling NATS message")

	handlers := map[string]func(ctx context.Context, msg domain.Message) ([]byte, error){
		models.MeetingCreateSubject:        h.HandleCreateMeeting,
		models.MeetingRescheduleSubject:    h.HandleRescheduleMeeting,
		models.MeetingCancelSubject:        h.HandleCancelMeeting,
		models.MeetingEndSubject:           h.HandleEndMeeting,
		models.MeetingGetSubject:           h.HandleGetMeeting,
		models.MeetingGetByRoomSubject:     h.HandleGetMeetingByRoom,
		models.MeetingListByStudentSubject: h.HandleListByStudent,
		models.MeetingListUpcomingSubject:  h.HandleListUpcoming,
		models.MeetingListPastSubject:      h.HandleListPast,
		models.MeetingClearSubject:         h.HandleClearMeeting,
		models.LinkTokenValidateSubject:    h.HandleValidateLinkToken,
		models.EnginePingSubject:           h.HandlePing,
		models.SignalingRoomActiveSubject:  h.HandleRoomActive,
		models.SignalingRoomEmptySubject:   h.HandleRoomEmpty,
		models.UserUpdatedSubject:          h.HandleUserUpdated,
		models.SettingsInvalidateSubject:   h.HandleSettingsInvalidate,
	}

	handler, ok := handlers[subject]
	if !ok {
		slog.WarnContext(ctx, "unknown subject")
		if msg.HasReply() {
			if err := msg.Respond(nil); err != nil {
				slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			}
		}
		return
	}

	if !h.HandlerReady() {
		h.respondError(ctx, msg, domain.NewUnavailableError("meeting engine is not ready"))
		return
	}

	response, err := handler(ctx, msg)
	if err != nil {
		h.respondError(ctx, msg, err)
		return
	}

	if msg.HasReply() {
		if err := msg.Respond(response); err != nil {
			slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, err)
			return
		}
		slog.DebugContext(ctx, "responded to NATS message")
	}
}

// respondError logs the failure and, on request/reply subjects, sends the
// error envelope so callers can branch on the machine code.
func (h *MeetingHandler) respondError(ctx context.Context, msg domain.Message, err error) {
	switch domain.GetErrorType(err) {
	case domain.ErrorTypeInternal, domain.ErrorTypeUnavailable:
		slog.ErrorContext(ctx, "error handling message", logging.ErrKey, err)
	default:
		// Rejections are the engine doing its job, not a fault.
		slog.InfoContext(ctx, "request rejected", logging.ErrKey, err)
	}
	if !msg.HasReply() {
		return
	}

	envelope := models.ErrorResponse{
		Error: models.ErrorInfo{
			Code:    domain.GetErrorCode(err),
			Message: domain.GetErrorMessage(err),
			Details: domain.GetErrorDetails(err),
		},
	}
	payload, marshalErr := json.Marshal(envelope)
	if marshalErr != nil {
		slog.ErrorContext(ctx, "error marshaling error envelope", logging.ErrKey, marshalErr)
		payload = nil
	}
	if respondErr := msg.Respond(payload); respondErr != nil {
		slog.ErrorContext(ctx, "error responding to NATS message", logging.ErrKey, respondErr)
	}
}

// decodeRequest unmarshals a message payload into the subject's request type.
func decodeRequest[T any](msg domain.Message, what string) (*T, error) {
	var req T
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		return nil, domain.NewValidationError("invalid "+what+" payload", err)
	}
	return &req, nil
}

// HandleCreateMeeting is the message handler for the meeting create subject.
func (h *MeetingHandler) HandleCreateMeeting(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.CreateMeetingRequest](msg, "create meeting")
	if err != nil {
		return nil, err
	}
	meeting, err := h.meetingService.CreateMeeting(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleRescheduleMeeting is the message handler for the meeting reschedule
// subject.
func (h *MeetingHandler) HandleRescheduleMeeting(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.RescheduleMeetingRequest](msg, "reschedule meeting")
	if err != nil {
		return nil, err
	}
	meeting, err := h.meetingService.RescheduleMeeting(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleCancelMeeting is the message handler for the meeting cancel subject.
func (h *MeetingHandler) HandleCancelMeeting(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.CancelMeetingRequest](msg, "cancel meeting")
	if err != nil {
		return nil, err
	}
	meeting, err := h.meetingService.CancelMeeting(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleEndMeeting is the message handler for the meeting end subject.
func (h *MeetingHandler) HandleEndMeeting(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.EndMeetingRequest](msg, "end meeting")
	if err != nil {
		return nil, err
	}
	result, err := h.meetingService.EndMeeting(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// HandleGetMeeting is the message handler for the meeting get subject.
func (h *MeetingHandler) HandleGetMeeting(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.GetMeetingRequest](msg, "get meeting")
	if err != nil {
		return nil, err
	}
	meeting, err := h.meetingService.GetMeeting(ctx, req.MeetingUID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleGetMeetingByRoom is the message handler for the meeting get-by-room
// subject.
func (h *MeetingHandler) HandleGetMeetingByRoom(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.GetMeetingByRoomRequest](msg, "get meeting by room")
	if err != nil {
		return nil, err
	}
	meeting, err := h.meetingService.GetMeetingByRoom(ctx, req.RoomUID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleListByStudent is the message handler for the student-centric pair
// view subject.
func (h *MeetingHandler) HandleListByStudent(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.ListByStudentRequest](msg, "list by student")
	if err != nil {
		return nil, err
	}
	view, err := h.meetingService.ListByStudent(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(view)
}

// HandleListUpcoming is the message handler for the upcoming meetings
// subject.
func (h *MeetingHandler) HandleListUpcoming(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.ListMeetingsRequest](msg, "list upcoming")
	if err != nil {
		return nil, err
	}
	meetings, err := h.meetingService.ListUpcoming(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.ListMeetingsResponse{Meetings: meetings})
}

// HandleListPast is the message handler for the past meetings subject.
func (h *MeetingHandler) HandleListPast(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.ListMeetingsRequest](msg, "list past")
	if err != nil {
		return nil, err
	}
	meetings, err := h.meetingService.ListPast(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(models.ListMeetingsResponse{Meetings: meetings})
}

// HandleClearMeeting is the message handler for the admin record-clearing
// subject.
func (h *MeetingHandler) HandleClearMeeting(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.ClearMeetingRequest](msg, "clear meeting")
	if err != nil {
		return nil, err
	}
	meeting, err := h.meetingService.ClearMeetingRecord(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(meeting)
}

// HandleValidateLinkToken is the message handler for the link-token check
// subject.
func (h *MeetingHandler) HandleValidateLinkToken(ctx context.Context, msg domain.Message) ([]byte, error) {
	req, err := decodeRequest[models.ValidateLinkTokenRequest](msg, "validate link token")
	if err != nil {
		return nil, err
	}
	if req.MeetingUID == "" || req.Token == "" {
		return nil, domain.NewValidationError("meeting UID and token are required")
	}
	ctx = logging.AppendCtx(ctx, slog.String("meeting_uid", req.MeetingUID))

	meeting, err := h.meetingService.GetMeeting(ctx, req.MeetingUID)
	if err != nil {
		return nil, err
	}
	if err := h.tokenValidator.Validate(ctx, req.Token, meeting); err != nil {
		return nil, err
	}
	return json.Marshal(models.ValidateLinkTokenResponse{Valid: true, StudentUID: meeting.StudentUID})
}

// HandlePing is the message handler for the readiness probe subject.
func (h *MeetingHandler) HandlePing(_ context.Context, _ domain.Message) ([]byte, error) {
	return []byte("pong"), nil
}

// HandleRoomActive is the message handler for the signaling room-active
// subject.
func (h *MeetingHandler) HandleRoomActive(ctx context.Context, msg domain.Message) ([]byte, error) {
	report, err := decodeRequest[models.RoomStatusMessage](msg, "room status")
	if err != nil {
		return nil, err
	}
	if report.RoomUID == "" {
		return nil, domain.NewValidationError("room UID is required")
	}
	ctx = logging.AppendCtx(ctx, slog.String("room_uid", report.RoomUID))
	if err := h.meetingService.HandleRoomActive(ctx, report.RoomUID); err != nil {
		return nil, err
	}
	return nil, nil
}

// HandleRoomEmpty is the message handler for the signaling room-empty
// subject.
func (h *MeetingHandler) HandleRoomEmpty(ctx context.Context, msg domain.Message) ([]byte, error) {
	report, err := decodeRequest[models.RoomStatusMessage](msg, "room status")
	if err != nil {
		return nil, err
	}
	if report.RoomUID == "" {
		return nil, domain.NewValidationError("room UID is required")
	}
	ctx = logging.AppendCtx(ctx, slog.String("room_uid", report.RoomUID))
	if err := h.meetingService.HandleRoomEmpty(ctx, report.RoomUID); err != nil {
		return nil, err
	}
	return nil, nil
}

// HandleUserUpdated is the message handler for profile-service user upserts.
func (h *MeetingHandler) HandleUserUpdated(ctx context.Context, msg domain.Message) ([]byte, error) {
	user, err := decodeRequest[models.User](msg, "user update")
	if err != nil {
		return nil, err
	}
	if err := h.meetingService.SyncUser(ctx, user); err != nil {
		return nil, err
	}
	return nil, nil
}

// HandleSettingsInvalidate is the message handler for config invalidation
// broadcasts.
func (h *MeetingHandler) HandleSettingsInvalidate(ctx context.Context, _ domain.Message) ([]byte, error) {
	h.settingsService.Invalidate()
	slog.InfoContext(ctx, "settings cache invalidated")
	return nil, nil
}
