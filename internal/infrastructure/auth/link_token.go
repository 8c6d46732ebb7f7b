// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package auth validates the signed meeting-link tokens students join with.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
)

const linkTokenAlg = "HS256"

// linkTokenClaims is the token payload. The JSON key names are a
// compatibility constraint with the service that mints the links.
type linkTokenClaims struct {
	MeetingUID string `json:"meetingId"`
	StudentUID string `json:"studentId"`
	RoomUID    string `json:"roomId"`
	IssuedAt   int64  `json:"iat"`
	ExpiresAt  int64  `json:"exp"`
}

type linkTokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
}

// LinkTokenValidator checks meeting-link tokens: three dot-separated
// base64url segments signed with HMAC-SHA256 under a deployment-wide secret.
// The shape is JWT for compatibility, but no claims beyond the five in
// linkTokenClaims are honored.
type LinkTokenValidator struct {
	secret []byte
	clock  domain.Clock
}

// NewLinkTokenValidator creates a validator signing and checking with the
// given secret.
func NewLinkTokenValidator(secret []byte, clock domain.Clock) *LinkTokenValidator {
	return &LinkTokenValidator{secret: secret, clock: clock}
}

// Ready reports whether the validator has a usable secret.
func (v *LinkTokenValidator) Ready() bool {
	return v != nil && len(v.secret) > 0 && v.clock != nil
}

// Validate checks the token's structure, signature, and expiry, then that its
// claims name the given meeting. Structural and cryptographic failures come
// back as bad_token; a well-formed token for a different meeting, student, or
// room comes back as token_mismatch.
func (v *LinkTokenValidator) Validate(_ context.Context, token string, meeting *models.Meeting) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return badToken("link token is not three dot-separated segments")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return badToken("link token header is not base64url", err)
	}
	var header linkTokenHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return badToken("link token header is not JSON", err)
	}
	if header.Alg != linkTokenAlg {
		return badToken("unsupported link token algorithm").WithDetail("alg", header.Alg)
	}

	signature, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return badToken("link token signature is not base64url", err)
	}
	if !hmac.Equal(signature, v.sign(parts[0]+"."+parts[1])) {
		return badToken("link token signature mismatch")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return badToken("link token payload is not base64url", err)
	}
	var claims linkTokenClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return badToken("link token payload is not JSON", err)
	}
	if claims.ExpiresAt <= 0 || v.clock.Now().Unix() >= claims.ExpiresAt {
		return badToken("link token expired")
	}

	switch {
	case claims.MeetingUID != meeting.UID:
		return tokenMismatch("meeting_uid")
	case claims.StudentUID != meeting.StudentUID:
		return tokenMismatch("student_uid")
	case claims.RoomUID != meeting.RoomUID:
		return tokenMismatch("room_uid")
	}
	return nil
}

// Generate mints a token for the meeting, valid for ttl from now. The
// signaling handoff uses it when a volunteer shares a meeting link.
func (v *LinkTokenValidator) Generate(meeting *models.Meeting, ttl time.Duration) (string, error) {
	now := v.clock.Now()
	headerJSON, err := json.Marshal(linkTokenHeader{Alg: linkTokenAlg, Typ: "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(linkTokenClaims{
		MeetingUID: meeting.UID,
		StudentUID: meeting.StudentUID,
		RoomUID:    meeting.RoomUID,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}
	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(v.sign(signingInput)), nil
}

func (v *LinkTokenValidator) sign(signingInput string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signingInput))
	return mac.Sum(nil)
}

func badToken(message string, err ...error) *domain.DomainError {
	return domain.NewValidationError(message, err...).WithCode(domain.ErrorCodeBadToken)
}

func tokenMismatch(field string) *domain.DomainError {
	return domain.NewUnauthorizedError("link token does not match the meeting").
		WithCode(domain.ErrorCodeTokenMismatch).
		WithDetail("mismatch", field)
}
