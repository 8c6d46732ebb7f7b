// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/talktime/meeting-engine/internal/logging"
)

// Common key prefixes
const (
	// Entity prefixes
	KeyPrefixUser = "user"

	// Index prefixes. Room entries enforce roomId uniqueness, day entries are
	// the one-call-per-day reservations, pair entries accelerate
	// volunteer-student scans.
	KeyPrefixIndexRoom = "room"
	KeyPrefixIndexDay  = "day"
	KeyPrefixIndexPair = "pair"
)

// KeyBuilder provides utilities for building consistent NATS KV keys.
// Segments embedding externally minted identifiers are base64-encoded so
// characters NATS keys forbid (for example '|' in IdP subjects) cannot
// corrupt the key structure.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder creates a new key builder with an optional prefix
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{
		prefix: prefix,
	}
}

// EntityKeyEncoded builds an encoded key for an entity (e.g., "user/uid-123")
func (kb *KeyBuilder) EntityKeyEncoded(entityType, uid string) string {
	key := fmt.Sprintf("%s/%s", entityType, uid)
	return kb.applyPrefix(key, true)
}

// RoomIndexKey builds the encoded uniqueness key for a signaling room.
func (kb *KeyBuilder) RoomIndexKey(roomUID string) string {
	key := fmt.Sprintf("%s/%s", KeyPrefixIndexRoom, roomUID)
	return kb.applyPrefix(key, true)
}

// DayIndexKey builds the encoded reservation key for a student's local day.
func (kb *KeyBuilder) DayIndexKey(studentUID, localDate string) string {
	key := fmt.Sprintf("%s/%s/%s", KeyPrefixIndexDay, studentUID, localDate)
	return kb.applyPrefix(key, true)
}

// PairIndexKey builds the encoded membership key of a meeting in a
// volunteer-student pair.
func (kb *KeyBuilder) PairIndexKey(volunteerUID, studentUID, meetingUID string) string {
	key := fmt.Sprintf("%s/%s/%s/%s", KeyPrefixIndexPair, volunteerUID, studentUID, meetingUID)
	return kb.applyPrefix(key, true)
}

// PairIndexPrefix is the decoded-key prefix shared by a pair's membership
// keys; DecodeKey output is matched against it during pair scans.
func (kb *KeyBuilder) PairIndexPrefix(volunteerUID, studentUID string) string {
	return fmt.Sprintf("/%s/%s/%s/", KeyPrefixIndexPair, volunteerUID, studentUID)
}

// applyPrefix adds the builder's prefix if one is set
func (kb *KeyBuilder) applyPrefix(key string, encode bool) string {
	var fullKey string
	if kb.prefix == "" {
		fullKey = key
	} else {
		fullKey = fmt.Sprintf("%s/%s", kb.prefix, key)
	}

	if encode {
		encodedKey, err := kb.EncodeKey(fullKey)
		if err != nil {
			slog.Error("error encoding key", logging.ErrKey, err, "key", fullKey)
			return fullKey
		}
		return encodedKey
	}
	return fullKey
}

// EncodeKey encodes a key for NATS KV store.
// From https://github.com/ripienaar/encodedkv
//
// NATS limitations: https://docs.nats.io/nats-concepts/jetstream/key-value-store#notes
func (kb *KeyBuilder) EncodeKey(key string) (string, error) {
	res := []string{}
	for _, part := range strings.Split(strings.TrimPrefix(key, "/"), "/") {
		if part == ">" || part == "*" {
			res = append(res, part)
			continue
		}

		dst := make([]byte, base64.StdEncoding.EncodedLen(len(part)))
		base64.StdEncoding.Encode(dst, []byte(part))
		res = append(res, string(dst))
	}

	if len(res) == 0 {
		return "", nats.ErrInvalidKey
	}

	return strings.Join(res, "."), nil
}

// DecodeKey decodes a key for NATS KV store.
// From https://github.com/ripienaar/encodedkv
//
// NATS limitations: https://docs.nats.io/nats-concepts/jetstream/key-value-store#notes
func (kb *KeyBuilder) DecodeKey(key string) (string, error) {
	res := []string{}
	for _, part := range strings.Split(key, ".") {
		k, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return "", err
		}

		res = append(res, string(k))
	}

	if len(res) == 0 {
		return "", nats.ErrInvalidKey
	}

	return fmt.Sprintf("/%s", strings.Join(res, "/")), nil
}
