// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
)

// NatsUserRepository is the NATS KV store repository for the mirrored user
// profiles. User UIDs come from the identity provider and may contain
// characters NATS keys forbid, so keys go through the encoding key builder.
type NatsUserRepository struct {
	*NatsBaseRepository[models.User]
	keyBuilder *KeyBuilder
}

// NewNatsUserRepository creates a new NATS KV store repository for users.
func NewNatsUserRepository(users INatsKeyValue) *NatsUserRepository {
	return &NatsUserRepository{
		NatsBaseRepository: NewNatsBaseRepository[models.User](users, "user"),
		keyBuilder:         NewKeyBuilder(""),
	}
}

// GetUser retrieves a mirrored user profile by UID.
func (r *NatsUserRepository) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	key := r.keyBuilder.EntityKeyEncoded(KeyPrefixUser, userUID)
	return r.Get(ctx, key)
}

// UserExists checks whether a user profile is mirrored in the store.
func (r *NatsUserRepository) UserExists(ctx context.Context, userUID string) (bool, error) {
	key := r.keyBuilder.EntityKeyEncoded(KeyPrefixUser, userUID)
	return r.Exists(ctx, key)
}

// PutUser writes a mirrored user profile, replacing any previous version.
func (r *NatsUserRepository) PutUser(ctx context.Context, user *models.User) error {
	if user.UID == "" {
		return domain.NewValidationError("user UID is required")
	}
	key := r.keyBuilder.EntityKeyEncoded(KeyPrefixUser, user.UID)
	return r.Put(ctx, key, user)
}
