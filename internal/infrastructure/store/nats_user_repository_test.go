// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
)

func TestNatsUserRepository_PutAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsUserRepository(newMockNatsKeyValue())

	// IdP subjects routinely carry '|', which NATS keys forbid raw.
	user := &models.User{
		UID:      "auth0|64f1a2b3c4d5e6f7",
		Name:     "Amina",
		Role:     models.UserRoleStudent,
		Timezone: "Africa/Nairobi",
	}

	err := repo.PutUser(ctx, user)
	assert.NoError(t, err)

	got, err := repo.GetUser(ctx, user.UID)
	assert.NoError(t, err)
	assert.Equal(t, user.UID, got.UID)
	assert.Equal(t, models.UserRoleStudent, got.Role)
	assert.Equal(t, "Africa/Nairobi", got.Timezone)

	exists, err := repo.UserExists(ctx, user.UID)
	assert.NoError(t, err)
	assert.True(t, exists)
}

func TestNatsUserRepository_GetUser_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsUserRepository(newMockNatsKeyValue())

	got, err := repo.GetUser(ctx, "nobody")

	assert.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, domain.ErrorTypeNotFound, domain.GetErrorType(err))

	exists, err := repo.UserExists(ctx, "nobody")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestNatsUserRepository_PutUser_RequiresUID(t *testing.T) {
	ctx := context.Background()
	repo := NewNatsUserRepository(newMockNatsKeyValue())

	err := repo.PutUser(ctx, &models.User{Name: "No ID"})

	assert.Error(t, err)
	assert.Equal(t, domain.ErrorTypeValidation, domain.GetErrorType(err))
}
