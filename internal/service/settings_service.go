// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/talktime/meeting-engine/internal/domain"
	"github.com/talktime/meeting-engine/internal/domain/models"
	"github.com/talktime/meeting-engine/internal/logging"
)

// DefaultSettingsTTL bounds how stale a served settings snapshot can be.
const DefaultSettingsTTL = 30 * time.Second

// SettingsService serves cached snapshots of the runtime-tunable engine
// settings. Reads within the TTL are lock-cheap; concurrent cache misses
// collapse into a single store read.
type SettingsService struct {
	SettingsRepository domain.SettingsRepository
	Clock              domain.Clock
	TTL                time.Duration

	group    singleflight.Group
	mu       sync.RWMutex
	snapshot models.EngineSettings
	loadedAt time.Time
	loaded   bool
	stale    bool
}

// NewSettingsService creates a new SettingsService with the default TTL.
func NewSettingsService(settingsRepository domain.SettingsRepository, clock domain.Clock) *SettingsService {
	return &SettingsService{
		SettingsRepository: settingsRepository,
		Clock:              clock,
		TTL:                DefaultSettingsTTL,
	}
}

// ServiceReady checks if the service is ready for use.
func (s *SettingsService) ServiceReady() bool {
	return s.SettingsRepository != nil && s.Clock != nil
}

// Snapshot returns the current engine settings. It never fails: when a reload
// errors it serves the previous snapshot, and before anything was ever loaded
// it serves the built-in defaults. Callers hold on to the returned value for
// the whole decision so one admission never mixes two configurations.
func (s *SettingsService) Snapshot(ctx context.Context) models.EngineSettings {
	if !s.ServiceReady() {
		return models.DefaultEngineSettings()
	}

	s.mu.RLock()
	if s.loaded && !s.stale && s.Clock.Now().Sub(s.loadedAt) < s.TTL {
		snapshot := s.snapshot
		s.mu.RUnlock()
		return snapshot
	}
	s.mu.RUnlock()

	value, _, _ := s.group.Do("reload", func() (any, error) {
		return s.reload(ctx), nil
	})
	return value.(models.EngineSettings)
}

// Invalidate marks the cached snapshot stale so the next read hits the store.
// Wired to the configuration invalidation subject.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

func (s *SettingsService) reload(ctx context.Context) models.EngineSettings {
	values, err := s.SettingsRepository.ListSettings(ctx)
	now := s.Clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if s.loaded {
			// Serve the previous snapshot for another TTL rather than hit an
			// unavailable store on every decision.
			s.loadedAt = now
			s.stale = false
			slog.WarnContext(ctx, "settings reload failed, keeping previous snapshot", logging.ErrKey, err)
			return s.snapshot
		}
		slog.WarnContext(ctx, "settings reload failed, using built-in defaults", logging.ErrKey, err)
		return models.DefaultEngineSettings()
	}

	snapshot, badKeys := models.ParseEngineSettings(values)
	if len(badKeys) > 0 {
		slog.WarnContext(ctx, "ignoring unparseable settings", "keys", badKeys)
	}

	s.snapshot = snapshot
	s.loadedAt = now
	s.loaded = true
	s.stale = false
	return snapshot
}

// SeedDefaults writes the built-in default for every key missing from the
// settings bucket, so operators can discover and edit the tunables in place.
// Existing values are never overwritten.
func (s *SettingsService) SeedDefaults(ctx context.Context) error {
	values, err := s.SettingsRepository.ListSettings(ctx)
	if err != nil {
		return err
	}

	defaults := models.DefaultEngineSettings()
	for key, value := range map[string]int{
		models.SettingDurationMinutes:           defaults.DurationMinutes,
		models.SettingMinDurationMinutes:        defaults.MinDurationMinutes,
		models.SettingAutoTimeoutMinutes:        defaults.AutoTimeoutMinutes,
		models.SettingMaxFutureMonths:           defaults.MaxFutureMonths,
		models.SettingCallsPerStudentPerDay:     defaults.CallsPerStudentPerDay,
		models.SettingMeetingsPerPair:           defaults.MeetingsPerPair,
		models.SettingInstantResponseTimeoutSec: defaults.InstantResponseTimeoutSeconds,
		models.SettingWarning1Minutes:           defaults.Warning1Minutes,
		models.SettingWarning2Minutes:           defaults.Warning2Minutes,
		models.SettingCancellationRateThreshold: defaults.CancellationRateThreshold,
		models.SettingMissedRateThreshold:       defaults.MissedRateThreshold,
		models.SettingMinReputationScore:        defaults.MinReputationScore,
	} {
		if _, ok := values[key]; ok {
			continue
		}
		if err := s.SettingsRepository.PutSetting(ctx, key, strconv.Itoa(value)); err != nil {
			return err
		}
	}
	return nil
}
