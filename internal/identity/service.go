// Package identity is the profile collaborator of the queue: who a holder
// is and whether they are staff.
package identity

import (
	"context"
	"errors"
	"fmt"

	"ms-clinic-queue/internal/logger"
	"ms-clinic-queue/internal/models"
)

type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) error
	SearchProfiles(ctx context.Context, query string, limit int) ([]models.Profile, error)
}

type Service struct {
	Store  ProfileStore
	Cache  *RedisCache
	Logger *logger.Logger
}

func NewService(store ProfileStore, cache *RedisCache, log *logger.Logger) *Service {
	return &Service{Store: store, Cache: cache, Logger: log}
}

// GetProfile reads through the cache. Cache failures degrade to the store.
func (s *Service) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	if s.Cache != nil {
		cached, err := s.Cache.Get(ctx, id)
		if err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Profile cache read failed for %s: %v", id, err))
		} else if cached != nil {
			return cached, nil
		}
	}

	profile, err := s.Store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, profile); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Profile cache write failed for %s: %v", id, err))
		}
	}
	return profile, nil
}

// IsStaff reports false for unknown identities.
func (s *Service) IsStaff(ctx context.Context, id string) (bool, error) {
	profile, err := s.GetProfile(ctx, id)
	if errors.Is(err, models.ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.IsAdmin, nil
}

func (s *Service) SaveProfile(ctx context.Context, profile models.Profile) (*models.Profile, error) {
	if err := s.Store.UpsertProfile(ctx, profile); err != nil {
		return nil, err
	}
	if s.Cache != nil {
		if err := s.Cache.Invalidate(ctx, profile.ID); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Profile cache invalidate failed for %s: %v", profile.ID, err))
		}
	}
	s.Logger.Info("AUTH", fmt.Sprintf("Profile %s saved", profile.ID))
	return s.Store.GetProfile(ctx, profile.ID)
}

func (s *Service) SearchProfiles(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	return s.Store.SearchProfiles(ctx, query, limit)
}
