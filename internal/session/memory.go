package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"tma_demo_bot/internal/domain"
)

// MemoryStore keeps sessions in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[int64]domain.UserProfile
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[int64]domain.UserProfile),
		now:      nowUTC,
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, profile domain.UserProfile) error {
	if err := checkCall(ctx, s != nil && s.profiles != nil, "memory"); err != nil {
		return err
	}
	if err := validateProfile(profile); err != nil {
		return err
	}

	profile = stamp(profile, s.now)

	s.mu.Lock()
	s.profiles[profile.UserID] = profile
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	if err := checkCall(ctx, s != nil && s.profiles != nil, "memory"); err != nil {
		return domain.UserProfile{}, false, err
	}

	s.mu.RLock()
	profile, ok := s.profiles[userID]
	s.mu.RUnlock()

	return profile, ok, nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]domain.UserProfile, error) {
	if err := checkCall(ctx, s != nil && s.profiles != nil, "memory"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	profiles := make([]domain.UserProfile, 0, len(s.profiles))
	for _, profile := range s.profiles {
		profiles = append(profiles, profile)
	}
	s.mu.RUnlock()

	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].UpdatedAt.Equal(profiles[j].UpdatedAt) {
			return profiles[i].UserID < profiles[j].UserID
		}
		return profiles[i].UpdatedAt.After(profiles[j].UpdatedAt)
	})

	if limit > 0 && len(profiles) > limit {
		profiles = profiles[:limit]
	}

	return profiles, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	if err := checkCall(ctx, s != nil && s.profiles != nil, "memory"); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.profiles)), nil
}

func (s *MemoryStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	if err := checkCall(ctx, s != nil && s.profiles != nil, "memory"); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, profile := range s.profiles {
		if !profile.UpdatedAt.Before(since) {
			count++
		}
	}

	return count, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return checkCall(ctx, s != nil && s.profiles != nil, "memory")
}
