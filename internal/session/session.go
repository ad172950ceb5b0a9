// Package session keeps one UserProfile per Telegram user behind a store
// interface shared by the MongoDB, Redis and in-memory backends.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tma_demo_bot/internal/domain"
)

// Store is the session store contract used by the dispatcher and metrics
// gateway. Upsert is last-write-wins keyed on UserID. Get reports absence with
// found=false instead of an error.
type Store interface {
	Upsert(ctx context.Context, profile domain.UserProfile) error
	Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error)
	// Recent returns profiles ordered by UpdatedAt descending. A limit of zero
	// or less returns every profile.
	Recent(ctx context.Context, limit int) ([]domain.UserProfile, error)
	Count(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
	Ping(ctx context.Context) error
}

// nowUTC is the default clock for stores; timestamps are kept at millisecond
// precision so they survive a BSON round trip unchanged.
func nowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func validateProfile(profile domain.UserProfile) error {
	if profile.UserID == 0 {
		return errors.New("user id is required")
	}
	if profile.ChatID == 0 {
		return errors.New("chat id is required")
	}
	return nil
}

func stamp(profile domain.UserProfile, now func() time.Time) domain.UserProfile {
	if profile.UpdatedAt.IsZero() {
		profile.UpdatedAt = now()
	} else {
		profile.UpdatedAt = profile.UpdatedAt.UTC().Truncate(time.Millisecond)
	}
	return profile
}

func checkCall(ctx context.Context, initialized bool, name string) error {
	if !initialized {
		return fmt.Errorf("%s session store is not initialized", name)
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}
