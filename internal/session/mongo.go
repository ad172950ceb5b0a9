package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tma_demo_bot/internal/domain"
	"tma_demo_bot/internal/store"
)

type sessionCollection interface {
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// MongoStore persists sessions in the user_sessions collection.
type MongoStore struct {
	sessions sessionCollection
	stats    *store.StatsProvider
	pinger   pinger
	now      func() time.Time
}

// NewMongoStore builds a MongoStore on top of an initialized store.Manager.
func NewMongoStore(manager *store.Manager) *MongoStore {
	return newMongoStore(manager.Sessions(), manager)
}

func newMongoStore(sessions sessionCollection, p pinger) *MongoStore {
	return &MongoStore{
		sessions: sessions,
		stats:    store.NewStatsProvider(sessions),
		pinger:   p,
		now:      nowUTC,
	}
}

// Upsert writes the profile keyed on user_id. created_at is only set when the
// document is inserted.
func (s *MongoStore) Upsert(ctx context.Context, profile domain.UserProfile) error {
	if err := checkCall(ctx, s != nil && s.sessions != nil, "mongo"); err != nil {
		return err
	}
	if err := validateProfile(profile); err != nil {
		return err
	}

	profile = stamp(profile, s.now)
	update := bson.M{
		"$set": bson.M{
			"chat_id":    profile.ChatID,
			"username":   profile.Username,
			"first_name": profile.FirstName,
			"last_name":  profile.LastName,
			"updated_at": profile.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"user_id":    profile.UserID,
			"created_at": profile.UpdatedAt,
		},
	}

	if _, err := s.sessions.UpdateOne(ctx,
		bson.M{"user_id": profile.UserID},
		update,
		options.Update().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// Get fetches the session for userID.
func (s *MongoStore) Get(ctx context.Context, userID int64) (domain.UserProfile, bool, error) {
	if err := checkCall(ctx, s != nil && s.sessions != nil, "mongo"); err != nil {
		return domain.UserProfile{}, false, err
	}

	result := s.sessions.FindOne(ctx, bson.M{"user_id": userID})
	if result == nil {
		return domain.UserProfile{}, false, errors.New("find session returned no result")
	}
	if err := result.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, fmt.Errorf("find session: %w", err)
	}

	var profile domain.UserProfile
	if err := result.Decode(&profile); err != nil {
		return domain.UserProfile{}, false, fmt.Errorf("decode session: %w", err)
	}

	return profile, true, nil
}

// Recent lists sessions by updated_at descending.
func (s *MongoStore) Recent(ctx context.Context, limit int) ([]domain.UserProfile, error) {
	if err := checkCall(ctx, s != nil && s.sessions != nil, "mongo"); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.sessions.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var profiles []domain.UserProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	return profiles, nil
}

// Count returns the number of stored sessions.
func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errors.New("mongo session store is not initialized")
	}
	return s.stats.CountSessions(ctx)
}

// CountActiveSince returns the number of sessions updated at or after since.
func (s *MongoStore) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	if s == nil {
		return 0, errors.New("mongo session store is not initialized")
	}
	return s.stats.CountSessionsSince(ctx, since)
}

// Ping checks MongoDB connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := checkCall(ctx, s != nil && s.pinger != nil, "mongo"); err != nil {
		return err
	}
	return s.pinger.Ping(ctx)
}
