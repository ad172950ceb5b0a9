package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider counts session documents for the admin panel, health and metrics.
type StatsProvider struct {
	sessions countCollection
}

// NewStatsProvider counts documents in sessions.
func NewStatsProvider(sessions countCollection) *StatsProvider {
	return &StatsProvider{sessions: sessions}
}

// CountSessions returns the number of stored sessions.
func (p *StatsProvider) CountSessions(ctx context.Context) (int64, error) {
	return p.count(ctx, "sessions", bson.D{})
}

// CountSessionsSince returns the number of sessions refreshed at or after since.
// The filter is served by the updated_at_desc index.
func (p *StatsProvider) CountSessionsSince(ctx context.Context, since time.Time) (int64, error) {
	return p.count(ctx, "active sessions", bson.M{"updated_at": bson.M{"$gte": since.UTC()}})
}

func (p *StatsProvider) count(ctx context.Context, what string, filter interface{}) (int64, error) {
	switch {
	case ctx == nil:
		return 0, errors.New("context is required")
	case p == nil || p.sessions == nil:
		return 0, errors.New("stats provider is not initialized")
	}

	n, err := p.sessions.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", what, err)
	}
	return n, nil
}
