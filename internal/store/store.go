// Package store owns the MongoDB connection backing the session store.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"tma_demo_bot/internal/config"
)

const (
	// CollectionSessions holds one document per Telegram user.
	CollectionSessions = "user_sessions"

	appName = "tma-demo-bot"
)

var errNotInitialized = errors.New("store manager is not initialized")

type mongoClient interface {
	Ping(context.Context, *readpref.ReadPref) error
	Database(string, ...*options.DatabaseOptions) *mongo.Database
	Disconnect(context.Context) error
}

var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (mongoClient, error) {
		return mongo.Connect(ctx, opts)
	}

	createIndexes = func(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) ([]string, error) {
		return coll.Indexes().CreateMany(ctx, models)
	}
)

// sessionIndexes backs upsert-by-user and the recency scans.
var sessionIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetName("user_id_unique").SetUnique(true),
	},
	{
		Keys:    bson.D{{Key: "updated_at", Value: -1}},
		Options: options.Index().SetName("updated_at_desc"),
	},
}

// Manager holds the Mongo client and the sessions database.
type Manager struct {
	client mongoClient
	db     *mongo.Database
}

// NewManager connects to cfg.MongoURI and pings the primary before returning.
func NewManager(ctx context.Context, cfg config.Config) (*Manager, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	client, err := connectMongo(ctx, clientOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Manager{client: client, db: client.Database(cfg.MongoDB)}, nil
}

// clientOptions bounds server selection by the external call timeout so an
// unreachable cluster fails a request instead of stalling it.
func clientOptions(cfg config.Config) *options.ClientOptions {
	opts := options.Client().ApplyURI(cfg.MongoURI).SetAppName(appName)
	if cfg.CallTimeout > 0 {
		opts.SetServerSelectionTimeout(cfg.CallTimeout)
	}
	return opts
}

// Sessions returns the user_sessions collection.
func (m *Manager) Sessions() *mongo.Collection {
	return m.db.Collection(CollectionSessions)
}

// Ping checks the primary is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.client == nil {
		return errNotInitialized
	}

	if err := m.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// EnsureBaseIndexes creates the session indexes. Creating an index that
// already exists with the same definition is a no-op.
func (m *Manager) EnsureBaseIndexes(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if m == nil || m.db == nil {
		return errNotInitialized
	}

	if _, err := createIndexes(ctx, m.Sessions(), sessionIndexes); err != nil {
		return fmt.Errorf("create %s indexes: %w", CollectionSessions, err)
	}
	return nil
}

// Close disconnects the client. A nil manager has nothing to close.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	return m.client.Disconnect(ctx)
}
