package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tma_demo_bot/internal/config"
	"tma_demo_bot/internal/logging"
	"tma_demo_bot/internal/store"
)

const (
	connectTimeout = 10 * time.Second
	indexTimeout   = 5 * time.Second
)

// openMongoManager is overridable for tests.
var openMongoManager = func(ctx context.Context, cfg config.Config) (*store.Manager, error) {
	return store.NewManager(ctx, cfg)
}

// CloseFunc releases the resources held by a store.
type CloseFunc func(ctx context.Context) error

// Open builds the store selected by cfg.SessionStore.
func Open(ctx context.Context, cfg config.Config, logger *logrus.Entry) (Store, CloseFunc, error) {
	if ctx == nil {
		return nil, nil, errors.New("context is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	switch cfg.SessionStore {
	case config.StoreMemory:
		logger.WithField("event", "session_store").Warn("using in-memory session store; sessions are lost on restart")
		return NewMemoryStore(), func(context.Context) error { return nil }, nil

	case config.StoreRedis:
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		redisStore, err := OpenRedisStore(connectCtx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis session store: %w", err)
		}

		logger.WithFields(logging.Fields{
			"event":      "session_store",
			"backend":    config.StoreRedis,
			"redis_addr": cfg.RedisAddr,
		}).Info("connected to redis")

		return redisStore, func(context.Context) error { return redisStore.Close() }, nil

	case config.StoreMongo, "":
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		manager, err := openMongoManager(connectCtx, cfg)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("open mongo session store: %w", err)
		}

		indexCtx, cancelIndexes := context.WithTimeout(ctx, indexTimeout)
		err = manager.EnsureBaseIndexes(indexCtx)
		cancelIndexes()
		if err != nil {
			_ = manager.Close(ctx)
			return nil, nil, fmt.Errorf("open mongo session store: %w", err)
		}

		logger.WithFields(logging.Fields{
			"event":    "session_store",
			"backend":  config.StoreMongo,
			"mongo_db": cfg.MongoDB,
		}).Info("connected to mongo and ensured indexes")

		return NewMongoStore(manager), manager.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported session store %q", cfg.SessionStore)
	}
}
