package redisStore

import (
	"context"
	"sync"
	"time"

	"github.com/akolanti/ProposalAPI/pkg/logger_i"
	"github.com/redis/go-redis/v9"
)

var (
	instances = make(map[int]*Store)
	mu        sync.RWMutex
	logger    = logger_i.NewLogger("Redis Store")
	once      sync.Once
)

type Store struct {
	client *redis.Client
	Type   int
}

type Options struct {
	Addr     string
	Password string
	DB       int
}

// GetRedisStore returns the shared client for opts.DB, connecting on first use.
// nil means redis is unreachable.
func GetRedisStore(ctx context.Context, opts Options) *Store {
	mu.RLock()
	instance, exists := instances[opts.DB]
	mu.RUnlock()

	if exists {
		return instance
	}

	mu.Lock()
	defer mu.Unlock()

	if instance, exists = instances[opts.DB]; exists {
		return instance
	}
	return createNewStore(ctx, opts)
}

func closeRedisStores(ctx context.Context) {
	<-ctx.Done()
	logger.Info("Closing Redis Stores")
	mu.Lock()
	defer mu.Unlock()
	for db, store := range instances {
		if err := store.client.Close(); err != nil {
			logger.Error("Error closing redis client", "error", err)
		}
		delete(instances, db)
	}
	logger.Info("Redis Store Closed successfully")
}

func createNewStore(ctx context.Context, opts Options) *Store {
	newClient := redis.NewClient(&redis.Options{
		Addr:                  opts.Addr,
		Password:              opts.Password,
		DB:                    opts.DB,
		ContextTimeoutEnabled: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := newClient.Ping(pingCtx).Err(); err != nil {
		logger.Error("Redis is offline", "addr", opts.Addr, "error", err.Error())
		_ = newClient.Close()
		return nil
	}

	logger.Info("Redis client init successfully", "addr", opts.Addr, "db", opts.DB)

	newStore := &Store{
		client: newClient,
		Type:   opts.DB,
	}

	instances[opts.DB] = newStore
	once.Do(func() {
		go closeRedisStores(ctx)
	})
	return newStore
}

// NewTestStore wraps an already connected client, used with miniredis in tests.
func NewTestStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}
