package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"coopStore/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CartRepository is the key-value store a cart snapshot lives in. Values are opaque
// strings; the last SetCart on a key wins.
type CartRepository interface {
	GetCart(key string) (raw string, exists bool, err error)
	SetCart(key string, raw string) (err error)
}

type MemoryCartRepo struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryCartRepository() *MemoryCartRepo {
	return &MemoryCartRepo{
		data: make(map[string]string),
	}
}

func (m *MemoryCartRepo) GetCart(key string) (raw string, exists bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, exists = m.data[key]
	return
}

func (m *MemoryCartRepo) SetCart(key string, raw string) (err error) {
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return
}

type RedisCartOptions struct {
	TTL     time.Duration
	Channel string // pub/sub channel announcing writes, empty disables it
	Origin  string // id of this process, stamped on announcements
}

type RedisCartRepo struct {
	rdb    *redis.Client
	ctx    context.Context
	opts   RedisCartOptions
	logger *zap.Logger
}

// storageMessage is published on the storage channel after every write.
type storageMessage struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Origin string `json:"origin"`
}

func NewRedisCartRepository(redis_conn *redis.Client, _ctx context.Context, opts RedisCartOptions, logger *zap.Logger) (CartRepository, error) {
	if redis_conn == nil {
		return nil, errors.New("conn must be non-nil")
	}
	err := redis_conn.Ping(_ctx).Err()
	if err != nil {
		return nil, err
	}
	return &RedisCartRepo{
		rdb:    redis_conn,
		ctx:    _ctx,
		opts:   opts,
		logger: logger,
	}, nil
}

func (c *RedisCartRepo) SetCart(key string, raw string) (err error) {
	err = c.rdb.Set(c.ctx, key, raw, c.opts.TTL).Err()
	if err != nil {
		c.logger.Error("SetCart: redis set failed", zap.String("key", key), zap.Error(err))
		err = models.ErrPersistenceUnavailable
		return
	}
	if c.opts.Channel == "" {
		return
	}
	msg, e := json.Marshal(storageMessage{Key: key, Value: raw, Origin: c.opts.Origin})
	if e != nil {
		c.logger.Warn("SetCart: announcement marshal failed", zap.Error(e))
		return
	}
	// the write already happened; a lost announcement only delays other instances
	if e = c.rdb.Publish(c.ctx, c.opts.Channel, msg).Err(); e != nil {
		c.logger.Warn("SetCart: publish failed", zap.String("channel", c.opts.Channel), zap.Error(e))
	}
	return
}

func (c *RedisCartRepo) GetCart(key string) (raw string, exists bool, err error) {
	val, e := c.rdb.Get(c.ctx, key).Result()
	if e != nil {
		if errors.Is(e, redis.Nil) {
			return
		}
		c.logger.Error("GetCart: redis get failed", zap.String("key", key), zap.Error(e))
		err = models.ErrPersistenceUnavailable
		return
	}
	raw, exists = val, true
	return
}
