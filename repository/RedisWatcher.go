package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"coopStore/events"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWatcher listens to the announcements RedisCartRepo publishes and forwards the
// ones stamped with a foreign origin.
type RedisWatcher struct {
	rdb      *redis.Client
	channel  string
	origin   string
	notifier events.Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	pubsub  *redis.PubSub
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewRedisWatcher(redis_conn *redis.Client, opts RedisCartOptions, notifier events.Notifier, logger *zap.Logger) (*RedisWatcher, error) {
	if redis_conn == nil {
		return nil, errors.New("conn must be non-nil")
	}
	if opts.Channel == "" {
		return nil, errors.New("channel must be non-empty")
	}
	return &RedisWatcher{
		rdb:      redis_conn,
		channel:  opts.Channel,
		origin:   opts.Origin,
		notifier: notifier,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start returns once the subscription is confirmed by the server.
func (rw *RedisWatcher) Start(ctx context.Context) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.running {
		return nil
	}
	ps := rw.rdb.Subscribe(ctx, rw.channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return err
	}
	rw.pubsub = ps
	rw.running = true
	go rw.run(ctx, ps.Channel())
	return nil
}

func (rw *RedisWatcher) Stop() {
	rw.mu.Lock()
	if !rw.running {
		rw.mu.Unlock()
		return
	}
	rw.running = false
	rw.mu.Unlock()

	close(rw.stopCh)
	<-rw.doneCh
	if err := rw.pubsub.Close(); err != nil {
		rw.logger.Error("RedisWatcher: close failed", zap.Error(err))
	}
}

func (rw *RedisWatcher) run(ctx context.Context, ch <-chan *redis.Message) {
	defer close(rw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.stopCh:
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			rw.handleMessage(m)
		}
	}
}

func (rw *RedisWatcher) handleMessage(m *redis.Message) {
	var msg storageMessage
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		rw.logger.Warn("RedisWatcher: bad announcement", zap.Error(err))
		return
	}
	if msg.Origin == rw.origin {
		return
	}
	rw.notifier.Notify(events.Event{
		Name:     events.StorageEvent,
		Channel:  events.External,
		Key:      msg.Key,
		NewValue: msg.Value,
		Origin:   msg.Origin,
		At:       time.Now().UTC(),
	})
}
