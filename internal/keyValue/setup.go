package keyValue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Value struct {
	value   string
	expires time.Time
}

var mutex sync.RWMutex
var hashmap = make(map[string]Value)

var sugar = zap.NewNop().Sugar()
var redisClient *redis.Client
var selfContained = true

// Setup picks the backend: an in-process map when self-contained, redis
// otherwise. In self-contained mode a Janitor has to run to drop expired keys.
func Setup(_sugar *zap.SugaredLogger, _redisClient *redis.Client, _selfContained bool) {
	sugar = _sugar
	redisClient = _redisClient
	selfContained = _selfContained
}

// Janitor periodically deletes expired keys of the in-process map.
type Janitor struct {
	Interval time.Duration
}

func (j Janitor) Serve(ctx context.Context) error {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if removed := sweep(now); removed > 0 {
				sugar.Debugf("Removed %d expired keys", removed)
			}
		}
	}
}

func (j Janitor) String() string {
	return "keyValue-janitor"
}

func sweep(now time.Time) int {
	mutex.Lock()
	defer mutex.Unlock()

	removed := 0
	for key, v := range hashmap {
		if v.expires.Before(now) {
			delete(hashmap, key)
			removed++
		}
	}
	return removed
}

// Get returns "" for keys that don't exist or expired.
func Get(ctx context.Context, key string) (string, error) {
	if selfContained {
		sugar.Debugf("Getting value of key [%s] from hashmap", key)

		mutex.RLock()
		defer mutex.RUnlock()

		v, exists := hashmap[key]
		if !exists || v.expires.Before(time.Now()) {
			return "", nil
		}
		return v.value, nil
	}

	sugar.Debugf("Getting value of key [%s] from redis", key)

	value, err := redisClient.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	} else if err != nil {
		return "", err
	}

	return value, nil
}

func Set(ctx context.Context, key string, value string, expires time.Duration) error {
	if selfContained {
		sugar.Debugf("Setting value of key [%s] to [%s] in hashmap", key, value)

		mutex.Lock()
		defer mutex.Unlock()

		hashmap[key] = Value{value, time.Now().Add(expires)}
		return nil
	}

	sugar.Debugf("Setting value of key [%s] to [%s] in redis", key, value)
	return redisClient.Set(ctx, key, value, expires).Err()
}

func Del(ctx context.Context, key string) error {
	if selfContained {
		mutex.Lock()
		defer mutex.Unlock()

		delete(hashmap, key)
		return nil
	}

	return redisClient.Del(ctx, key).Err()
}
