package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SweepLock 保证同一时刻只有一个副本执行逾期扫描
type SweepLock interface {
	// TryAcquire 返回 release；ok=false 表示已被其他实例持有
	TryAcquire(ctx context.Context, ttl time.Duration) (release func(), ok bool, err error)
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisSweepLock SET NX PX 实现的分布式锁
type RedisSweepLock struct {
	rdb *redis.Client
	key string
}

func NewRedisSweepLock(rdb *redis.Client, key string) *RedisSweepLock {
	if key == "" {
		key = "qualify:overdue-sweep"
	}
	return &RedisSweepLock{rdb: rdb, key: key}
}

func (l *RedisSweepLock) TryAcquire(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	token := newToken()
	ok, err := l.rdb.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err()
	}
	return release, true, nil
}

// LocalSweepLock 单实例部署（未启用 redis）
type LocalSweepLock struct {
	mu sync.Mutex
}

func (l *LocalSweepLock) TryAcquire(_ context.Context, _ time.Duration) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return l.mu.Unlock, true, nil
}

func newToken() string { return uuid.New().String() }
