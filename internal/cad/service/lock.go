package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DesignLocker 串行化同一设计的修订号分配；不同设计互不阻塞
type DesignLocker interface {
	Lock(ctx context.Context, designID string) (unlock func(), err error)
}

// LocalLocker 进程内按设计ID加锁
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*designLock
}

type designLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*designLock)}
}

// Lock 阻塞直到获得锁或 ctx 结束
func (l *LocalLocker) Lock(ctx context.Context, designID string) (func(), error) {
	l.mu.Lock()
	dl, ok := l.locks[designID]
	if !ok {
		dl = &designLock{ch: make(chan struct{}, 1)}
		l.locks[designID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	select {
	case dl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(designID, dl)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-dl.ch
			l.release(designID, dl)
		})
	}, nil
}

func (l *LocalLocker) release(designID string, dl *designLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	dl.refs--
	if dl.refs == 0 {
		delete(l.locks, designID)
	}
}

// RedisLocker 基于 SET NX PX 的分布式设计锁，多进程共享同一数据库时使用
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

var redisUnlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockNotAcquired 未能在 ctx 结束前拿到锁
var ErrLockNotAcquired = errors.New("design lock not acquired")

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 50 * time.Millisecond, prefix: "paramcad:design-lock:"}
}

// Lock 轮询获取锁；锁在 ttl 后自动过期，防止进程崩溃后死锁
func (l *RedisLocker) Lock(ctx context.Context, designID string) (func(), error) {
	key := l.prefix + designID
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", designID, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, designID, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 使用独立 ctx：调用方 ctx 可能已取消
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			redisUnlockScript.Run(ctx, l.client, []string{key}, token)
		})
	}, nil
}
