package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	delCommand = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`
)

var releaseScript = redis.NewScript(delCommand)

func NewRedisWorkflowLock(redisClient redis.Cmdable) WorkflowLock {
	return &redisWorkflowLock{redisClient: redisClient}
}

type redisWorkflowLock struct {
	redisClient redis.Cmdable
}

func (d *redisWorkflowLock) NonBlockingSynchronized(ctx context.Context, key string, maxLockTimeDuration time.Duration, f func(ctx2 context.Context) error) error {
	if lockHeld(ctx, key) {
		// 之前成功上锁了,继续执行即可
		return f(ctx)
	}
	owner := uuid.NewString()
	isLock, err := d.redisClient.SetNX(ctx, key, owner, maxLockTimeDuration).Result()
	if err != nil {
		return errors.WithMessagef(ErrLockFailed, "[redisWorkflowLock.NonBlockingSynchronized], err:%v", err)
	}
	if !isLock {
		return errors.WithMessagef(ErrLockFailed, "[redisWorkflowLock.NonBlockingSynchronized] %s has been locked", key)
	}

	defer d.releaseKey(key, owner)
	return f(context.WithValue(ctx, lockKey(key), owner))
}

func (d *redisWorkflowLock) releaseKey(key string, owner string) {
	// 释放锁, 因为context 可能会被cancel，确保释放锁需要新开一个context,不能用原来的
	reply, err := releaseScript.Run(context.Background(), d.redisClient, []string{key}, owner).Int64()
	if err != nil {
		slog.Error("[redisWorkflowLock.releaseKey] release key failed", "key", key, "err", err)
		return
	}
	if reply != 1 {
		// 锁已经过期, 或者被别人持有
		slog.Warn("[redisWorkflowLock.releaseKey] key not released", "key", key, "reply", reply)
	}
}
