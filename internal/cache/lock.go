package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript 仅删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 基于 SETNX 的短期互斥锁
type Lock struct {
	key   string
	token string
}

// TryLock 尝试获取锁，缓存未启用时视为获取成功并返回 nil 锁
func TryLock(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	if !Enabled() {
		return nil, true, nil
	}
	token := uuid.NewString()
	fullKey := buildKey("lock:" + key)
	ok, err := redisClient.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Lock{key: fullKey, token: token}, true, nil
}

// Release 释放锁
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || !Enabled() {
		return nil
	}
	return unlockScript.Run(ctx, redisClient, []string{l.key}, l.token).Err()
}
