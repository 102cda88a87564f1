package repository

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// LockRepository 基于 Redis 的文件级互斥锁，保证同名文件同一时刻只在一条管道里处理。
type LockRepository interface {
	// Acquire 成功返回 true；锁被占用返回 false。
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	// Release 只释放自己持有的锁。
	Release(ctx context.Context, name, owner string) error
}

type redisLockRepository struct {
	redisClient *redis.Client
}

// NewLockRepository 创建一个新的 LockRepository 实例。
func NewLockRepository(redisClient *redis.Client) LockRepository {
	return &redisLockRepository{redisClient: redisClient}
}

// releaseScript 比较持有者后删除，避免误删他人在 TTL 过期后重新获得的锁。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (r *redisLockRepository) lockKey(name string) string {
	return "pipeline:lock:" + name
}

func (r *redisLockRepository) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return r.redisClient.SetNX(ctx, r.lockKey(name), owner, ttl).Result()
}

func (r *redisLockRepository) Release(ctx context.Context, name, owner string) error {
	return releaseScript.Run(ctx, r.redisClient, []string{r.lockKey(name)}, owner).Err()
}
