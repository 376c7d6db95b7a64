package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rewardtask-controlplane/pkg/rediskey"
)

// releaseScript deletes the lock only while it still holds our owner value.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Exclusive wraps job so that only the worker holding lock:{name} runs it. The
// lock expires after ttl in case the holder dies mid run.
func Exclusive(rdb Locker, name string, ttl time.Duration, job Job) Job {
	key := rediskey.BuildLockKey(name)
	owner, _ := os.Hostname()

	return func(ctx context.Context) error {
		ok, err := rdb.SetNX(ctx, key, owner, ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			zap.L().Info("[Scheduler] lock held by another worker, skipping", zap.String("job", name))
			return nil
		}
		defer func() {
			released, err := rdb.Eval(context.WithoutCancel(ctx), releaseScript, []string{key}, owner).Int64()
			if err != nil {
				zap.L().Warn("[Scheduler] failed to release lock", zap.String("job", name), zap.Error(err))
				return
			}
			if released == 0 {
				zap.L().Warn("[Scheduler] lock expired before the job finished", zap.String("job", name), zap.Duration("ttl", ttl))
			}
		}()

		return job(ctx)
	}
}
