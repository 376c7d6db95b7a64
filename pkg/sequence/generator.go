package sequence

//go:generate mockgen -source=generator.go -destination=mock/generator.go -package=mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"rewardtask-controlplane/pkg/rediskey"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

const (
	PrefixOrder = "ORD"
	PrefixSpin  = "SPN"
)

type Generator interface {
	NextOrderCode(ctx context.Context) (string, error)
	NextSpinCode(ctx context.Context) (string, error)
}

type RedisGenerator struct {
	rdb redis.Cmdable
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
	}
}

func (g *RedisGenerator) NextOrderCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixOrder)
}

func (g *RedisGenerator) NextSpinCode(ctx context.Context) (string, error) {
	return g.nextDailyCode(ctx, PrefixSpin)
}

func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string) (string, error) {
	now := time.Now().UTC()
	today := now.Format("060102")
	key := rediskey.BuildDailySequenceKey(prefix, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		expire := time.Until(now.Truncate(24 * time.Hour).Add(24*time.Hour - time.Second))
		_ = g.rdb.Expire(ctx, key, expire).Err()
	}

	suffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return FormatCode(prefix, today, seq, suffix), nil
}

// FormatCode renders "{prefix}-{yymmdd}-{seq base36, min 3}{suffix}".
func FormatCode(prefix, day string, seq int64, suffix string) string {
	encoded := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encoded) < 3 {
		encoded = strings.Repeat("0", 3-len(encoded)) + encoded
	}
	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encoded, suffix)
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}
