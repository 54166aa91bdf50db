package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/estrella/internal/models"
	"github.com/estrella/internal/types"
	"github.com/redis/go-redis/v9"
)

// Hash fields of a quota key
const (
	quotaFieldSent  = "sent"
	quotaFieldBonus = "bonus"
)

// incrementSentScript checks and increments in one step so concurrent sends cannot
// overshoot base + bonus.
var incrementSentScript = redis.NewScript(`
	local sent = tonumber(redis.call('HGET', KEYS[1], 'sent') or '0')
	local bonus = tonumber(redis.call('HGET', KEYS[1], 'bonus') or '0')
	local base = tonumber(ARGV[1])

	if sent >= base + bonus then
		return {0, sent, bonus}
	end

	sent = redis.call('HINCRBY', KEYS[1], 'sent', 1)
	return {1, sent, bonus}
`)

var decrementSentScript = redis.NewScript(`
	local sent = tonumber(redis.call('HGET', KEYS[1], 'sent') or '0')
	if sent > 0 then
		return redis.call('HINCRBY', KEYS[1], 'sent', -1)
	end
	return sent
`)

var addBonusScript = redis.NewScript(`
	local bonus = redis.call('HINCRBY', KEYS[1], 'bonus', tonumber(ARGV[1]))
	local sent = tonumber(redis.call('HGET', KEYS[1], 'sent') or '0')
	return {sent, bonus}
`)

// RedisQuotaStore keeps the per-(user, day) counters in Redis hashes. Keys carry no TTL,
// so past days remain readable as history.
type RedisQuotaStore struct {
	client redis.Cmdable
}

// NewRedisQuotaStore creates a quota store over any Redis client
func NewRedisQuotaStore(client redis.Cmdable) *RedisQuotaStore {
	return &RedisQuotaStore{client: client}
}

// quotaKey builds the hash key; the hash tag keeps a user's days on one cluster slot
func quotaKey(userID string, day types.Day) string {
	return fmt.Sprintf("quota:{%s}:%s", userID, day)
}

// Get returns the counters for (userID, day). A missing key reads as zero.
func (s *RedisQuotaStore) Get(ctx context.Context, userID string, day types.Day) (models.DailyQuota, error) {
	quota := models.DailyQuota{UserID: userID, Day: day}

	values, err := s.client.HMGet(ctx, quotaKey(userID, day), quotaFieldSent, quotaFieldBonus).Result()
	if err != nil {
		return quota, storeError("get daily quota", err)
	}

	if quota.MessagesSent, err = hashInt(values[0]); err != nil {
		return quota, storeError("get daily quota", err)
	}
	if quota.BonusMessages, err = hashInt(values[1]); err != nil {
		return quota, storeError("get daily quota", err)
	}

	return quota, nil
}

// IncrementSent adds one to sent only while sent < baseAllowance + bonus
func (s *RedisQuotaStore) IncrementSent(ctx context.Context, userID string, day types.Day, baseAllowance int) (models.DailyQuota, bool, error) {
	quota := models.DailyQuota{UserID: userID, Day: day}

	result, err := incrementSentScript.Run(ctx, s.client, []string{quotaKey(userID, day)}, baseAllowance).Int64Slice()
	if err != nil {
		return quota, false, storeError("record send", err)
	}

	quota.MessagesSent = int(result[1])
	quota.BonusMessages = int(result[2])
	return quota, result[0] == 1, nil
}

// DecrementSent gives back one send slot, never going below zero
func (s *RedisQuotaStore) DecrementSent(ctx context.Context, userID string, day types.Day) error {
	if err := decrementSentScript.Run(ctx, s.client, []string{quotaKey(userID, day)}).Err(); err != nil {
		return storeError("release send", err)
	}
	return nil
}

// AddBonus adds amount to the day's bonus
func (s *RedisQuotaStore) AddBonus(ctx context.Context, userID string, day types.Day, amount int) (models.DailyQuota, error) {
	quota := models.DailyQuota{UserID: userID, Day: day}

	result, err := addBonusScript.Run(ctx, s.client, []string{quotaKey(userID, day)}, amount).Int64Slice()
	if err != nil {
		return quota, storeError("grant bonus", err)
	}

	quota.MessagesSent = int(result[0])
	quota.BonusMessages = int(result[1])
	return quota, nil
}

func hashInt(v interface{}) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("malformed counter %q: %w", val, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected counter type %T", v)
	}
}
