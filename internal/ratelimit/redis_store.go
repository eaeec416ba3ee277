package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-churiwal/loadmon/internal/storage"
	"github.com/redis/go-redis/v9"
)

// All quota records live in one hash so that a sweep is a single DEL.
// Fields are "<address>|count", "<address>|start" and "<address>|last".
const quotaHashKey = "ratelimit:quota:records"

// Millisecond timestamps are passed and stored as strings; only the counter
// and the window comparison are done in Lua numbers.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local countField = ARGV[1] .. "|count"
local startField = ARGV[1] .. "|start"
local lastField = ARGV[1] .. "|last"
local now = ARGV[2]
local limit = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local resetExpired = ARGV[5] == "1"

local count = redis.call("HGET", key, countField)
if not count then
	redis.call("HSET", key, countField, "1", startField, now, lastField, now)
	return {1, 1, now}
end

count = tonumber(count)
local start = redis.call("HGET", key, startField)
local expired = (tonumber(now) - tonumber(start)) >= window

if expired and resetExpired then
	redis.call("HSET", key, countField, "1", startField, now, lastField, now)
	return {1, 1, now}
end

if not expired and count >= limit then
	return {0, count, start}
end

count = count + 1
redis.call("HSET", key, countField, tostring(count), lastField, now)
return {1, count, start}
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
local countField = ARGV[1] .. "|count"

local count = redis.call("HGET", key, countField)
if not count then
	return 0
end

count = tonumber(count) - 1
if count <= 0 then
	redis.call("HDEL", key, countField, ARGV[1] .. "|start", ARGV[1] .. "|last")
	return 0
end

redis.call("HSET", key, countField, tostring(count))
return count
`)

var sweepScript = redis.NewScript(`
local n = redis.call("HLEN", KEYS[1])
redis.call("DEL", KEYS[1])
return math.floor(n / 3)
`)

type RedisStore struct {
	redis *storage.RedisClient
	key   string
}

func NewRedisStore(redis *storage.RedisClient) *RedisStore {
	return &RedisStore{redis: redis, key: quotaHashKey}
}

func (s *RedisStore) Get(ctx context.Context, address string) (*Record, error) {
	vals, err := s.redis.HMGet(ctx, s.key, address+"|count", address+"|start", address+"|last")
	if err != nil {
		return nil, err
	}

	if len(vals) != 3 || vals[0] == nil {
		return nil, nil
	}

	count, err := toInt64(vals[0])
	if err != nil {
		return nil, err
	}
	start, err := toInt64(vals[1])
	if err != nil {
		return nil, err
	}
	last, err := toInt64(vals[2])
	if err != nil {
		return nil, err
	}

	return &Record{
		Address:      address,
		RequestCount: int(count),
		WindowStart:  time.UnixMilli(start).UTC(),
		LastRequest:  time.UnixMilli(last).UTC(),
	}, nil
}

func (s *RedisStore) Admit(ctx context.Context, address string, now time.Time, policy Policy) (Decision, error) {
	reset := "0"
	if policy.ResetExpired {
		reset = "1"
	}

	res, err := s.redis.RunScript(ctx, admitScript, []string{s.key},
		address,
		strconv.FormatInt(now.UnixMilli(), 10),
		policy.Limit,
		policy.Window.Milliseconds(),
		reset,
	)
	if err != nil {
		return Decision{}, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("unexpected admit reply: %v", res)
	}

	allowed, err := toInt64(vals[0])
	if err != nil {
		return Decision{}, err
	}
	count, err := toInt64(vals[1])
	if err != nil {
		return Decision{}, err
	}
	start, err := toInt64(vals[2])
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:     allowed == 1,
		Count:       int(count),
		WindowStart: time.UnixMilli(start).UTC(),
	}, nil
}

func (s *RedisStore) Release(ctx context.Context, address string) error {
	_, err := s.redis.RunScript(ctx, releaseScript, []string{s.key}, address)
	return err
}

func (s *RedisStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.redis.RunScript(ctx, sweepScript, []string{s.key})
	if err != nil {
		return 0, err
	}

	return toInt64(res)
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis value %T", v)
	}
}
