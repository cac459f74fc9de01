package planner

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// advanceScript mirrors canTransition. A missing field counts as pending.
// KEYS[1]=plan key, ARGV = step, to, ttl in ms (0 keeps the key forever).
var advanceScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then cur = 'pending' end
local to = ARGV[2]
local ok = false
if cur == 'pending' then
  ok = (to == 'running' or to == 'done' or to == 'error')
elseif cur == 'running' then
  ok = (to == 'done' or to == 'error')
elseif cur == 'error' then
  ok = (to == 'done')
end
if not ok then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], to)
local ttl = tonumber(ARGV[3])
if ttl > 0 then redis.call('PEXPIRE', KEYS[1], ttl) end
return 1
`)

// RedisPersister keeps one hash per email: plan:<emailID> {stepID: status}.
type RedisPersister struct {
	rdb redis.Cmdable
	ttl time.Duration
}

var _ Persister = (*RedisPersister)(nil)

// NewRedisPersister creates a persister; ttl <= 0 keeps plans forever.
func NewRedisPersister(rdb redis.Cmdable, ttl time.Duration) *RedisPersister {
	return &RedisPersister{rdb: rdb, ttl: ttl}
}

func planKey(emailID string) string {
	return "plan:" + emailID
}

func (r *RedisPersister) Load(ctx context.Context, emailID string) (map[StepID]Status, bool, error) {
	fields, err := r.rdb.HGetAll(ctx, planKey(emailID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(fields) == 0 {
		return nil, false, nil
	}
	out := make(map[StepID]Status, len(fields))
	for k, v := range fields {
		out[StepID(k)] = Status(v)
	}
	return out, true, nil
}

func (r *RedisPersister) Advance(ctx context.Context, emailID string, step StepID, to Status) (bool, error) {
	var ttlMS int64
	if r.ttl > 0 {
		ttlMS = r.ttl.Milliseconds()
	}
	n, err := advanceScript.Run(ctx, r.rdb, []string{planKey(emailID)}, string(step), string(to), ttlMS).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
