package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/bazaar-backend/pkg/config"
)

// fakeRedis evaluates the two client scripts natively, keyed by their SHA.
type fakeRedis struct {
	values    map[string]string
	counters  map[string]int64
	expiresMS map[string]int64
	evals     int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:    map[string]string{},
		counters:  map[string]int64{},
		expiresMS: map[string]int64{},
	}
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.values[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f.values[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.values[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			n++
		}
		delete(f.values, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	f.evals++
	cmd := redis.NewCmd(ctx)
	switch sha {
	case windowScript.Hash():
		key := keys[0]
		f.counters[key]++
		if f.counters[key] == 1 {
			f.expiresMS[key] = args[0].(int64)
		}
		cmd.SetVal([]any{f.counters[key], f.expiresMS[key]})
	case releaseScript.Hash():
		if f.values[keys[0]] == args[0] {
			delete(f.values, keys[0])
			cmd.SetVal(int64(1))
		} else {
			cmd.SetVal(int64(0))
		}
	default:
		cmd.SetErr(fmt.Errorf("NOSCRIPT unknown sha %s", sha))
	}
	return cmd
}

func (f *fakeRedis) Eval(ctx context.Context, _ string, _ []string, _ ...any) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	cmd.SetErr(fmt.Errorf("eval not expected"))
	return cmd
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult(redis.NewScript(script).Hash(), nil)
}

func TestHitCountsWithinOneWindow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{cmds: fake}

	first, err := client.Hit(ctx, "login:ip:10.0.0.1", 2, 90*time.Second)
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.EqualValues(t, 1, first.Count)
	assert.Equal(t, 90*time.Second, first.ResetIn)

	second, err := client.Hit(ctx, "login:ip:10.0.0.1", 2, 90*time.Second)
	require.NoError(t, err)
	assert.True(t, second.Allowed)
	assert.EqualValues(t, 2, second.Count)

	third, err := client.Hit(ctx, "login:ip:10.0.0.1", 2, 90*time.Second)
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.EqualValues(t, 3, third.Count)

	assert.EqualValues(t, 3, fake.counters["bz:rate_limit:login:ip:10.0.0.1"])
	assert.Equal(t, 3, fake.evals)
}

func TestHitRejectsEmptyWindow(t *testing.T) {
	client := &Client{cmds: newFakeRedis()}
	_, err := client.Hit(context.Background(), "scope", 1, 0)
	require.Error(t, err)
}

func TestReleaseIfOwner(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{cmds: fake}
	key := client.LockKey("cron-worker:dev")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := client.ReleaseIfOwner(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, released)
	owner, err := client.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "owner-a", owner)

	released, err = client.ReleaseIfOwner(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, released)
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestSetThenDel(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmds: newFakeRedis()}
	key := client.IdempotencyKey("checkout", "abc")

	require.NoError(t, client.Set(ctx, key, "pending", time.Minute))
	ok, err := client.SetNX(ctx, key, "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.Del(ctx, key))
	require.NoError(t, client.Del(ctx))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestUninitializedClient(t *testing.T) {
	client := &Client{}
	ctx := context.Background()
	assert.ErrorIs(t, client.Ping(ctx), errNotInitialized)
	_, err := client.ReleaseIfOwner(ctx, "k", "v")
	assert.ErrorIs(t, err, errNotInitialized)
	_, err = client.Hit(ctx, "s", 1, time.Second)
	assert.ErrorIs(t, err, errNotInitialized)
	assert.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "bz:idempotency:evt:processed:notifications:42", client.IdempotencyKey("evt:processed:notifications", "42"))
	assert.Equal(t, "bz:rate_limit:auth:login:ip:1.2.3.4", client.RateLimitKey("auth:login:ip:1.2.3.4"))
	assert.Equal(t, "bz:session:access:jti", client.AccessSessionKey("jti"))
	assert.Equal(t, "bz:lock", client.LockKey("  "))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/0", DB: 3, PoolSize: 7, ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 2*time.Second, opts.ReadTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6380", Password: "pw", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 1, opts.DB)
}
