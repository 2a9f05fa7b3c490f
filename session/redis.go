package session

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores session keys in Redis. Multi-key writes and deletes are sent
// as one MULTI/EXEC transaction so the three keys never diverge.
//
// The namespace of each key (everything before the last ':') is stored as a
// hash tag, so "goSession:session" lives at "{goSession}:session" and every
// key of one store maps to the same cluster slot.
type RedisKV struct {
	redis redis.UniversalClient
}

// NewRedisKV wraps an existing go-redis client. Closing the KV closes the client.
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{redis: client}
}

// Get implements [KV] with a single MGET.
func (r *RedisKV) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	vals, err := r.redis.MGet(ctx, hashTagged(keys)...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("unexpected redis value type")
		}
		out[keys[i]] = s
	}
	return out, nil
}

// Set implements [KV]; values are written without expiry.
func (r *RedisKV) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range values {
			pipe.Set(ctx, hashTag(k), v, 0)
		}
		return nil
	})
	return err
}

// Delete implements [KV].
func (r *RedisKV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, hashTagged(keys)...)
		return nil
	})
	return err
}

// Close closes the underlying client.
func (r *RedisKV) Close() error {
	return r.redis.Close()
}

// hashTag wraps the key's namespace in braces. Keys without a namespace or
// with a tag already present are returned unchanged.
func hashTag(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || strings.ContainsAny(key[:i], "{}") {
		return key
	}
	return "{" + key[:i] + "}" + key[i:]
}

func hashTagged(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = hashTag(k)
	}
	return out
}
