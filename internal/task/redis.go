package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript deletes the hash only when its status field matches, returning
// the encoded record and the artifact bytes. Running it server-side keeps
// read-and-delete atomic across concurrent fetches.
var takeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "status") ~= ARGV[1] then
	return false
end
local res = redis.call("HMGET", KEYS[1], "record", "data")
redis.call("DEL", KEYS[1])
return res
`)

// RedisStore keeps each task in a hash with a status field, the JSON encoded
// record and, once completed, the artifact bytes in a separate data field so
// Get never transfers them. Keys expire ttl after their last write, so Sweep
// has nothing to do.
type RedisStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

type RedisOptions struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{redisClient: client, ttl: opts.TTL}, nil
}

func (r *RedisStore) Put(ctx context.Context, id string, rec Record) error {
	var data []byte
	if rec.Artifact != nil {
		meta := *rec.Artifact
		data, meta.Data = meta.Data, nil
		rec.Artifact = &meta
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	k := taskKey(id)
	pipe := r.redisClient.TxPipeline()
	pipe.Del(ctx, k)
	pipe.HSet(ctx, k,
		"status", string(rec.Status),
		"record", payload,
	)
	if data != nil {
		pipe.HSet(ctx, k, "data", data)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, k, r.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RedisStore) Get(ctx context.Context, id string) (Record, bool, error) {
	payload, err := r.redisClient.HGet(ctx, taskKey(id), "record").Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return decodeRecord(payload)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.redisClient.Del(ctx, taskKey(id)).Err()
}

func (r *RedisStore) Take(ctx context.Context, id string, want Status) (Record, bool, error) {
	res, err := takeScript.Run(ctx, r.redisClient, []string{taskKey(id)}, string(want)).Slice()
	if errors.Is(err, redis.Nil) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	if len(res) != 2 {
		return Record{}, false, fmt.Errorf("unexpected take reply of %d values", len(res))
	}
	payload, _ := res[0].(string)
	rec, ok, err := decodeRecord([]byte(payload))
	if err != nil {
		return Record{}, false, err
	}
	if data, isSet := res[1].(string); isSet && rec.Artifact != nil {
		rec.Artifact.Data = []byte(data)
	}
	return rec, ok, nil
}

func (r *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (r *RedisStore) Close() error {
	return r.redisClient.Close()
}

func decodeRecord(payload []byte) (Record, bool, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, false, fmt.Errorf("decode task record: %w", err)
	}
	return rec, true, nil
}

func taskKey(id string) string { return fmt.Sprintf("task:%s", id) }
