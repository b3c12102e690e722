package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "vp8inspector:streams:"

var (
	registerScript = redis.NewScript(`
		local key = KEYS[1]
		local active_key = KEYS[2]
		local data = ARGV[1]
		local ttl = tonumber(ARGV[2])
		local stream_id = ARGV[3]
		redis.call('SET', key, data, 'PX', ttl)
		redis.call('SADD', active_key, stream_id)
		return 1
	`)

	listScript = redis.NewScript(`
		local active_key = KEYS[1]
		local prefix = ARGV[1]
		local active = redis.call('SMEMBERS', active_key)
		local result = {}
		for i, id in ipairs(active) do
			local stream = redis.call('GET', prefix .. id)
			if stream then
				table.insert(result, stream)
			else
				redis.call('SREM', active_key, id)
			end
		end
		return result
	`)

	// updateScript merges the JSON object in ARGV[2] into the stored stream
	// and refreshes last_heartbeat and the TTL.
	updateScript = redis.NewScript(`
		local key = KEYS[1]
		local ttl = tonumber(ARGV[1])
		local fields = cjson.decode(ARGV[2])
		local now = ARGV[3]
		local data = redis.call('GET', key)
		if not data then
			return redis.error_reply("stream not found")
		end
		local stream = cjson.decode(data)
		for k, v in pairs(fields) do
			stream[k] = v
		end
		stream.last_heartbeat = now
		redis.call('SET', key, cjson.encode(stream), 'PX', ttl)
		return "OK"
	`)
)

// RedisRegistry stores streams as JSON documents in Redis so several
// inspector instances can share one view.
type RedisRegistry struct {
	client *redis.Client
	logger *logrus.Logger
	prefix string
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, logger *logrus.Logger, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisRegistry{
		client: client,
		logger: logger,
		prefix: redisKeyPrefix,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) activeKey() string {
	return r.prefix + "active"
}

// Register stores stream, keeping CreatedAt when the stream already exists.
func (r *RedisRegistry) Register(ctx context.Context, stream *Stream) error {
	key := r.prefix + stream.ID

	existing, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var prev Stream
		if err := json.Unmarshal(existing, &prev); err == nil {
			stream.CreatedAt = prev.CreatedAt
		}
	case errors.Is(err, redis.Nil):
		stream.CreatedAt = time.Now()
	default:
		return fmt.Errorf("failed to check existing stream: %w", err)
	}
	stream.LastHeartbeat = time.Now()

	data, err := json.Marshal(stream)
	if err != nil {
		return fmt.Errorf("failed to marshal stream: %w", err)
	}

	if err := registerScript.Run(ctx, r.client,
		[]string{key, r.activeKey()},
		data, r.ttl.Milliseconds(), stream.ID).Err(); err != nil {
		return fmt.Errorf("failed to register stream: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"stream_id": stream.ID,
		"ssrc":      stream.SSRC,
		"source":    stream.SourceAddr,
	}).Debug("Stream registered")
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, streamID string) error {
	deleted, err := r.client.Del(ctx, r.prefix+streamID).Result()
	if err != nil {
		return fmt.Errorf("failed to unregister stream: %w", err)
	}
	if deleted == 0 {
		return notFound(streamID)
	}

	if err := r.client.SRem(ctx, r.activeKey(), streamID).Err(); err != nil {
		r.logger.WithError(err).WithField("stream_id", streamID).Warn("Failed to remove stream from active set")
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, streamID string) (*Stream, error) {
	data, err := r.client.Get(ctx, r.prefix+streamID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, notFound(streamID)
		}
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}

	var stream Stream
	if err := json.Unmarshal(data, &stream); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stream: %w", err)
	}
	return &stream, nil
}

// List returns every live stream. Expired entries are pruned from the
// active set as a side effect.
func (r *RedisRegistry) List(ctx context.Context) ([]*Stream, error) {
	res, err := listScript.Run(ctx, r.client, []string{r.activeKey()}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from list script", res)
	}

	streams := make([]*Stream, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			continue
		}
		var stream Stream
		if err := json.Unmarshal([]byte(data), &stream); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal stream")
			continue
		}
		streams = append(streams, &stream)
	}

	sort.Slice(streams, func(i, j int) bool {
		if streams[i].CreatedAt.Equal(streams[j].CreatedAt) {
			return streams[i].ID < streams[j].ID
		}
		return streams[i].CreatedAt.Before(streams[j].CreatedAt)
	})
	return streams, nil
}

func (r *RedisRegistry) update(ctx context.Context, streamID string, fields interface{}) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}

	now := time.Now().Format(time.RFC3339Nano)
	err = updateScript.Run(ctx, r.client, []string{r.prefix + streamID},
		r.ttl.Milliseconds(), string(payload), now).Err()
	if err != nil {
		if strings.Contains(err.Error(), "stream not found") {
			return notFound(streamID)
		}
		return err
	}
	return nil
}

func (r *RedisRegistry) UpdateHeartbeat(ctx context.Context, streamID string) error {
	if err := r.update(ctx, streamID, map[string]interface{}{}); err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

func (r *RedisRegistry) UpdateStatus(ctx context.Context, streamID string, status StreamStatus) error {
	if err := r.update(ctx, streamID, map[string]string{"status": string(status)}); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	r.logger.WithFields(logrus.Fields{
		"stream_id": streamID,
		"status":    status,
	}).Debug("Stream status updated")
	return nil
}

func (r *RedisRegistry) UpdateStats(ctx context.Context, streamID string, stats *StreamStats) error {
	if err := r.update(ctx, streamID, stats); err != nil {
		return fmt.Errorf("failed to update stats: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (r *RedisRegistry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRegistry) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
