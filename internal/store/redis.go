package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/mailwright/internal/apperr"
)

// Redis is a Store that keeps each document under its own key and a
// sorted set per collection ordered by update time:
//
//	{prefix}:{collection}:doc:{id}  -> JSON envelope
//	{prefix}:{collection}:recent    -> ZSET id scored by updated-at millis
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. prefix namespaces all keys.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "mailwright"
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis dials addr and returns a Store over it.
func OpenRedis(addr, password string, db int, prefix string) *Redis {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return NewRedis(client, prefix)
}

func (r *Redis) Collection(name string) Collection { return &redisCollection{r: r, name: name} }

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }

type redisEnvelope struct {
	Data      json.RawMessage   `json:"data"`
	Labels    map[string]string `json:"labels,omitempty"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

type redisCollection struct {
	r    *Redis
	name string
}

func (c *redisCollection) docKey(id string) string {
	return c.r.prefix + ":" + c.name + ":doc:" + id
}

func (c *redisCollection) recentKey() string {
	return c.r.prefix + ":" + c.name + ":recent"
}

func (c *redisCollection) Save(ctx context.Context, doc Document) error {
	doc = stamp(doc)
	payload, err := json.Marshal(redisEnvelope{Data: doc.Data, Labels: doc.Labels, UpdatedAt: doc.UpdatedAt})
	if err != nil {
		return fmt.Errorf("store: marshal %s/%s: %w", c.name, doc.ID, err)
	}

	pipe := c.r.client.TxPipeline()
	pipe.Set(ctx, c.docKey(doc.ID), payload, 0)
	pipe.ZAdd(ctx, c.recentKey(), redis.Z{Score: float64(doc.UpdatedAt.UnixMilli()), Member: doc.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: save %s/%s: %w", c.name, doc.ID, err)
	}
	return nil
}

func (c *redisCollection) Get(ctx context.Context, id string) (Document, error) {
	raw, err := c.r.client.Get(ctx, c.docKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("store: get %s/%s: %w", c.name, id, err)
	}
	return decodeEnvelope(id, raw)
}

func (c *redisCollection) List(ctx context.Context, f Filter) ([]Document, error) {
	minScore := "-inf"
	if !f.Since.IsZero() {
		minScore = strconv.FormatInt(f.Since.UnixMilli(), 10)
	}
	ids, err := c.r.client.ZRevRangeByScore(ctx, c.recentKey(), &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.name, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.docKey(id)
	}
	vals, err := c.r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", c.name, err)
	}

	out := make([]Document, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // index entry outlived its document
		}
		doc, err := decodeEnvelope(ids[i], []byte(s))
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return f.apply(out), nil
}

func (c *redisCollection) Delete(ctx context.Context, id string) error {
	pipe := c.r.client.TxPipeline()
	del := pipe.Del(ctx, c.docKey(id))
	pipe.ZRem(ctx, c.recentKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("store: delete %s/%s: %w", c.name, id, apperr.ErrNotFound)
	}
	return nil
}

func decodeEnvelope(id string, raw []byte) (Document, error) {
	var env redisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Document{}, fmt.Errorf("store: decode %s: %w", id, err)
	}
	return Document{ID: id, Data: env.Data, Labels: env.Labels, UpdatedAt: env.UpdatedAt}, nil
}
