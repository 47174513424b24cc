package cachesvc

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/academy/core/course"
)

const outlineKeyPrefix = "academy:outline:"

// Connect opens a redis client from a redis:// URL or a host:port address & pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, errors.Wrap(err, "parsing redis url")
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

// OutlineCache stores course outlines as JSON documents.
type OutlineCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ course.OutlineCache = (*OutlineCache)(nil) // interface compliance check

func NewOutlineCache(client *redis.Client, ttl time.Duration) *OutlineCache {
	return &OutlineCache{client: client, ttl: ttl}
}

func outlineKey(id string) string { return outlineKeyPrefix + id }

func (oc *OutlineCache) GetOutline(ctx context.Context, id string) (course.Course, bool, error) {
	raw, err := oc.client.Get(ctx, outlineKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return course.Course{}, false, nil
		}
		return course.Course{}, false, errors.Wrap(err, "getting outline")
	}

	var c course.Course
	if err = json.Unmarshal(raw, &c); err != nil {
		return course.Course{}, false, errors.Wrap(err, "decoding outline")
	}
	return c, true, nil
}

func (oc *OutlineCache) SetOutline(ctx context.Context, c course.Course) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding outline")
	}
	if err = oc.client.Set(ctx, outlineKey(c.ID), raw, oc.ttl).Err(); err != nil {
		return errors.Wrap(err, "setting outline")
	}
	return nil
}

func (oc *OutlineCache) DeleteOutline(ctx context.Context, id string) error {
	if err := oc.client.Del(ctx, outlineKey(id)).Err(); err != nil {
		return errors.Wrap(err, "deleting outline")
	}
	return nil
}
