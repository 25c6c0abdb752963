package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tryout-service/internal/app"
	"tryout-service/internal/domain"
)

const announcementKey = "tryout:announcement"

// AnnouncementCache decorates an AnnouncementRepository with a Redis
// read-through cache. Writes go straight to the backing repository and drop
// the cached copy.
type AnnouncementCache struct {
	client *redis.Client
	inner  app.AnnouncementRepository
	ttl    time.Duration
}

func NewAnnouncementCache(client *redis.Client, inner app.AnnouncementRepository, ttl time.Duration) *AnnouncementCache {
	return &AnnouncementCache{client: client, inner: inner, ttl: ttl}
}

func (c *AnnouncementCache) Announcement(ctx context.Context) (*domain.Announcement, error) {
	if data, err := c.client.Get(ctx, announcementKey).Bytes(); err == nil {
		ann := new(domain.Announcement)
		if err := json.Unmarshal(data, ann); err == nil {
			return ann, nil
		}
	}

	ann, err := c.inner.Announcement(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ann); err == nil {
		_ = c.client.Set(ctx, announcementKey, data, c.ttl).Err()
	}
	return ann, nil
}

func (c *AnnouncementCache) SetAnnouncement(ctx context.Context, ann *domain.Announcement) error {
	if err := c.inner.SetAnnouncement(ctx, ann); err != nil {
		return err
	}
	_ = c.client.Del(ctx, announcementKey).Err()
	return nil
}
