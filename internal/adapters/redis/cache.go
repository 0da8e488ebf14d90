package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/merchpit/internal/domain"
)

type Cache struct {
	client   *redis.Client
	orderTTL time.Duration
}

func NewCache(client *redis.Client, orderTTL time.Duration) *Cache {
	return &Cache{client: client, orderTTL: orderTTL}
}

func orderKey(id uuid.UUID) string {
	return "order:" + id.String()
}

func (c *Cache) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, bool, error) {
	val, err := c.client.Get(ctx, orderKey(id)).Bytes()
	if err == redis.Nil {
		return domain.Order{}, false, nil
	}
	if err != nil {
		return domain.Order{}, false, err
	}
	var order domain.Order
	if err := json.Unmarshal(val, &order); err != nil {
		return domain.Order{}, false, err
	}
	return order, true, nil
}

func (c *Cache) SetOrder(ctx context.Context, order domain.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, orderKey(order.ID), data, c.orderTTL).Err()
}

// Acquire claims a pickup code for ttl. It reports false while an earlier
// claim is still live.
func (c *Cache) Acquire(ctx context.Context, code string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "scan:"+code, time.Now().UTC().Format(time.RFC3339Nano), ttl)
	return res.Val(), res.Err()
}
