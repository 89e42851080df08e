package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// publishTimeout bounds a single publish attempt.
const publishTimeout = 3 * time.Second

// RedisPublisher broadcasts events over redis pub/sub. Subscribers listen on
// the per-license channel license.<uuid>.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects a publisher to the given redis address.
func NewRedisPublisher(addr, password string, dbIndex int) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       dbIndex,
		}),
	}
}

// PublishLicenseRevoked publishes the revoked event on the license channel.
func (p *RedisPublisher) PublishLicenseRevoked(ctx context.Context, event RevokedEvent) error {
	payload, errMarshal := json.Marshal(struct {
		Type string `json:"type"`
		RevokedEvent
	}{Type: EventLicenseRevoked, RevokedEvent: event})
	if errMarshal != nil {
		return fmt.Errorf("notify: marshal event: %w", errMarshal)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	channel := "license." + event.LicenseUUID
	if errPublish := p.client.Publish(pubCtx, channel, payload).Err(); errPublish != nil {
		return fmt.Errorf("notify: publish %s: %w", channel, errPublish)
	}
	return nil
}

// Close releases the underlying redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
