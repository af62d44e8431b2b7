package events

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

const DefaultRedisChannel = "imageproof:analyses"

// RedisBus fans events out through redis pub/sub so every API instance can
// serve subscriptions regardless of which one ran the scoring task.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
}

func NewRedisBus(ctx context.Context, addr, channel string) (*RedisBus, error) {
	if addr == "" {
		return nil, eris.New("redis bus: missing address")
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx2).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "redis ping")
	}
	return &RedisBus{rdb: rdb, channel: channel}, nil
}

func (b *RedisBus) Publish(ctx context.Context, ev domain.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "marshal event")
	}
	return eris.Wrap(b.rdb.Publish(ctx, b.channel, raw).Err(), "redis publish")
}

func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(domain.Event)) error {
	if onEvent == nil {
		return eris.New("redis bus: onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return eris.Wrap(err, "redis subscribe")
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					zap.L().Warn("bad redis event payload", zap.Error(err))
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

// Check pings redis; used by the health endpoint.
func (b *RedisBus) Check(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

func decodeEvent(payload string) (domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return domain.Event{}, eris.Wrap(err, "unmarshal event")
	}
	if ev.OwnerID == "" || ev.Type == "" {
		return domain.Event{}, eris.New("event missing owner or type")
	}
	return ev, nil
}
