// Package events публикует уведомления об изменениях аукционов во внешний канал.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/vehicle-auction/internal/model"
)

// ChannelPrefix используется в именах каналов Redis, по одному на аукцион.
const ChannelPrefix = "auction:"

// Publisher доставляет событие подписчикам. Доставка не менее одного раза.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// RedisPublisher публикует события в Redis Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisClient создаёт клиент Redis и проверяет соединение.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisPublisher создаёт издателя поверх готового клиента.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish сериализует событие в JSON и отправляет его в канал аукциона.
func (p *RedisPublisher) Publish(ctx context.Context, ev model.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, Channel(ev.AuctionID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (p *RedisPublisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// Channel возвращает имя канала для аукциона.
func Channel(auctionID string) string {
	return ChannelPrefix + auctionID
}

// Encode сериализует событие для передачи подписчикам.
func Encode(ev model.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

// LogPublisher пишет события в журнал. Используется, когда Redis не настроен.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher создаёт издателя, пишущего в logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev model.Event) error {
	p.logger.Info("auction event",
		zap.String("eventID", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("auctionID", ev.AuctionID),
		zap.Int64("price", ev.Price),
		zap.String("winnerID", ev.WinnerID),
		zap.String("bidderID", ev.BidderID),
		zap.Int64("sequence", ev.Sequence),
	)
	return nil
}
