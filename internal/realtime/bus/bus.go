package bus

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/yungbote/docbridge-backend/internal/platform/logger"
)

// Event mirrors a processing_log row onto the wire so whatever fan-out sits
// in front of this service can stream ingestion progress without polling.
type Event struct {
	Channel  string         `json:"channel"`
	Stage    string         `json:"stage"`
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Progress *int           `json:"progress,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	At       time.Time      `json:"at"`
}

// DocumentChannel is the per-document routing key carried inside events.
func DocumentChannel(slug string) string { return "document:" + slug }

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NewBusFromEnv returns the Redis bus when REDIS_ADDR is set and a nop bus
// otherwise. Progress events are best-effort either way.
func NewBusFromEnv(log *logger.Logger) (Bus, error) {
	if strings.TrimSpace(os.Getenv("REDIS_ADDR")) == "" {
		if log != nil {
			log.Info("REDIS_ADDR not set; progress events will not be published")
		}
		return NopBus{}, nil
	}
	return NewRedisBus(log)
}

// NopBus drops every event. Used when Redis is not configured.
type NopBus struct{}

func (NopBus) Publish(ctx context.Context, ev Event) error { return nil }
func (NopBus) Close() error                                { return nil }
