package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// UserChannel is the Redis pub/sub channel carrying one user's event stream.
// WebSocket mirrors subscribe here, so every attached window (host tab and
// detached popup) sees the same events from the one state owner.
func UserChannel(userID string) string {
	return "user:" + userID + ":events"
}

// RedisBridge forwards every bus event onto the user's Redis channel as JSON.
type RedisBridge struct {
	rdb *redis.Client
	log *logrus.Logger
}

func NewRedisBridge(rdb *redis.Client, log *logrus.Logger) *RedisBridge {
	return &RedisBridge{rdb: rdb, log: log}
}

// Attach subscribes the bridge to the bus.
func (br *RedisBridge) Attach(bus *Bus) {
	bus.SubscribeAll(br.forward)
}

func (br *RedisBridge) forward(ev Event) {
	if ev.UserID == "" {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		br.log.WithError(err).WithField("event_type", ev.Type).Warn("event marshal failed")
		return
	}
	// Best-effort fan-out; mirrors resync from GET /session on reconnect.
	if err := br.rdb.Publish(context.Background(), UserChannel(ev.UserID), b).Err(); err != nil {
		br.log.WithError(err).WithField("event_type", ev.Type).Warn("event publish failed")
	}
}
