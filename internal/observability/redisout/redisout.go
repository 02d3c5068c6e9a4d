// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package redisout fans observability events out to a Redis stream per
// session, for external dashboards or log shippers to tail
// (spec.md §4.8's observability bus is explicitly "in-process"; this is
// the out-of-process bridge). Grounded on the teacher's
// internal/cache/redis.go: same redis.NewClient options, Ping-on-open
// health check, per-call context timeout, and warn-log-and-continue
// error handling rather than surfacing every transient Redis error to
// the hot path.
package redisout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamkit-oss/streamkit/internal/log"
	"github.com/streamkit-oss/streamkit/internal/observability"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 2 * time.Second
	// streamMaxLen bounds each session's stream with approximate
	// trimming (Redis MAXLEN ~), so a long-running session's stream
	// can't grow unbounded.
	streamMaxLen = 10000
)

// Config holds the Redis connection options this sink needs.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Sink publishes Events onto a "streamkit:events:<sessionID>" Redis
// stream via XADD.
type Sink struct {
	client *redis.Client
}

// New dials Redis and verifies connectivity before returning.
func New(cfg Config) (*Sink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  writeTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisout: connect: %w", err)
	}
	return &Sink{client: client}, nil
}

// Close closes the underlying client.
func (s *Sink) Close() error { return s.client.Close() }

func streamKey(sessionID string) string {
	return "streamkit:events:" + sessionID
}

// Publish XADDs ev onto its session's stream, logging (not returning)
// any write failure so a Redis hiccup never blocks the bus dispatcher.
func (s *Sink) Publish(ev observability.Event) {
	buf, err := json.Marshal(ev)
	if err != nil {
		log.WithComponent("observability.redisout").Warn().Err(err).Msg("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(ev.SessionID),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"event": buf},
	}).Err()
	if err != nil {
		log.WithComponent("observability.redisout").Warn().
			Str("session_id", ev.SessionID).Err(err).Msg("failed to publish event to redis stream")
	}
}

// Run drains ch, publishing every event, until ch closes.
func (s *Sink) Run(ch <-chan observability.Event) {
	for ev := range ch {
		s.Publish(ev)
	}
}
