// Bibliocache - Bibliographic Metadata Proxy and Cache
// Copyright 2026 Bibliocache Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bibliocache/bibliocache

package enrich

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/bibliocache/bibliocache/internal/cache"
	"github.com/bibliocache/bibliocache/internal/metrics"
	"github.com/bibliocache/bibliocache/internal/models"
)

// topic is the in-process enrichment task topic.
const topic = "enrichment.tasks"

// task is the published message payload: the cache key to update and the
// record as it was cached.
type task struct {
	CacheKey string         `json:"cache_key"`
	TTL      time.Duration  `json:"ttl"`
	Provider string         `json:"provider"`
	Record   *models.Record `json:"record"`
}

// Cache is the slice of the tiered store the pipeline needs.
type Cache interface {
	Set(key string, payload []byte, ttl time.Duration, popularity int)
}

// Pipeline is the enrichment pub/sub pair over an in-process Watermill
// GoChannel. Publishing never blocks request handling beyond the channel
// send; a full buffer drops the task.
type Pipeline struct {
	pubsub   *gochannel.GoChannel
	enricher Enricher
	cache    Cache
	log      zerolog.Logger
}

// NewPipeline creates the enrichment pipeline.
func NewPipeline(enricher Enricher, cacheStore Cache, log zerolog.Logger) *Pipeline {
	wmLog := &watermillLogger{log: log.With().Str("component", "enrich-pubsub").Logger()}
	return &Pipeline{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 256,
		}, wmLog),
		enricher: enricher,
		cache:    cacheStore,
		log:      log.With().Str("component", "enrich").Logger(),
	}
}

// Submit queues a record for enrichment. Fire-and-forget: errors are counted
// and logged, never returned to the request path.
func (p *Pipeline) Submit(cacheKey string, record *models.Record, providerID string, ttl time.Duration) {
	if record == nil || record.Enrichment != nil {
		return
	}
	payload, err := json.Marshal(task{CacheKey: cacheKey, TTL: ttl, Provider: providerID, Record: record})
	if err != nil {
		metrics.EnrichmentTasks.WithLabelValues("dropped").Inc()
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.pubsub.Publish(topic, msg); err != nil {
		metrics.EnrichmentTasks.WithLabelValues("dropped").Inc()
		p.log.Warn().Err(err).Msg("Failed to publish enrichment task")
		return
	}
	metrics.EnrichmentTasks.WithLabelValues("published").Inc()
}

// Run consumes enrichment tasks until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	messages, err := p.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}
	for msg := range messages {
		p.handle(msg)
		msg.Ack()
	}
	return nil
}

// Close shuts the pub/sub down, closing the subscriber channel.
func (p *Pipeline) Close() error {
	return p.pubsub.Close()
}

func (p *Pipeline) handle(msg *message.Message) {
	var t task
	if err := json.Unmarshal(msg.Payload, &t); err != nil {
		metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
		p.log.Warn().Err(err).Str("msg_id", msg.UUID).Msg("Malformed enrichment task")
		return
	}

	enrichment, err := p.enricher.Enrich(t.Record)
	if err != nil {
		metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
		p.log.Debug().Err(err).Str("key", t.CacheKey).Msg("Enrichment failed, record left as-is")
		return
	}
	if len(enrichment) == 0 {
		metrics.EnrichmentTasks.WithLabelValues("processed").Inc()
		return
	}

	t.Record.Enrichment = enrichment
	payload, err := cache.EncodeRecord(t.Record, t.Provider)
	if err != nil {
		metrics.EnrichmentTasks.WithLabelValues("failed").Inc()
		return
	}
	p.cache.Set(t.CacheKey, payload, t.TTL, 0)
	metrics.EnrichmentTasks.WithLabelValues("processed").Inc()
}

// watermillLogger adapts zerolog to the Watermill logger interface.
type watermillLogger struct {
	log zerolog.Logger
}

var _ watermill.LoggerAdapter = (*watermillLogger)(nil)

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.log.Error().Err(err), fields).Msg(msg)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(l.log.Info(), fields).Msg(msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(l.log.Debug(), fields).Msg(msg)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(l.log.Trace(), fields).Msg(msg)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	log := l.log
	for k, v := range fields {
		log = log.With().Interface(k, v).Logger()
	}
	return &watermillLogger{log: log}
}

func (l *watermillLogger) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
