// Package events reads raw usage events from a Redis stream consumer group
// and hands them to the ingest worker.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aimd54/lifescope-insights/internal/config"
	prommetrics "github.com/aimd54/lifescope-insights/internal/metrics"
	"github.com/aimd54/lifescope-insights/internal/service/ingest"
	"github.com/aimd54/lifescope-insights/pkg/logger"
)

// PayloadField is the stream entry field holding the JSON event.
const PayloadField = "payload"

// Stream message results.
const (
	resultSubmitted = "submitted"
	resultMalformed = "malformed"
	resultDropped   = "dropped"
	resultAcked     = "acked"
	resultAckFailed = "ack_failed"
)

const readRetryDelay = time.Second

// Submitter accepts envelopes for processing.
type Submitter interface {
	Submit(ctx context.Context, env ingest.Envelope) error
}

// StreamSource consumes one stream as a member of a consumer group. Entries
// are acknowledged only after the ingest worker has handled them, so entries
// that failed with a storage error stay pending and are replayed on restart.
type StreamSource struct {
	client redis.UniversalClient
	sink   Submitter
	cfg    config.EventsConfig
	log    *logger.Logger
}

// NewStreamSource creates a stream source.
func NewStreamSource(client redis.UniversalClient, sink Submitter, cfg config.EventsConfig, log *logger.Logger) *StreamSource {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &StreamSource{
		client: client,
		sink:   sink,
		cfg:    cfg,
		log:    log,
	}
}

// EnsureGroup creates the consumer group, and the stream if needed.
func (s *StreamSource) EnsureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", s.cfg.Group, s.cfg.Stream, err)
	}
	return nil
}

// Run reads the stream until ctx is cancelled. Entries left pending by an
// earlier run of this consumer are replayed once, then only new entries are
// read. An entry that stays pending is retried on the next start.
func (s *StreamSource) Run(ctx context.Context) error {
	if err := s.EnsureGroup(ctx); err != nil {
		return err
	}

	s.log.Info().
		Str("stream", s.cfg.Stream).
		Str("group", s.cfg.Group).
		Str("consumer", s.cfg.Consumer).
		Msg("Event stream consumer started")
	defer s.log.Info().Msg("Event stream consumer stopped")

	cursor := "0"
	for {
		next, err := s.replayFrom(ctx, cursor)
		if err == nil {
			break
		}
		if s.stopped(ctx, err) {
			return nil
		}
		cursor = next
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.Poll(ctx, ">"); err != nil && s.stopped(ctx, err) {
			return nil
		}
	}
}

// stopped reports whether err ends the consumer. Other read errors are
// logged and retried after a pause.
func (s *StreamSource) stopped(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ingest.ErrWorkerClosed) {
		return true
	}
	s.log.Error().Err(err).Str("stream", s.cfg.Stream).Msg("Failed to read event stream")
	select {
	case <-ctx.Done():
		return true
	case <-time.After(readRetryDelay):
		return false
	}
}

// ReplayPending submits this consumer's pending entries, each exactly once,
// paging through the pending list by entry ID.
func (s *StreamSource) ReplayPending(ctx context.Context) error {
	_, err := s.replayFrom(ctx, "0")
	return err
}

// replayFrom replays pending entries with IDs after cursor. On error it
// returns the ID of the last entry submitted, so a retry resumes after it.
func (s *StreamSource) replayFrom(ctx context.Context, cursor string) (string, error) {
	replayed := 0
	for {
		n, last, err := s.read(ctx, cursor)
		replayed += n
		cursor = last
		if err != nil {
			return cursor, err
		}
		if n == 0 {
			break
		}
	}
	if replayed > 0 {
		s.log.Info().Int("entries", replayed).Msg("Replayed pending stream entries")
	}
	return cursor, nil
}

// Poll reads one batch starting at cursor and submits every entry. It
// returns the number of entries read.
func (s *StreamSource) Poll(ctx context.Context, cursor string) (int, error) {
	n, _, err := s.read(ctx, cursor)
	return n, err
}

// read is Poll that also returns the ID of the last entry handed on, or
// cursor if there was none.
func (s *StreamSource) read(ctx context.Context, cursor string) (int, string, error) {
	block := s.cfg.Block
	if cursor != ">" {
		// Pending entries are returned immediately; never block on them.
		block = -1
	}

	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, cursor},
		Count:    s.cfg.BatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, cursor, nil
	}
	if err != nil {
		return 0, cursor, err
	}

	n, last := 0, cursor
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			n++
			if err := s.dispatch(ctx, msg); err != nil {
				return n, last, err
			}
			last = msg.ID
		}
	}
	return n, last, nil
}

func (s *StreamSource) dispatch(ctx context.Context, msg redis.XMessage) error {
	payload, err := DecodePayload(msg.Values)
	if err != nil {
		// Never decodable, so acknowledge it rather than replay it forever.
		prommetrics.RecordStreamMessage(resultMalformed)
		s.log.Warn().Err(err).Str("id", msg.ID).Msg("Dropping malformed stream entry")
		s.ack(context.WithoutCancel(ctx), msg.ID)
		return nil
	}

	id := msg.ID
	env := ingest.Envelope{
		Payload: payload,
		Ack: func() {
			s.ack(context.WithoutCancel(ctx), id)
		},
	}
	if err := s.sink.Submit(ctx, env); err != nil {
		prommetrics.RecordStreamMessage(resultDropped)
		return err
	}
	prommetrics.RecordStreamMessage(resultSubmitted)
	return nil
}

func (s *StreamSource) ack(ctx context.Context, id string) {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, id).Err(); err != nil {
		prommetrics.RecordStreamMessage(resultAckFailed)
		s.log.Warn().Err(err).Str("id", id).Msg("Failed to acknowledge stream entry")
		return
	}
	prommetrics.RecordStreamMessage(resultAcked)
}

// DecodePayload turns a stream entry into a raw event. A "payload" field is
// decoded as JSON with numbers kept as json.Number; otherwise the entry's
// own fields are the event.
func DecodePayload(values map[string]interface{}) (map[string]interface{}, error) {
	raw, ok := values[PayloadField]
	if !ok {
		if len(values) == 0 {
			return nil, errors.New("empty stream entry")
		}
		return values, nil
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("payload field has type %T", raw)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	return payload, nil
}
