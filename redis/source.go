package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/tripwire-io/tripwire/backoff"
	"github.com/tripwire-io/tripwire/event"
	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/retry"
	"go.uber.org/zap"
)

// EventField is the stream entry field holding the JSON encoded event.
const EventField = "event"

// Source reads error events from a Redis stream.
// Only entries added after the Source started are read.
type Source struct {
	client *Client
	stream string
	logger *logging.Logger
	lastID string
}

// NewSource returns a Source reading from stream.
func NewSource(client *Client, stream string, logger *logging.Logger) *Source {
	return &Source{client: client, stream: stream, logger: logger, lastID: "$"}
}

// Run sends every event read from the stream to events until ctx is canceled or a permanent error occurs.
// Transient Redis errors are retried with backoff. Entries that cannot be decoded are logged and skipped.
func (s *Source) Run(ctx context.Context, events chan<- *event.ErrorEvent) error {
	s.logger.Infow("Reading error events", zap.String("redis", s.client.GetAddr()), zap.String("stream", s.stream))

	if s.lastID == "$" {
		id, err := s.tail(ctx)
		if err != nil {
			return err
		}

		s.lastID = id
	}

	for {
		streams, err := s.read(ctx)
		if err != nil {
			return err
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				s.lastID = msg.ID

				ev, err := DecodeEvent(msg)
				if err != nil {
					s.logger.Warnw("Skipping undecodable stream entry", zap.String("id", msg.ID), logging.Error(err))
					continue
				}

				select {
				case events <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (s *Source) read(ctx context.Context) ([]redis.XStream, error) {
	var streams []redis.XStream

	err := retry.WithBackoff(
		ctx,
		func(ctx context.Context) (err error) {
			streams, err = s.client.XReadUntilResult(ctx, &redis.XReadArgs{
				Streams: Streams{s.stream: s.lastID}.Option(),
				Count:   int64(s.client.Options.XReadCount),
				Block:   s.client.Options.BlockTimeout,
			})

			return
		},
		retry.Retryable,
		backoff.DefaultBackoff,
		retry.Settings{
			OnRetryableError: func(elapsed time.Duration, attempt uint64, err, _ error) {
				s.logger.Warnw("Can't read error events. Retrying",
					zap.Duration("elapsed", elapsed), zap.Uint64("attempt", attempt), logging.Error(err))
			},
		},
	)

	return streams, err
}

// tail returns the ID of the newest stream entry, or "0-0" if the stream is empty or missing.
// Reading from a concrete ID instead of "$" keeps entries added between two blocking reads.
func (s *Source) tail(ctx context.Context) (string, error) {
	cmd := s.client.XRevRangeN(ctx, s.stream, "+", "-", 1)
	msgs, err := cmd.Result()
	if err != nil {
		return "", WrapCmdErr(cmd)
	}

	if len(msgs) == 0 {
		return "0-0", nil
	}

	return msgs[0].ID, nil
}

// DecodeEvent decodes the error event of a stream entry.
func DecodeEvent(msg redis.XMessage) (*event.ErrorEvent, error) {
	raw, ok := msg.Values[EventField]
	if !ok {
		return nil, errors.Errorf("field %q missing", EventField)
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, errors.Errorf("field %q has unexpected type %T", EventField, raw)
	}

	var ev event.ErrorEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, errors.Wrap(err, "can't decode error event")
	}

	if ev.Kind == event.KindUnknown {
		return nil, errors.Wrap(event.ErrInvalidEvent, "kind missing")
	}

	return &ev, nil
}
