// Package streambus wraps Redis Streams into the append-only partitioned
// log abstraction the pipeline is built on: candles and signals are stream
// entries, snapshots and bot indexes are plain keys, and idempotency ledgers
// are TTL'd SETNX guards.
package streambus

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config addresses the Redis instance backing the bus.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Bus is the shared handle every component dials into.
type Bus struct {
	client *goredis.Client
}

// New dials Redis and returns a Bus. It does not verify connectivity;
// callers that need a fail-fast startup should call Ping.
func New(cfg Config) *Bus {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Bus{client: client}
}

// Ping verifies the connection is live.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.client.Close()
}

// MarketStreamKey returns the candle stream key for a symbol/timeframe pair.
func MarketStreamKey(symbol string, tf string) string {
	return fmt.Sprintf("market.{%s:%s}", symbol, tf)
}

// IndicatorStreamKey returns the indicator-snapshot stream key.
func IndicatorStreamKey(symbol string, tf string) string {
	return fmt.Sprintf("ind.{%s:%s}", symbol, tf)
}

// SignalStreamKey returns the ARM/DISARM signal stream key.
func SignalStreamKey(symbol string, tf string) string {
	return fmt.Sprintf("signal.{%s:%s}", symbol, tf)
}

// SnapshotKey returns the single-entry latest-indicator key (overwritten, not a stream).
func SnapshotKey(symbol string, tf string) string {
	return fmt.Sprintf("snap.{%s:%s}", symbol, tf)
}

// BotIndexKey returns the set key of bot ids subscribed to a symbol.
func BotIndexKey(symbol string) string {
	return fmt.Sprintf("idx.bots.{%s}", symbol)
}

// OffsetKey returns the per-consumer resume-id key for XREAD-mode tailing.
func OffsetKey(symbol string, tf string) string {
	return fmt.Sprintf("worker.offset.signal.{%s:%s}", symbol, tf)
}

// Append adds one entry to a stream with an explicit entry id and trims it
// to an approximate max length.
func (b *Bus) Append(ctx context.Context, stream, id string, fields map[string]string, maxLen int64) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	cmd := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		ID:     id,
		Values: values,
		MaxLen: maxLen,
		Approx: true,
	})
	return cmd.Result()
}

// TrimByMinID trims a stream by minimum id derived from a retention window.
func (b *Bus) TrimByMinID(ctx context.Context, stream string, retention time.Duration) error {
	minID := fmt.Sprintf("%d-0", time.Now().Add(-retention).UnixMilli())
	return b.client.XTrimMinID(ctx, stream, minID).Err()
}

// Tail returns the id of the most recent entry in a stream, or "0" if empty.
func (b *Bus) Tail(ctx context.Context, stream string) (string, error) {
	entries, err := b.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "0", nil
	}
	return entries[0].ID, nil
}

// Range reads entries from startID (exclusive convention handled by caller)
// through endID.
func (b *Bus) Range(ctx context.Context, stream, startID, endID string) ([]goredis.XMessage, error) {
	return b.client.XRange(ctx, stream, startID, endID).Result()
}

// EnsureGroup creates a consumer group at startID ("$" for tail-only),
// tolerating BUSYGROUP when the group already exists.
func (b *Bus) EnsureGroup(ctx context.Context, stream, group, startID string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, startID).Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// ReadGroup reads up to count new entries for a consumer group, blocking up
// to block for new data.
func (b *Bus) ReadGroup(ctx context.Context, group, consumer string, streams []string, count int64, block time.Duration) ([]goredis.XStream, error) {
	ids := make([]string, len(streams))
	for i := range ids {
		ids[i] = ">"
	}
	args := &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  append(append([]string{}, streams...), ids...),
		Count:    count,
		Block:    block,
	}
	res, err := b.client.XReadGroup(ctx, args).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	return res, err
}

// Ack acknowledges a delivered entry.
func (b *Bus) Ack(ctx context.Context, stream, group, id string) error {
	return b.client.XAck(ctx, stream, group, id).Err()
}

// PendingStale lists pending entries idle longer than minIdle for reclaiming.
func (b *Bus) PendingStale(ctx context.Context, stream, group string, minIdle time.Duration, count int64) ([]goredis.XPendingExt, error) {
	res, err := b.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	return res, err
}

// Claim transfers ownership of the given pending entry ids to consumer.
func (b *Bus) Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids []string) ([]goredis.XMessage, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return b.client.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
}

// SetSnapshot overwrites the latest-indicator key with a 24h TTL.
func (b *Bus) SetSnapshot(ctx context.Context, key string, payload string) error {
	return b.client.Set(ctx, key, payload, 24*time.Hour).Err()
}

// GetSnapshot fetches the latest-indicator payload, returning ("", false) if absent.
func (b *Bus) GetSnapshot(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// AddBotIndex adds a bot id to a symbol's subscriber set.
func (b *Bus) AddBotIndex(ctx context.Context, symbol, botID string) error {
	return b.client.SAdd(ctx, BotIndexKey(symbol), botID).Err()
}

// BotIndex returns the subscriber set for a symbol.
func (b *Bus) BotIndex(ctx context.Context, symbol string) ([]string, error) {
	return b.client.SMembers(ctx, BotIndexKey(symbol)).Result()
}

// FirstWriterWins sets a dedup key only if absent, with a TTL. Returns true
// if this call won the race (first writer).
func (b *Bus) FirstWriterWins(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, "1", ttl).Result()
}

// ReleaseLedger deletes a dedup key, so a FirstWriterWins claim can be
// retried after the work it guarded failed to complete (e.g. a retryable
// exchange error during order placement).
func (b *Bus) ReleaseLedger(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// SetOffset records a per-consumer resume id.
func (b *Bus) SetOffset(ctx context.Context, key, id string) error {
	return b.client.Set(ctx, key, id, 0).Err()
}

// GetOffset fetches a per-consumer resume id, returning "" if unset.
func (b *Bus) GetOffset(ctx context.Context, key string) (string, error) {
	v, err := b.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", nil
	}
	return v, err
}

// Publish publishes a message on a pub/sub channel.
func (b *Bus) Publish(ctx context.Context, channel, message string) error {
	return b.client.Publish(ctx, channel, message).Err()
}

// Heartbeat writes a liveness key with a TTL, used by the per-component
// heartbeat task named in the concurrency model.
func (b *Bus) Heartbeat(ctx context.Context, key string, ttl time.Duration) error {
	return b.client.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err()
}
