package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/V4T54L/honeywatch/internal/domain"
)

// Info summarizes the alert stream. Length and ids are left empty while Redis
// is unreachable.
func (r *AlertRepository) Info(ctx context.Context) (domain.AlertStreamInfo, error) {
	info := domain.AlertStreamInfo{
		Bus:       busName,
		Stream:    r.stream,
		Available: r.isAvailable.Load(),
	}
	if r.spool != nil {
		info.Spooled = r.spool.Size()
	}
	if !info.Available {
		return info, nil
	}

	n, err := r.client.XLen(ctx, r.stream).Result()
	if err != nil {
		return info, fmt.Errorf("failed to get length of stream %s: %w", r.stream, err)
	}
	info.Length = n
	if n == 0 {
		return info, nil
	}

	first, err := r.client.XRangeN(ctx, r.stream, "-", "+", 1).Result()
	if err != nil {
		return info, fmt.Errorf("failed to read head of stream %s: %w", r.stream, err)
	}
	last, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", 1).Result()
	if err != nil {
		return info, fmt.Errorf("failed to read tail of stream %s: %w", r.stream, err)
	}
	if len(first) > 0 {
		info.FirstID = first[0].ID
	}
	if len(last) > 0 {
		info.LastID = last[0].ID
	}
	return info, nil
}

// Recent returns up to count alerts, newest first.
func (r *AlertRepository) Recent(ctx context.Context, count int64) ([]domain.LogRecord, error) {
	messages, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent alerts: %w", err)
	}

	records := make([]domain.LogRecord, 0, len(messages))
	for _, msg := range messages {
		payload, ok := msg.Values["payload"].(string)
		if !ok {
			r.logger.Warn("Invalid message format in stream, skipping", "message_id", msg.ID)
			continue
		}
		var rec domain.LogRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			r.logger.Warn("Failed to decode alert from stream, skipping", "message_id", msg.ID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Trim caps the stream at maxLen entries and returns how many were removed.
func (r *AlertRepository) Trim(ctx context.Context, maxLen int64) (int64, error) {
	n, err := r.client.XTrimMaxLen(ctx, r.stream, maxLen).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim stream %s: %w", r.stream, err)
	}
	return n, nil
}
