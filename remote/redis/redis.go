// Package redis writes monitored files to Redis hashes.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cassync"
)

var ErrNilClient = errors.New("redis writer: client is nil")

type Config struct {
	Client redis.UniversalClient
	Prefix string        // key prefix; "" => "file"
	TTL    time.Duration // 0 => no expiry
}

// Writer stores each file as a hash under <prefix>:<id>.
type Writer struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ cassync.FileWriter = (*Writer)(nil)

func New(cfg Config) (*Writer, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "file"
	}
	return &Writer{rdb: cfg.Client, prefix: prefix, ttl: cfg.TTL}, nil
}

func (w *Writer) key(id string) string { return w.prefix + ":" + id }

func (w *Writer) WriteFile(ctx context.Context, f cassync.File) error {
	k := w.key(f.ID)
	_, err := w.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k,
			"name", f.Name,
			"contents", f.Contents,
			"thread_id", f.ThreadID,
			"updated_at", time.Now().UTC().Format(time.RFC3339Nano))
		if w.ttl > 0 {
			p.Expire(ctx, k, w.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("hset %s: %w", f.ID, err)
	}
	return nil
}

// Read returns the stored contents of id.
func (w *Writer) Read(ctx context.Context, id string) (string, bool, error) {
	s, err := w.rdb.HGet(ctx, w.key(id), "contents").Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}
