// Package redisstore tracks which documents currently have an active
// ingestion job. The lease is advisory: the conditional record-store
// updates are the real fence, this just lets the API reject a manual retry
// while a worker is busy and lets two workers avoid processing the same
// document concurrently.
package redisstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error { return s.rdb.Close() }

func leaseKey(documentID string) string { return "ingest:active:" + documentID }

// AcquireLease claims the document for jobID. Returns false when another
// job already holds it.
func (s *Store) AcquireLease(ctx context.Context, documentID, jobID string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, leaseKey(documentID), jobID, ttl).Result()
}

// ReleaseLease drops the lease, but only if jobID still holds it.
func (s *Store) ReleaseLease(ctx context.Context, documentID, jobID string) error {
	holder, err := s.rdb.Get(ctx, leaseKey(documentID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if holder != jobID {
		return nil
	}
	return s.rdb.Del(ctx, leaseKey(documentID)).Err()
}

// ActiveJob returns the job currently holding the document, or "" if none.
func (s *Store) ActiveJob(ctx context.Context, documentID string) (string, error) {
	holder, err := s.rdb.Get(ctx, leaseKey(documentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return holder, err
}
