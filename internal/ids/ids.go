// Package ids hands out sequential numeric record IDs.
package ids

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Seed reports the current state of a table: how many data rows it has and
// the highest numeric id among them.
type Seed func(ctx context.Context) (count, maxID int, err error)

// Allocator returns the next id for table.
type Allocator interface {
	Next(ctx context.Context, table string, seed Seed) (int, error)
}

// Local derives ids from the table itself. With no deletions this is
// count+1; after a deletion it stays above the highest id in use.
// Callers serialize allocate+append per table with Locks.
type Local struct{}

func (Local) Next(ctx context.Context, table string, seed Seed) (int, error) {
	count, maxID, err := seed(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed %s ids: %w", table, err)
	}
	return max(count, maxID) + 1, nil
}

// Redis keeps one counter per table, shared by every process using the
// same server. The counter starts from the table contents on first use.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, prefix: "portal:ids:"}
}

func (r *Redis) Next(ctx context.Context, table string, seed Seed) (int, error) {
	key := r.prefix + table
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis exists %s: %w", key, err)
	}
	if exists == 0 {
		count, maxID, err := seed(ctx)
		if err != nil {
			return 0, fmt.Errorf("seed %s ids: %w", table, err)
		}
		if err := r.rdb.SetNX(ctx, key, max(count, maxID), 0).Err(); err != nil {
			return 0, fmt.Errorf("redis setnx %s: %w", key, err)
		}
	}
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return int(n), nil
}

// Locks is a set of per-table mutexes.
type Locks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

// Lock acquires the mutex for table and returns its release func.
func (l *Locks) Lock(table string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	m, ok := l.m[table]
	if !ok {
		m = &sync.Mutex{}
		l.m[table] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
