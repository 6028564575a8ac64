package ids

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func fixed(count, maxID int) Seed {
	return func(context.Context) (int, int, error) { return count, maxID, nil }
}

func TestLocal_Next(t *testing.T) {
	tests := []struct {
		name         string
		count, maxID int
		want         int
	}{
		{"empty table", 0, 0, 1},
		{"no deletions", 3, 3, 4},
		{"after a deletion", 2, 3, 4},
		{"non-numeric ids", 4, 0, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Local{}.Next(context.Background(), "results", fixed(tt.count, tt.maxID))
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Next() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLocal_SeedError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Local{}.Next(context.Background(), "users", func(context.Context) (int, int, error) {
		return 0, 0, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Next() error = %v, want wrapped boom", err)
	}
}

func TestRedis_Next(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	a := NewRedis(rdb)
	ctx := context.Background()

	seeded := 0
	seed := func(context.Context) (int, int, error) {
		seeded++
		return 2, 5, nil
	}

	for want := 6; want <= 8; want++ {
		got, err := a.Next(ctx, "routines", seed)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Next() = %d, want %d", got, want)
		}
	}
	if seeded != 1 {
		t.Errorf("seed called %d times, want 1", seeded)
	}
	if v, _ := mr.Get("portal:ids:routines"); v != "8" {
		t.Errorf("counter = %q, want 8", v)
	}
}

func TestLocks_SerializesPerTable(t *testing.T) {
	var locks Locks
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("users")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}
