package ipintel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/tidegate/internal/types"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	rec   Record
	err   error
	delay time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, ip string) (Record, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Record{}, ctx.Err()
		}
	}
	return f.rec, f.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, ip string) (Record, error) {
	return Record{}, errors.New("disk on fire")
}

func (failingCache) Put(ctx context.Context, ip string, rec Record) error {
	return errors.New("disk on fire")
}

func newTestResolver(t *testing.T, fetcher Fetcher, timeout time.Duration) (*Resolver, *MemoryCache) {
	t.Helper()
	cache, err := NewMemoryCache(16)
	if err != nil {
		t.Fatal(err)
	}
	return NewResolver(fetcher, cache, timeout, zerolog.Nop()), cache
}

func TestResolver_CachesSuccess(t *testing.T) {
	fetcher := &fakeFetcher{rec: Record{Status: StatusSuccess, CountryCode: "DE"}}
	r, cache := newTestResolver(t, fetcher, time.Second)

	for i := 0; i < 3; i++ {
		rec := r.Resolve(context.Background(), " 198.51.100.1 ")
		if rec.CountryCode != "DE" || rec.Query != "198.51.100.1" {
			t.Fatalf("Resolve = %+v", rec)
		}
	}
	if fetcher.Calls() != 1 {
		t.Errorf("fetcher called %d times, want 1", fetcher.Calls())
	}
	if _, err := cache.Get(context.Background(), "198.51.100.1"); err != nil {
		t.Errorf("record not cached: %v", err)
	}
}

func TestResolver_CachesFallback(t *testing.T) {
	tests := []struct {
		name    string
		fetcher *fakeFetcher
	}{
		{"fetch error", &fakeFetcher{err: types.ErrIPLookupFailed}},
		{"unsuccessful record", &fakeFetcher{rec: Record{Status: StatusFail, Message: "reserved range"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cache := newTestResolver(t, tt.fetcher, time.Second)

			rec := r.Resolve(context.Background(), "203.0.113.5")
			if rec != Fallback("203.0.113.5") {
				t.Errorf("Resolve = %+v, want fallback", rec)
			}
			cached, err := cache.Get(context.Background(), "203.0.113.5")
			if err != nil || cached != rec {
				t.Errorf("cached = (%+v, %v), want fallback", cached, err)
			}

			r.Resolve(context.Background(), "203.0.113.5")
			if tt.fetcher.Calls() != 1 {
				t.Errorf("fallback was retried: %d calls", tt.fetcher.Calls())
			}
		})
	}
}

func TestResolver_EmptyIP(t *testing.T) {
	fetcher := &fakeFetcher{rec: Record{Status: StatusSuccess}}
	r, _ := newTestResolver(t, fetcher, time.Second)

	rec := r.Resolve(context.Background(), "  ")
	if rec != Fallback("") {
		t.Errorf("Resolve(empty) = %+v, want fallback", rec)
	}
	if fetcher.Calls() != 0 {
		t.Error("empty ip was looked up")
	}
}

func TestResolver_Timeout(t *testing.T) {
	fetcher := &fakeFetcher{rec: Record{Status: StatusSuccess}, delay: time.Second}
	r, _ := newTestResolver(t, fetcher, 50*time.Millisecond)

	start := time.Now()
	rec := r.Resolve(context.Background(), "198.51.100.2")
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Resolve took %v, want bounded by the lookup timeout", elapsed)
	}
	if rec.Succeeded() {
		t.Errorf("Resolve = %+v, want fallback after timeout", rec)
	}
}

func TestResolver_IgnoresCallerCancellation(t *testing.T) {
	fetcher := &fakeFetcher{rec: Record{Status: StatusSuccess, CountryCode: "FR"}, delay: 20 * time.Millisecond}
	r, _ := newTestResolver(t, fetcher, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if rec := r.Resolve(ctx, "198.51.100.3"); rec.CountryCode != "FR" {
		t.Errorf("Resolve with cancelled caller = %+v, want the fetched record", rec)
	}
}

func TestResolver_CacheFailureStillResolves(t *testing.T) {
	fetcher := &fakeFetcher{rec: Record{Status: StatusSuccess, CountryCode: "NL"}}
	r := NewResolver(fetcher, failingCache{}, 0, zerolog.Nop())
	if r.timeout != MaxLookupTimeout {
		t.Errorf("timeout = %v, want clamped to %v", r.timeout, MaxLookupTimeout)
	}
	if rec := r.Resolve(context.Background(), "198.51.100.4"); rec.CountryCode != "NL" {
		t.Errorf("Resolve = %+v", rec)
	}
}
