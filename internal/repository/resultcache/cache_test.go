package resultcache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalogq/internal/db"
	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
)

func newTestCache(t *testing.T) (*Cache, *memStore, *prometheus.CounterVec) {
	t.Helper()
	ms := newMemStore()
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	return New(ms, Options{TTL: time.Minute, Prefix: "t:", CacheTotal: total, Logger: zap.NewNop()}), ms, total
}

func samplePage() result.Page {
	return result.Page{
		Kind: domain.KindRecord,
		Rows: result.Rows{Kind: domain.KindRecord, Records: []model.Record{
			{ID: "r1", Title: model.Ptr("CEO"), CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		}},
		Limit:    2,
		ServedBy: result.ServedByRelational,
	}
}

func TestKey(t *testing.T) {
	c, _, _ := newTestCache(t)
	k1 := c.Key(domain.KindRecord, []byte(`{"f":"a"}`))
	k2 := c.Key(domain.KindRecord, []byte(`{"f":"a"}`))
	k3 := c.Key(domain.KindRecord, []byte(`{"f":"b"}`))
	if k1 != k2 || k1 == k3 {
		t.Errorf("keys not deterministic: %s %s %s", k1, k2, k3)
	}
	if !strings.HasPrefix(k1, "t:result:{records}:") || len(k1) != len("t:result:{records}:")+64 {
		t.Errorf("key = %s", k1)
	}
}

func TestFetch_MissThenHit(t *testing.T) {
	c, ms, total := newTestCache(t)
	ctx := context.Background()
	key := c.Key(domain.KindRecord, []byte("q"))

	var loads int
	load := func(context.Context) (result.Page, error) {
		loads++
		return samplePage(), nil
	}

	first, err := Fetch(ctx, c, key, load)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	second, err := Fetch(ctx, c, key, load)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
	if second.Rows.Len() != 1 || second.Rows.Records[0].ID != first.Rows.Records[0].ID {
		t.Errorf("cached page = %+v", second)
	}
	if ms.ttls[key] != time.Minute {
		t.Errorf("ttl = %v", ms.ttls[key])
	}
	if testutil.ToFloat64(total.WithLabelValues("miss")) != 1 || testutil.ToFloat64(total.WithLabelValues("hit")) != 1 {
		t.Error("hit/miss counters not updated")
	}
}

func TestFetch_LoadErrorNotCached(t *testing.T) {
	c, ms, _ := newTestCache(t)
	boom := errors.New("backend down")
	_, err := Fetch(context.Background(), c, "t:result:{records}:x", func(context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if ms.len() != 0 {
		t.Error("failed load was cached")
	}
}

func TestFetch_StoreErrorsSwallowed(t *testing.T) {
	c, ms, total := newTestCache(t)
	ms.getErr = &db.Error{Op: db.OpGet, Err: errors.New("connection refused")}
	ms.setErr = &db.Error{Op: db.OpSet, Err: errors.New("connection refused")}

	n, err := Fetch(context.Background(), c, "k", func(context.Context) (int, error) { return 3, nil })
	if err != nil || n != 3 {
		t.Fatalf("Fetch = %d, %v", n, err)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("error")); got != 2 {
		t.Errorf("error counter = %v, want 2", got)
	}
}

func TestFetch_CorruptEntryReloads(t *testing.T) {
	c, ms, _ := newTestCache(t)
	ms.data["k"] = []byte("{not json")
	ids, err := Fetch(context.Background(), c, "k", func(context.Context) ([]string, error) {
		return []string{"a"}, nil
	})
	if err != nil || len(ids) != 1 {
		t.Fatalf("Fetch = %v, %v", ids, err)
	}
}

func TestFetch_CollapsesConcurrentMisses(t *testing.T) {
	c, _, _ := newTestCache(t)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		loads.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, "same", load)
			if err != nil {
				t.Errorf("Fetch: %v", err)
			}
			results[i] = v
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n < 1 || n > 2 {
		t.Errorf("loads = %d, want concurrent misses collapsed", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("results[%d] = %d", i, v)
		}
	}
}

func TestFetch_NilCache(t *testing.T) {
	var c *Cache
	v, err := Fetch(context.Background(), c, c.Key(domain.KindGroup, nil), func(context.Context) (string, error) {
		return "direct", nil
	})
	if err != nil || v != "direct" {
		t.Errorf("Fetch = %q, %v", v, err)
	}
	c.Invalidate(context.Background(), domain.KindGroup)
}

func TestInvalidate(t *testing.T) {
	tests := []struct {
		kind     domain.Kind
		wantLeft int
		prefixes []string
	}{
		{domain.KindRecord, 1, []string{"t:result:{records}:"}},
		{domain.KindGroup, 0, []string{"t:result:{groups}:", "t:result:{records}:"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c, ms, _ := newTestCache(t)
			ms.data[c.Key(domain.KindRecord, []byte("a"))] = []byte("1")
			ms.data[c.Key(domain.KindGroup, []byte("b"))] = []byte("2")

			c.Invalidate(context.Background(), tt.kind)

			if ms.len() != tt.wantLeft {
				t.Errorf("keys left = %d, want %d", ms.len(), tt.wantLeft)
			}
			if strings.Join(ms.prefixes, ",") != strings.Join(tt.prefixes, ",") {
				t.Errorf("prefixes = %v", ms.prefixes)
			}
		})
	}
}

func TestInvalidate_ErrorSwallowed(t *testing.T) {
	c, ms, total := newTestCache(t)
	ms.deleteErr = errors.New("scan failed")
	c.Invalidate(context.Background(), domain.KindGroup)
	if got := testutil.ToFloat64(total.WithLabelValues("error")); got != 2 {
		t.Errorf("error counter = %v", got)
	}
}

func TestFetch_InvalidateDuringLoadSkipsWrite(t *testing.T) {
	c, ms, _ := newTestCache(t)
	ctx := context.Background()
	key := c.Key(domain.KindRecord, []byte("q"))

	v, err := Fetch(ctx, c, key, func(ctx context.Context) (int, error) {
		c.Invalidate(ctx, domain.KindGroup)
		return 1, nil
	})
	if err != nil || v != 1 {
		t.Fatalf("Fetch = %d, %v", v, err)
	}
	if ms.len() != 0 {
		t.Fatal("result loaded before invalidation was cached")
	}

	var loads int
	v, err = Fetch(ctx, c, key, func(context.Context) (int, error) {
		loads++
		return 2, nil
	})
	if err != nil || v != 2 || loads != 1 {
		t.Fatalf("Fetch = %d, %v (loads %d), want fresh load", v, err, loads)
	}
	if ms.len() != 1 {
		t.Error("fresh load was not cached")
	}
}

func TestFetch_InvalidateStartsNewFlight(t *testing.T) {
	c, _, _ := newTestCache(t)
	ctx := context.Background()
	key := c.Key(domain.KindRecord, []byte("q"))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan int)
	go func() {
		v, _ := Fetch(ctx, c, key, func(context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
		done <- v
	}()
	<-started

	c.Invalidate(ctx, domain.KindRecord)
	v, err := Fetch(ctx, c, key, func(context.Context) (int, error) { return 2, nil })
	if err != nil || v != 2 {
		t.Errorf("Fetch after invalidation = %d, %v, want a fresh load", v, err)
	}
	close(release)
	if old := <-done; old != 1 {
		t.Errorf("in-flight load = %d", old)
	}
}
