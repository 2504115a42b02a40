package permissions

import (
	"sync"
	"testing"
	"time"
)

func TestCache_FreshHit(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	c.Fill("orders", &Record{TableName: "orders", CanRead: true}, c.Generation("orders"))

	rec, hit := c.Get("orders")
	if !hit {
		t.Fatal("expected cache hit")
	}
	if rec.TableName != "orders" || !rec.CanRead {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestCache_Miss(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	rec, hit := c.Get("nonexistent")
	if hit {
		t.Fatal("expected miss")
	}
	if rec != nil {
		t.Fatal("expected nil record on miss")
	}
}

func TestCache_NegativeCache(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	c.Fill("unknown", nil, c.Generation("unknown"))

	rec, hit := c.Get("unknown")
	if !hit {
		t.Fatal("expected cache hit for negative cache")
	}
	if rec != nil {
		t.Fatal("expected nil record for negative cache")
	}
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	rec := &Record{TableName: "orders", CanRead: true}
	c.Fill("orders", rec, c.Generation("orders"))
	rec.CanRead = false

	got, _ := c.Get("orders")
	if !got.CanRead {
		t.Fatal("cache entry changed through caller's pointer")
	}
	got.CanWrite = true
	if again, _ := c.Get("orders"); again.CanWrite {
		t.Fatal("cache entry changed through returned pointer")
	}
}

func TestCache_ExpiredEntryIsMiss(t *testing.T) {
	c := NewRecordCache(1 * time.Millisecond)
	c.Fill("orders", &Record{TableName: "orders", CanRead: true}, c.Generation("orders"))

	time.Sleep(5 * time.Millisecond)

	if rec, hit := c.Get("orders"); hit || rec != nil {
		t.Fatalf("expected expired entry to be a miss, got hit=%v rec=%+v", hit, rec)
	}
}

func TestCache_FillAfterInvalidateIsDropped(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	gen := c.Generation("orders")

	c.Invalidate("orders")

	if c.Fill("orders", &Record{TableName: "orders", CanRead: true}, gen) {
		t.Fatal("expected fill with an outdated generation to be rejected")
	}
	if _, hit := c.Get("orders"); hit {
		t.Fatal("expected no entry after rejected fill")
	}
	if !c.Fill("orders", &Record{TableName: "orders"}, c.Generation("orders")) {
		t.Fatal("expected fill with the current generation to be kept")
	}
}

func TestCache_FillAfterPurgeIsDropped(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	gen := c.Generation("fresh_table")

	c.Purge()

	if c.Fill("fresh_table", nil, gen) {
		t.Fatal("expected fill started before purge to be rejected")
	}
}

func TestCache_InvalidateAndPurge(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	c.Fill("a", &Record{TableName: "a"}, c.Generation("a"))
	c.Fill("b", &Record{TableName: "b"}, c.Generation("b"))

	c.Invalidate("a")
	if _, hit := c.Get("a"); hit {
		t.Fatal("expected miss after invalidate")
	}

	c.Purge()
	if _, hit := c.Get("b"); hit {
		t.Fatal("expected miss after purge")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewRecordCache(30 * time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Fill("orders", &Record{TableName: "orders"}, c.Generation("orders"))
			c.Get("orders")
			c.Invalidate("orders")
		}()
	}
	wg.Wait()
}
