package util

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T, ttl time.Duration) (*Deduper, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewDeduper(rdb, ttl, nil), mr
}

func TestDeduperMarksDone(t *testing.T) {
	d, mr := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	if d.AlreadyDone(ctx, "send_draft", "j1") {
		t.Fatal("unseen job reported done")
	}
	d.MarkDone(ctx, "send_draft", "j1")
	if !d.AlreadyDone(ctx, "send_draft", "j1") {
		t.Fatal("marked job not reported done")
	}
	// 不同 kind 互不影响
	if d.AlreadyDone(ctx, "index_rag", "j1") {
		t.Fatal("dedup key leaked across kinds")
	}
	if ttl := mr.TTL(dedupKey("send_draft", "j1")); ttl != time.Hour {
		t.Fatalf("ttl = %s, want 1h", ttl)
	}
}

func TestDeduperExpires(t *testing.T) {
	d, mr := newTestDeduper(t, time.Minute)
	ctx := context.Background()

	d.MarkDone(ctx, "classify_mail", "j2")
	mr.FastForward(2 * time.Minute)
	if d.AlreadyDone(ctx, "classify_mail", "j2") {
		t.Fatal("expired mark still reported done")
	}
}

func TestDeduperIgnoresEmptyJobID(t *testing.T) {
	d, mr := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	d.MarkDone(ctx, "send_draft", "")
	if len(mr.Keys()) != 0 {
		t.Fatalf("empty job id should not be stored, keys = %v", mr.Keys())
	}
	if d.AlreadyDone(ctx, "send_draft", "") {
		t.Fatal("empty job id reported done")
	}
}

func TestDeduperFailsOpen(t *testing.T) {
	d, mr := newTestDeduper(t, time.Hour)
	ctx := context.Background()

	d.MarkDone(ctx, "send_draft", "j3")
	mr.Close()
	if d.AlreadyDone(ctx, "send_draft", "j3") {
		t.Fatal("unreachable redis must allow processing")
	}
	d.MarkDone(ctx, "send_draft", "j4")
}
