package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/firstline/internal/triage"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStore_SetAndGet(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	key := triage.NewSessionKey("conv-1", "user-1")

	d := triage.NewDraft(time.Now())
	d.System = triage.SystemSAP
	if err := s.Set(ctx, key, d); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected draft to be found")
	}
	if got.ID != d.ID {
		t.Errorf("ID = %q, want %q", got.ID, d.ID)
	}
	if got.System != triage.SystemSAP {
		t.Errorf("System = %q, want %q", got.System, triage.SystemSAP)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := New()
	_, ok, err := s.Get(context.Background(), triage.NewSessionKey("nope", "nobody"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")

	d := triage.NewDraft(time.Now())
	d.MarkSent("l2-sap", time.Now())
	_ = s.Set(ctx, key, d)

	// mutating the caller's value must not leak into the store
	d.MarkSent("l3-lead", time.Now())

	got, _, _ := s.Get(ctx, key)
	got.MarkSent("other", time.Now())

	again, _, _ := s.Get(ctx, key)
	if len(again.ReportSentTo) != 1 {
		t.Errorf("ReportSentTo = %v, want only l2-sap", again.ReportSentTo)
	}
}

func TestStore_Clear(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")
	_ = s.Set(ctx, key, triage.NewDraft(time.Now()))

	if err := s.Clear(ctx, key); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Fatal("expected draft to be cleared")
	}
}

func TestStore_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	var evicted int
	s := New(WithClock(clock.Now), WithTTL(30*time.Minute), WithEvictHook(func(n int) { evicted += n }))
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")

	_ = s.Set(ctx, key, triage.NewDraft(clock.Now()))

	clock.Advance(30 * time.Minute)
	if _, ok, _ := s.Get(ctx, key); !ok {
		t.Fatal("draft at exactly the TTL should still be live")
	}

	clock.Advance(time.Second)
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Fatal("expected draft past TTL to be absent")
	}
	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
}

func TestStore_WriteRefreshesTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")

	_ = s.Set(ctx, key, triage.NewDraft(clock.Now()))
	clock.Advance(20 * time.Minute)

	_, err := s.Update(ctx, key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		if !ok {
			t.Fatal("expected live draft")
		}
		d.Symptom = triage.SymptomSlow
		return d, nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	clock.Advance(20 * time.Minute)
	got, ok, _ := s.Get(ctx, key)
	if !ok {
		t.Fatal("update should have refreshed the TTL")
	}
	if !got.UpdatedAt.Equal(clock.Now().Add(-20 * time.Minute)) {
		t.Errorf("UpdatedAt = %v, want store clock time of the update", got.UpdatedAt)
	}
}

func TestStore_PurgeTouchesOtherKeys(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	s := New(WithClock(clock.Now))
	ctx := context.Background()
	stale := triage.NewSessionKey("conv", "stale")
	fresh := triage.NewSessionKey("conv", "fresh")

	_ = s.Set(ctx, stale, triage.NewDraft(clock.Now()))
	clock.Advance(45 * time.Minute)
	_ = s.Set(ctx, fresh, triage.NewDraft(clock.Now()))

	s.mu.Lock()
	n := len(s.drafts)
	s.mu.Unlock()
	if n != 1 {
		t.Errorf("drafts held = %d, want 1 after purge-on-write", n)
	}
}

func TestStore_UpdateCreatesAndClears(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")

	got, err := s.Update(ctx, key, func(d *triage.Draft, ok bool) (*triage.Draft, error) {
		if ok || d != nil {
			t.Fatal("expected no draft on first update")
		}
		return triage.NewDraft(time.Now()), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got == nil {
		t.Fatal("expected created draft")
	}

	got, err = s.Update(ctx, key, func(*triage.Draft, bool) (*triage.Draft, error) { return nil, nil })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil draft after clearing update, got %+v", got)
	}
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Fatal("expected key to be cleared")
	}
}

func TestStore_UpdateErrorLeavesDraft(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")
	d := triage.NewDraft(time.Now())
	_ = s.Set(ctx, key, d)

	boom := errors.New("boom")
	_, err := s.Update(ctx, key, func(d *triage.Draft, _ bool) (*triage.Draft, error) {
		d.System = triage.SystemInfra
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	got, _, _ := s.Get(ctx, key)
	if got.System != triage.SystemUnknown {
		t.Errorf("System = %q, want unchanged %q", got.System, triage.SystemUnknown)
	}
}

func TestStore_UpdateSerializesSameKey(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	key := triage.NewSessionKey("conv", "user")
	_ = s.Set(ctx, key, triage.NewDraft(time.Now()))

	const n = 200
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, key, func(d *triage.Draft, _ bool) (*triage.Draft, error) {
				d.MarkSent(fmt.Sprintf("r-%d", i), time.Now())
				return d, nil
			})
		}()
	}
	wg.Wait()

	got, _, _ := s.Get(ctx, key)
	if len(got.ReportSentTo) != n {
		t.Errorf("ReportSentTo has %d entries, want %d (lost updates)", len(got.ReportSentTo), n)
	}

	s.mu.Lock()
	locks := len(s.locks)
	s.mu.Unlock()
	if locks != 0 {
		t.Errorf("key locks held after all updates = %d, want 0", locks)
	}
}

func TestStore_DifferentKeysDoNotWait(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	a := triage.NewSessionKey("conv", "a")
	b := triage.NewSessionKey("conv", "b")

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = s.Update(ctx, a, func(*triage.Draft, bool) (*triage.Draft, error) {
			close(entered)
			<-release
			return triage.NewDraft(time.Now()), nil
		})
	}()
	<-entered

	// a is held mid-update; b must still be writable and readable
	if err := s.Set(ctx, b, triage.NewDraft(time.Now())); err != nil {
		t.Fatalf("Set b: %v", err)
	}
	if _, ok, _ := s.Get(ctx, b); !ok {
		t.Fatal("expected draft for b")
	}

	close(release)
	<-done
}

func TestStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n * 2)

	for i := range n {
		key := triage.NewSessionKey(fmt.Sprintf("conv-%d", i), "user")

		go func() {
			defer wg.Done()
			_ = s.Set(ctx, key, triage.NewDraft(time.Now()))
		}()

		go func() {
			defer wg.Done()
			_, _, _ = s.Get(ctx, key)
			_ = s.Clear(ctx, key)
		}()
	}

	wg.Wait()
}
