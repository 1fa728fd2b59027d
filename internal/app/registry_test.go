package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/dkeye/Resonance/internal/testutil"
)

func user(id string) domain.User {
	return domain.User{ID: domain.UserID(id), DisplayName: id}
}

func TestRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	_, first, err := r.Register("c1", user("u"), testutil.NewRecordingConn(), nil)
	if err != nil || !first {
		t.Fatalf("expected first connection, got first=%v err=%v", first, err)
	}
	_, first, err = r.Register("c2", user("u"), testutil.NewRecordingConn(), nil)
	if err != nil || first {
		t.Fatalf("expected second connection not first, got first=%v err=%v", first, err)
	}
	if _, _, err := r.Register("c1", user("v"), testutil.NewRecordingConn(), nil); !errors.Is(err, domain.ErrDuplicateConnection) {
		t.Fatalf("expected ErrDuplicateConnection, got %v", err)
	}
	if got := len(r.ConnectionsForUser("u")); got != 2 {
		t.Fatalf("expected 2 connections, got %d", got)
	}

	_, last, ok := r.Unregister("c1")
	if !ok || last {
		t.Fatalf("expected ok and not last, got ok=%v last=%v", ok, last)
	}
	_, last, ok = r.Unregister("c2")
	if !ok || !last {
		t.Fatalf("expected ok and last, got ok=%v last=%v", ok, last)
	}
	if _, _, ok := r.Unregister("c2"); ok {
		t.Fatalf("expected second unregister to be a no-op")
	}
	if r.Count() != 0 || len(r.ConnectionsForUser("u")) != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
}

func TestRegistryCancelAndReset(t *testing.T) {
	r := NewRegistry()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	r.Register("c1", user("a"), testutil.NewRecordingConn(), cancel1)
	r.Register("c2", user("b"), testutil.NewRecordingConn(), cancel2)

	if !r.Cancel("c1") {
		t.Fatalf("expected cancel to find c1")
	}
	if ctx1.Err() == nil {
		t.Fatalf("expected c1 context canceled")
	}
	if _, ok := r.Get("c1"); !ok {
		t.Fatalf("cancel must not unregister")
	}
	if r.Cancel("missing") {
		t.Fatalf("expected cancel of unknown id to report false")
	}

	r.Reset()
	if ctx2.Err() == nil {
		t.Fatalf("expected reset to cancel c2")
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry after reset, got %d", r.Count())
	}
}

func TestRegistryConcurrentChurn(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cid := core.ConnectionID(string(rune('a' + i)))
			if _, _, err := r.Register(cid, user("u"), testutil.NewRecordingConn(), nil); err != nil {
				t.Errorf("register: %v", err)
				return
			}
			r.Unregister(cid)
		}(i)
	}
	wg.Wait()
	if r.Count() != 0 || len(r.ConnectionsForUser("u")) != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
}
