package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/Resonance/internal/domain"
	"github.com/dkeye/Resonance/internal/testutil"
)

type staticFriends map[domain.UserID][]domain.UserID

func (s staticFriends) Friends(_ context.Context, uid domain.UserID) ([]domain.UserID, error) {
	if ids, ok := s[uid]; ok {
		return ids, nil
	}
	return nil, errors.New("unknown user")
}

func TestPresenceAggregatesDevices(t *testing.T) {
	f := newFixture(nil)
	p := NewPresence(f.reg, f.out, nil)
	watcher := f.connect("w", "watcher", nil)

	s1, first, _ := f.reg.Register("p1", user("u"), testutil.NewRecordingConn(), nil)
	p.Connected(s1, first)
	s2, first, _ := f.reg.Register("p2", user("u"), testutil.NewRecordingConn(), nil)
	p.Connected(s2, first)
	if got := watcher.Count(EventPresenceOnline); got != 1 {
		t.Fatalf("expected one online event, got %d", got)
	}
	if !p.IsOnline("u") || p.ConnectionCount("u") != 2 {
		t.Fatalf("expected u online with 2 connections")
	}

	s, last, _ := f.reg.Unregister("p1")
	p.Disconnected(s, last)
	if watcher.Count(EventPresenceOffline) != 0 || !p.IsOnline("u") {
		t.Fatalf("u must stay online while a device remains")
	}
	s, last, _ = f.reg.Unregister("p2")
	p.Disconnected(s, last)
	if got := watcher.Count(EventPresenceOffline); got != 1 {
		t.Fatalf("expected exactly one offline event, got %d", got)
	}
	if p.IsOnline("u") {
		t.Fatalf("expected u offline")
	}
}

func TestPresenceFriendsAudience(t *testing.T) {
	f := newFixture(nil)
	p := NewPresence(f.reg, f.out, staticFriends{"u": {"friend"}})
	friend := f.connect("f", "friend", nil)
	stranger := f.connect("s", "stranger", nil)

	sess, first, _ := f.reg.Register("c", user("u"), testutil.NewRecordingConn(), nil)
	p.Connected(sess, first)
	if friend.Count(EventPresenceOnline) != 1 {
		t.Fatalf("expected friend notified")
	}
	if stranger.Count(EventPresenceOnline) != 0 {
		t.Fatalf("stranger must not be notified")
	}
}

func TestPresenceDirectoryFailure(t *testing.T) {
	f := newFixture(nil)
	p := NewPresence(f.reg, f.out, staticFriends{})
	f.connect("w", "watcher", nil)
	res := p.Announce("nobody", EventPresenceOnline, nil)
	if res.SendTo != 0 {
		t.Fatalf("expected no delivery on lookup failure, got %d", res.SendTo)
	}
}

func TestPresenceOfflineSkippedAfterReconnect(t *testing.T) {
	f := newFixture(nil)
	p := NewPresence(f.reg, f.out, nil)
	watcher := f.connect("w", "watcher", nil)

	s1, first, _ := f.reg.Register("p1", user("u"), testutil.NewRecordingConn(), nil)
	p.Connected(s1, first)
	gone, last, _ := f.reg.Unregister("p1")
	s2, first, _ := f.reg.Register("p2", user("u"), testutil.NewRecordingConn(), nil)
	p.Disconnected(gone, last)
	p.Connected(s2, first)

	if got := watcher.Count(EventPresenceOffline); got != 0 {
		t.Fatalf("expected no offline once u is back, got %d", got)
	}
	if !p.IsOnline("u") {
		t.Fatalf("expected u online")
	}
}

func TestPresenceLockIsPerUser(t *testing.T) {
	f := newFixture(nil)
	p := NewPresence(f.reg, f.out, nil)

	unlock := p.Lock("u")
	other := p.Lock("v")
	other()

	acquired := make(chan struct{})
	go func() {
		p.Lock("u")()
		close(acquired)
	}()
	select {
	case <-acquired:
		t.Fatalf("second lock for u must wait")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("expected lock released")
	}

	p.mu.Lock()
	n := len(p.locks)
	p.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected idle locks dropped, got %d", n)
	}
}
