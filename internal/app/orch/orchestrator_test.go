package orch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Resonance/internal/adapters/store"
	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/app/voice"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/dkeye/Resonance/internal/testutil"
)

func newOrch(t *testing.T) *Orchestrator {
	t.Helper()
	return New(Deps{
		Store:  store.NewMemory(),
		Policy: app.SimplePolicy{},
		Voice:  voice.Options{DefaultCapacity: 10, MaxCapacity: 50},
	})
}

func connect(t *testing.T, o *Orchestrator, cid, uid string) *testutil.RecordingConn {
	t.Helper()
	conn := testutil.NewRecordingConn()
	if _, err := o.Connect(core.ConnectionID(cid), domain.User{ID: domain.UserID(uid), DisplayName: uid}, conn, nil); err != nil {
		t.Fatalf("connect %s: %v", cid, err)
	}
	return conn
}

func TestDisconnectIsIdempotent(t *testing.T) {
	o := newOrch(t)
	ctx := context.Background()
	a := connect(t, o, "ca", "A")
	connect(t, o, "cb", "B")

	room, err := o.CreateVoice(ctx, "ca", domain.RoomConfig{Name: "r"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := o.JoinVoice(ctx, "cb", room.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if a.Count(voice.EventUserJoined) != 1 {
		t.Fatalf("expected host to see B join")
	}

	o.Disconnect("cb")
	o.Disconnect("cb")

	if got := a.Count(voice.EventUserLeft); got != 1 {
		t.Fatalf("expected exactly one user-left, got %d", got)
	}
	if got := a.Count(app.EventPresenceOffline); got != 1 {
		t.Fatalf("expected exactly one offline, got %d", got)
	}
	r, _ := o.Voice.Get(ctx, room.ID)
	if r.HasParticipant("B") {
		t.Fatalf("B must be gone from the room")
	}
}

func TestConcurrentDisconnect(t *testing.T) {
	o := newOrch(t)
	ctx := context.Background()
	a := connect(t, o, "ca", "A")
	connect(t, o, "cb", "B")

	room, err := o.CreateVoice(ctx, "ca", domain.RoomConfig{Name: "r"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := o.JoinVoice(ctx, "cb", room.ID); err != nil {
		t.Fatalf("join: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Disconnect("cb")
		}()
	}
	wg.Wait()

	if got := a.Count(voice.EventUserLeft); got != 1 {
		t.Fatalf("expected exactly one user-left, got %d", got)
	}
	if got := a.Count(app.EventPresenceOffline); got != 1 {
		t.Fatalf("expected exactly one offline, got %d", got)
	}
	if o.Registry.Count() != 1 {
		t.Fatalf("expected only A registered, got %d", o.Registry.Count())
	}
}

func presenceEvents(conn *testutil.RecordingConn) []string {
	var out []string
	for _, ev := range conn.Events() {
		if strings.HasPrefix(ev.Event, "presence:") {
			out = append(out, ev.Event)
		}
	}
	return out
}

func TestReconnectDuringVoiceCleanup(t *testing.T) {
	flaky := testutil.NewFlakyStore(store.NewMemory())
	o := New(Deps{
		Store:  flaky,
		Policy: app.SimplePolicy{},
		Voice:  voice.Options{DefaultCapacity: 10, MaxCapacity: 50},
	})
	ctx := context.Background()
	w := connect(t, o, "w", "watcher")
	connect(t, o, "c1", "U")
	if _, err := o.CreateVoice(ctx, "c1", domain.RoomConfig{Name: "r"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	entered, release := flaky.HoldSaves()
	defer release()
	done := make(chan struct{})
	go func() {
		o.Disconnect("c1")
		close(done)
	}()
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected cleanup to reach the store")
	}

	c2 := connect(t, o, "c2", "U")
	release()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("disconnect did not finish")
	}

	got := presenceEvents(w)
	want := []string{app.EventPresenceOnline, app.EventPresenceOffline, app.EventPresenceOnline}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if n := c2.Count(app.EventPresenceOffline); n != 0 {
		t.Fatalf("expected the new connection to miss its own offline, got %d", n)
	}
	if !o.Presence.IsOnline("U") {
		t.Fatalf("expected U online")
	}
}

func TestHostDisconnectFailsOver(t *testing.T) {
	o := newOrch(t)
	ctx := context.Background()
	connect(t, o, "ch", "H")
	a := connect(t, o, "ca", "A")

	room, _ := o.CreateVoice(ctx, "ch", domain.RoomConfig{Name: "r"})
	if _, err := o.JoinVoice(ctx, "ca", room.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	o.Disconnect("ch")

	left := a.Named(voice.EventUserLeft)
	if len(left) != 1 {
		t.Fatalf("expected one user-left, got %d", len(left))
	}
	var payload voice.UserLeft
	if err := json.Unmarshal(left[0].Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.UserID != "H" || payload.HostID != "A" {
		t.Fatalf("expected H left and A host, got %+v", payload)
	}

	o.Disconnect("ca")
	r, err := o.Voice.Get(ctx, room.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Active || r.EndedAt == nil {
		t.Fatalf("expected room ended after last disconnect")
	}
}

func TestSwitchingVoiceRooms(t *testing.T) {
	o := newOrch(t)
	ctx := context.Background()
	connect(t, o, "c1", "U1")
	connect(t, o, "c2", "U2")
	me := connect(t, o, "c3", "U3")

	r1, _ := o.CreateVoice(ctx, "c1", domain.RoomConfig{Name: "one"})
	r2, _ := o.CreateVoice(ctx, "c2", domain.RoomConfig{Name: "two"})

	if _, err := o.JoinVoice(ctx, "c3", r1.ID); err != nil {
		t.Fatalf("join r1: %v", err)
	}
	if _, err := o.JoinVoice(ctx, "c3", r2.ID); err != nil {
		t.Fatalf("join r2: %v", err)
	}
	got1, _ := o.Voice.Get(ctx, r1.ID)
	got2, _ := o.Voice.Get(ctx, r2.ID)
	if got1.HasParticipant("U3") || !got2.HasParticipant("U3") {
		t.Fatalf("expected U3 only in r2")
	}
	sess, _ := o.Registry.Get("c3")
	if cur, ok := sess.CurrentVoiceRoom(); !ok || cur != r2.ID {
		t.Fatalf("expected current voice room r2, got %s", cur)
	}
	if o.Rooms.IsMember("c3", domain.VoiceRoomKey(r1.ID)) {
		t.Fatalf("expected c3 detached from r1")
	}

	me.Reset()
	if err := o.MuteVoice(ctx, "c2", r1.ID, "U1", true); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
	if me.Count(voice.EventUserMuted) != 0 {
		t.Fatalf("non-member must not see r1 events")
	}
}

func TestHostEndsRoom(t *testing.T) {
	o := newOrch(t)
	ctx := context.Background()
	connect(t, o, "ch", "H")
	a := connect(t, o, "ca", "A")
	room, _ := o.CreateVoice(ctx, "ch", domain.RoomConfig{Name: "r"})
	o.JoinVoice(ctx, "ca", room.ID)

	if err := o.EndVoice(ctx, "ca", room.ID); !errors.Is(err, domain.ErrPermission) {
		t.Fatalf("expected ErrPermission, got %v", err)
	}
	if err := o.EndVoice(ctx, "ch", room.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if a.Count(voice.EventRoomEnded) != 1 {
		t.Fatalf("expected participant notified of end")
	}
	sess, _ := o.Registry.Get("ca")
	if _, ok := sess.CurrentVoiceRoom(); ok {
		t.Fatalf("expected voice room cleared")
	}
	if _, err := o.JoinVoice(ctx, "ca", room.ID); !errors.Is(err, domain.ErrRoomInactive) {
		t.Fatalf("expected ErrRoomInactive, got %v", err)
	}
}

func TestMultiDevicePresence(t *testing.T) {
	o := newOrch(t)
	w := connect(t, o, "w", "watcher")
	connect(t, o, "phone", "U")
	connect(t, o, "desk", "U")

	if got := w.Count(app.EventPresenceOnline); got != 1 {
		t.Fatalf("expected one online, got %d", got)
	}
	o.Disconnect("phone")
	if w.Count(app.EventPresenceOffline) != 0 {
		t.Fatalf("expected no offline while desk remains")
	}
	o.Disconnect("desk")
	if got := w.Count(app.EventPresenceOffline); got != 1 {
		t.Fatalf("expected one offline, got %d", got)
	}
}

func TestPartyChannel(t *testing.T) {
	o := newOrch(t)
	a := connect(t, o, "ca", "A")
	b := connect(t, o, "cb", "B")
	key := domain.PartyRoomKey("p1")

	o.JoinChannel("ca", key)
	o.JoinChannel("cb", key)
	if a.Count(EventPartyUserJoined) != 1 || b.Count(EventPartyUserJoined) != 0 {
		t.Fatalf("expected only A to see B join")
	}
	if err := o.PublishToChannel("cb", domain.PartyRoomKey("other"), "party:sync", nil, false); !errors.Is(err, domain.ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom, got %v", err)
	}
	o.Disconnect("cb")
	if a.Count(EventPartyUserLeft) != 1 {
		t.Fatalf("expected party leave on disconnect")
	}
}

func TestShutdown(t *testing.T) {
	o := newOrch(t)
	ctx := context.Background()
	connect(t, o, "ca", "A")
	room, _ := o.CreateVoice(ctx, "ca", domain.RoomConfig{Name: "r"})

	o.Shutdown()
	if o.Registry.Count() != 0 {
		t.Fatalf("expected empty registry")
	}
	r, err := o.Voice.Get(ctx, room.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Active {
		t.Fatalf("expected room ended on shutdown")
	}
}
