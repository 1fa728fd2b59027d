package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Resonance/internal/adapters/store"
	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/app/orch"
	"github.com/dkeye/Resonance/internal/app/voice"
	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/dkeye/Resonance/internal/testutil"
	"github.com/gorilla/websocket"
)

func newTestController(t *testing.T, limiter *RoomRateLimiter) *SignalWSController {
	t.Helper()
	o := orch.New(orch.Deps{
		Store:  store.NewMemory(),
		Policy: app.SimplePolicy{},
		Voice:  voice.Options{DefaultCapacity: 4, MaxCapacity: 8},
	})
	return NewSignalWSController(o, limiter, nil, Options{})
}

func attach(t *testing.T, ctl *SignalWSController, cid, uid string) *testutil.RecordingConn {
	t.Helper()
	conn := testutil.NewRecordingConn()
	if _, err := ctl.Orch.Connect(core.ConnectionID(cid), domain.User{ID: domain.UserID(uid), DisplayName: uid}, conn, nil); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return conn
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	f, err := app.Encode(event, data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return f
}

func TestChatFlow(t *testing.T) {
	ctl := newTestController(t, nil)
	ctx := context.Background()
	a := attach(t, ctl, "ca", "A")
	b := attach(t, ctl, "cb", "B")

	ctl.handleSignal(ctx, "ca", frame(t, "chat:join", map[string]string{"chatId": "c1"}))
	ctl.handleSignal(ctx, "cb", frame(t, "chat:join", map[string]string{"chatId": "c1"}))
	ctl.handleSignal(ctx, "ca", frame(t, "message:send", map[string]string{"chatId": "c1", "content": "hi"}))
	ctl.handleSignal(ctx, "ca", frame(t, "message:typing", map[string]any{"chatId": "c1", "isTyping": true}))

	if a.Count(EventMessageReceive) != 1 || b.Count(EventMessageReceive) != 1 {
		t.Fatalf("expected message delivered to both members")
	}
	var msg ChatMessage
	_ = json.Unmarshal(b.Named(EventMessageReceive)[0].Data, &msg)
	if msg.SenderID != "A" || msg.Content != "hi" || msg.Type != "text" || msg.ID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if a.Count(EventMessageTyping) != 0 || b.Count(EventMessageTyping) != 1 {
		t.Fatalf("typing must skip the sender")
	}
}

func TestErrorGoesToOriginOnly(t *testing.T) {
	ctl := newTestController(t, nil)
	ctx := context.Background()
	a := attach(t, ctl, "ca", "A")
	b := attach(t, ctl, "cb", "B")

	ctl.handleSignal(ctx, "ca", frame(t, "voice:join-room", map[string]string{"roomId": "nope"}))

	errs := a.Named("voice:error")
	if len(errs) != 1 {
		t.Fatalf("expected one voice:error, got %d", len(errs))
	}
	var payload ErrorPayload
	_ = json.Unmarshal(errs[0].Data, &payload)
	if payload.Code != "room_not_found" || payload.Event != "voice:join-room" {
		t.Fatalf("unexpected error payload %+v", payload)
	}
	if b.Count("voice:error") != 0 {
		t.Fatalf("error must not reach other connections")
	}
}

func TestUnknownAndMalformedAreDropped(t *testing.T) {
	ctl := newTestController(t, nil)
	ctx := context.Background()
	a := attach(t, ctl, "ca", "A")
	a.Reset()

	ctl.handleSignal(ctx, "ca", []byte(`not json`))
	ctl.handleSignal(ctx, "ca", frame(t, "music:rewind", nil))
	ctl.handleSignal(ctx, "ca", frame(t, "chat:join", map[string]int{"chatId": 1}))

	if n := len(a.Events()); n != 0 {
		t.Fatalf("expected nothing sent back, got %d events", n)
	}
	if _, ok := ctl.Orch.Registry.Get("ca"); !ok {
		t.Fatalf("connection must stay registered")
	}
}

func TestVoiceFlow(t *testing.T) {
	ctl := newTestController(t, nil)
	ctx := context.Background()
	h := attach(t, ctl, "ch", "H")
	l := attach(t, ctl, "cl", "L")

	ctl.handleSignal(ctx, "ch", frame(t, "voice:create-room", map[string]any{"name": "lobby"}))
	created := h.Named(voice.EventRoomCreated)
	if len(created) != 1 {
		t.Fatalf("expected room-created, got %d", len(created))
	}
	var snap RoomSnapshot
	_ = json.Unmarshal(created[0].Data, &snap)
	id := snap.Room.ID

	ctl.handleSignal(ctx, "cl", frame(t, "voice:join-room", map[string]any{"roomId": id}))
	if l.Count(EventRoomState) != 1 {
		t.Fatalf("expected joiner to get room state")
	}
	if h.Count(voice.EventUserJoined) != 1 || l.Count(voice.EventUserJoined) != 1 {
		t.Fatalf("expected user-joined to everyone in the room")
	}

	ctl.handleSignal(ctx, "ch", frame(t, "voice:mute", map[string]any{"roomId": id, "targetUserId": "L", "isMuted": true}))
	if l.Count(voice.EventUserMuted) != 1 {
		t.Fatalf("expected mute broadcast")
	}

	ctl.handleSignal(ctx, "cl", frame(t, "voice:end-room", map[string]any{"roomId": id}))
	if l.Count("voice:error") != 1 {
		t.Fatalf("expected permission error for non-host end")
	}

	ctl.handleSignal(ctx, "ch", frame(t, "voice:end-room", map[string]any{"roomId": id}))
	if l.Count(voice.EventRoomEnded) != 1 || h.Count(voice.EventRoomEnded) != 1 {
		t.Fatalf("expected room-ended to both")
	}
}

func TestRelayFlow(t *testing.T) {
	ctl := newTestController(t, nil)
	ctx := context.Background()
	a := attach(t, ctl, "ca", "A")
	b := attach(t, ctl, "cb", "B")

	ctl.handleSignal(ctx, "ca", frame(t, "webrtc:ice-candidate", map[string]any{
		"targetUserId": "B",
		"candidate":    map[string]string{"candidate": "candidate:1 1 udp 1 10.0.0.1 5000 typ host"},
	}))
	ctl.handleSignal(ctx, "ca", frame(t, "webrtc:offer", map[string]any{"targetUserId": "offline", "payload": map[string]string{"sdp": "x"}}))

	if b.Count("webrtc:ice-candidate") != 1 {
		t.Fatalf("expected candidate relayed")
	}
	if a.Count("webrtc:error") != 0 {
		t.Fatalf("offline target must not produce an error")
	}
}

func TestThrottle(t *testing.T) {
	ctl := newTestController(t, NewRoomRateLimiter(1, time.Minute))
	ctx := context.Background()
	a := attach(t, ctl, "ca", "A")
	ctl.handleSignal(ctx, "ca", frame(t, "chat:join", map[string]string{"chatId": "c"}))

	ctl.handleSignal(ctx, "ca", frame(t, "message:send", map[string]string{"chatId": "c", "content": "1"}))
	ctl.handleSignal(ctx, "ca", frame(t, "message:send", map[string]string{"chatId": "c", "content": "2"}))

	if a.Count(EventMessageReceive) != 1 {
		t.Fatalf("expected one message through")
	}
	errs := a.Named("message:error")
	if len(errs) != 1 {
		t.Fatalf("expected one rate limit error, got %d", len(errs))
	}
	var payload ErrorPayload
	_ = json.Unmarshal(errs[0].Data, &payload)
	if payload.Code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %s", payload.Code)
	}
}

func TestWebsocketLifecycle(t *testing.T) {
	ctl := newTestController(t, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctl.Serve(context.Background(), ws, domain.User{ID: "U", DisplayName: "U"})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	read := func() testutil.Event {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev testutil.Event
		if err := ws.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		return ev
	}

	ready := read()
	if ready.Event != EventConnectionReady {
		t.Fatalf("expected %s first, got %s", EventConnectionReady, ready.Event)
	}
	var payload ReadyPayload
	_ = json.Unmarshal(ready.Data, &payload)
	if payload.UserID != "U" || payload.ConnectionID == "" {
		t.Fatalf("unexpected ready payload %+v", payload)
	}

	if err := ws.WriteJSON(map[string]any{"event": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := read(); ev.Event != "pong" {
		t.Fatalf("expected pong, got %s", ev.Event)
	}

	_ = ws.Close()
	deadline := time.Now().Add(5 * time.Second)
	for ctl.Orch.Registry.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected connection cleaned up after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
