package hub

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func testClient(h *Hub, userID string) *Client {
	return &Client{
		hub:    h,
		userID: userID,
		send:   make(chan Event, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
}

func register(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	want := h.ConnectionCount(c.userID) + 1
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register timed out")
	}
	waitFor(t, func() bool { return h.ConnectionCount(c.userID) >= want })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case evt := <-c.send:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestEmitReachesAllUserConnections(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := testClient(h, "u1")
	b := testClient(h, "u1")
	register(t, h, a)
	register(t, h, b)

	h.Emit("u1", "notification", Notification{Type: "lecture_created", Message: "hi"})

	for _, c := range []*Client{a, b} {
		evt := recv(t, c)
		if evt.Event != "notification" {
			t.Fatalf("event = %s", evt.Event)
		}
		if evt.Timestamp.IsZero() {
			t.Fatal("timestamp not set")
		}
	}
}

func TestEmitScopedToUserRoom(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	mine := testClient(h, "u1")
	other := testClient(h, "u2")
	register(t, h, mine)
	register(t, h, other)

	h.Emit("u1", "attendance_updated", AttendanceUpdate{SubjectID: "s1", AttendancePercentage: 80})

	recv(t, mine)
	select {
	case evt := <-other.send:
		t.Fatalf("other user received %s", evt.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitToAbsentUserIsNoop(t *testing.T) {
	h := New()
	h.Emit("nobody", "notification", nil)
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := testClient(h, "u1")
	register(t, h, c)
	for i := 0; i < sendBuffer; i++ {
		c.send <- Event{Event: "filler"}
	}

	done := make(chan struct{})
	go func() {
		h.Emit("u1", "notification", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full client buffer")
	}
}

func TestUnregisterRemovesFromRoom(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := testClient(h, "u1")
	register(t, h, c)
	h.unregister <- c
	waitFor(t, func() bool { return h.ConnectionCount("u1") == 0 })

	// send must be closed so the write pump exits
	select {
	case _, open := <-c.send:
		if open {
			t.Fatal("send channel still open")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestRoomJoinAndExceptSemantics(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	a := testClient(h, "u1")
	b := testClient(h, "u2")
	register(t, h, a)
	register(t, h, b)

	h.joinRoom("study-group", a)
	h.joinRoom("study-group", b)

	h.emitRoom("study-group", a, Event{Event: "user_typing", Timestamp: time.Now()})

	if evt := recv(t, b); evt.Event != "user_typing" {
		t.Fatalf("event = %s", evt.Event)
	}
	select {
	case evt := <-a.send:
		t.Fatalf("sender received own event %s", evt.Event)
	case <-time.After(50 * time.Millisecond):
	}

	h.leaveRoom("study-group", b)
	h.emitRoom("study-group", nil, Event{Event: "user_typing"})
	select {
	case evt := <-b.send:
		t.Fatalf("left client received %s", evt.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInboundLectureAndSubjectRelays(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	sender := testClient(h, "u1")
	sibling := testClient(h, "u1")
	register(t, h, sender)
	register(t, h, sibling)

	sender.handle(inbound{Event: "lecture_created", Data: json.RawMessage(`{"title":"Graphs"}`)})
	evt := recv(t, sibling)
	if evt.Event != "lecture_notification" {
		t.Fatalf("event = %s", evt.Event)
	}
	n, ok := evt.Data.(Notification)
	if !ok || n.Type != "lecture_created" || !strings.Contains(n.Message, "Graphs") {
		t.Fatalf("payload = %+v", evt.Data)
	}

	sender.handle(inbound{Event: "subject_updated", Data: json.RawMessage(`{"name":"Algorithms"}`)})
	evt = recv(t, sibling)
	if evt.Event != "subject_notification" {
		t.Fatalf("event = %s", evt.Event)
	}
	n, ok = evt.Data.(Notification)
	if !ok || n.Type != "subject_updated" || !strings.Contains(n.Message, "Algorithms") {
		t.Fatalf("payload = %+v", evt.Data)
	}

	// The reporting connection itself is skipped.
	select {
	case evt := <-sender.send:
		t.Fatalf("sender received own relay %s", evt.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInboundAttendanceUpdateRelays(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	sender := testClient(h, "u1")
	sibling := testClient(h, "u1")
	register(t, h, sender)
	register(t, h, sibling)

	sender.handle(inbound{Event: "attendance_update", Data: json.RawMessage(`{"subjectId":"s1"}`)})
	evt := recv(t, sibling)
	if evt.Event != "attendance_updated" {
		t.Fatalf("event = %s", evt.Event)
	}
	data, ok := evt.Data.(map[string]any)
	if !ok || data["subjectId"] != "s1" || data["userId"] != "u1" {
		t.Fatalf("payload = %+v", evt.Data)
	}
}

func TestInboundGoalAchievedEchoesToSender(t *testing.T) {
	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	sender := testClient(h, "u1")
	register(t, h, sender)

	sender.handle(inbound{Event: "goal_achieved", Data: json.RawMessage(`{"goal":90}`)})
	evt := recv(t, sender)
	if evt.Event != "achievement" {
		t.Fatalf("event = %s", evt.Event)
	}
	n, ok := evt.Data.(Notification)
	if !ok || n.Type != "goal_achieved" || !strings.Contains(n.Message, "90%") {
		t.Fatalf("payload = %+v", evt.Data)
	}
}
