package chat

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/naveenspark/chatsync/pkg/domain"
)

func messageEvent(m domain.Message) domain.Event {
	return domain.Event{Type: domain.EventMessage, RoomID: m.RoomID, Message: &m}
}

func TestDuplicateMessageEventInsertsOnce(t *testing.T) {
	s := newTestStore(t, nil, nil)
	ev := messageEvent(msg("m1", "r", 1))

	s.HandleEvent(ev)
	s.HandleEvent(ev)

	if got := ids(s.Messages("r")); !slices.Equal(got, []string{"m1"}) {
		t.Errorf("Messages() = %v, want [m1]", got)
	}
	if v := testutil.ToFloat64(s.Metrics().DuplicatesSuppressed); v != 1 {
		t.Errorf("duplicates suppressed = %v, want 1", v)
	}
}

func TestMessageEventUpdatesRoomActivity(t *testing.T) {
	api := &fakeAPI{rooms: []domain.Room{{ID: "r"}}}
	s := newTestStore(t, api, nil)
	if err := s.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}
	m := msg("m1", "r", 30)
	s.HandleEvent(messageEvent(m))

	r, _ := s.Room("r")
	if r.LastMessage == nil || r.LastMessage.ID != "m1" || !r.LastActivityAt.Equal(m.CreatedAt) {
		t.Errorf("room = %+v, want last message m1", r)
	}
}

func TestMessageForInactiveRoomViaConnection(t *testing.T) {
	api := &fakeAPI{rooms: []domain.Room{{ID: "active"}, {ID: "other", UnreadCount: 2}}}
	tr := newFakeTransport()
	s := newTestStore(t, api, tr)
	ctx := context.Background()
	if err := s.LoadRooms(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.ConnectSocket(ctx); err != nil {
		t.Fatal(err)
	}
	s.SetActiveRoom("active")

	tr.emit(messageEvent(msg("x1", "other", 1)))
	if got := ids(s.Messages("other")); !slices.Equal(got, []string{"x1"}) {
		t.Errorf("Messages(other) = %v, want [x1]", got)
	}
	if n := s.UnreadCount("other"); n != 2 {
		t.Errorf("UnreadCount(other) = %d, want unchanged 2 by default", n)
	}

	// The active room's events reach the store once, not once per listener.
	tr.emit(domain.Event{Type: domain.EventTyping, RoomID: "active", UserID: "u2", IsTyping: true})
	if v := testutil.ToFloat64(s.Metrics().Events.WithLabelValues(string(domain.EventTyping))); v != 1 {
		t.Errorf("typing events handled = %v, want 1", v)
	}
}

func TestUnreadOnPush(t *testing.T) {
	api := &fakeAPI{rooms: []domain.Room{{ID: "active"}, {ID: "other"}}}
	s := newTestStore(t, api, nil, WithUnreadOnPush(true))
	if err := s.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.SetActiveRoom("active")

	fromSelf := msg("x3", "other", 3)
	fromSelf.Sender = self

	s.HandleEvent(messageEvent(msg("x1", "other", 1)))
	s.HandleEvent(messageEvent(msg("x1", "other", 1))) // duplicate
	s.HandleEvent(messageEvent(msg("x2", "other", 2)))
	s.HandleEvent(messageEvent(fromSelf))
	s.HandleEvent(messageEvent(msg("a1", "active", 1)))

	if n := s.UnreadCount("other"); n != 2 {
		t.Errorf("UnreadCount(other) = %d, want 2", n)
	}
	if n := s.UnreadCount("active"); n != 0 {
		t.Errorf("UnreadCount(active) = %d, want 0", n)
	}
}

func TestTypingDeduplicates(t *testing.T) {
	s := newTestStore(t, nil, nil)
	s.SetActiveRoom("r")
	ev := domain.Event{Type: domain.EventTyping, RoomID: "r", UserID: "u2", UserName: "Ann", IsTyping: true}

	s.HandleEvent(ev)
	s.HandleEvent(ev)
	got := s.TypingUsers("r")
	if len(got) != 1 || got[0].Name != "Ann" {
		t.Fatalf("TypingUsers() = %v, want [Ann]", got)
	}

	ev.IsTyping = false
	s.HandleEvent(ev)
	if got := s.TypingUsers("r"); len(got) != 0 {
		t.Errorf("TypingUsers() = %v after stop, want empty", got)
	}
}

func TestTypingIgnored(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.Event
	}{
		{"inactive room", domain.Event{Type: domain.EventTyping, RoomID: "other", UserID: "u2", IsTyping: true}},
		{"own signal", domain.Event{Type: domain.EventTyping, RoomID: "r", UserID: self.ID, IsTyping: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, nil, nil)
			s.SetActiveRoom("r")
			s.HandleEvent(tt.ev)
			if got := s.TypingUsers(tt.ev.RoomID); len(got) != 0 {
				t.Errorf("TypingUsers() = %v, want empty", got)
			}
		})
	}
}

func TestTypingExpiresAfterTTL(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, nil, nil, WithClock(clock.Now), WithTypingTTL(6*time.Second))
	s.SetActiveRoom("r")
	ev := domain.Event{Type: domain.EventTyping, RoomID: "r", UserID: "u2", IsTyping: true}

	s.HandleEvent(ev)
	clock.Advance(4 * time.Second)
	s.HandleEvent(ev) // refresh
	clock.Advance(4 * time.Second)
	if len(s.TypingUsers("r")) != 1 {
		t.Fatal("refreshed indicator expired early")
	}
	clock.Advance(3 * time.Second)
	if got := s.TypingUsers("r"); len(got) != 0 {
		t.Errorf("TypingUsers() = %v after TTL, want empty", got)
	}
	if v := testutil.ToFloat64(s.Metrics().TypingExpired); v != 1 {
		t.Errorf("typing expired = %v, want 1", v)
	}
}

func TestTypingTimerPrunes(t *testing.T) {
	s := newTestStore(t, nil, nil, WithTypingTTL(30*time.Millisecond))
	s.SetActiveRoom("r")
	s.HandleEvent(domain.Event{Type: domain.EventTyping, RoomID: "r", UserID: "u2", IsTyping: true})

	eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.typing["r"]) == 0
	}, "typing timer to prune the entry")
}

func TestMembershipEventReloadsActiveRoom(t *testing.T) {
	api := &fakeAPI{
		rooms: []domain.Room{{ID: "r", Participants: []domain.ChatUser{{ID: "me"}}}},
		roomByID: map[string]domain.Room{
			"r": {ID: "r", Participants: []domain.ChatUser{{ID: "me"}, {ID: "u5"}}},
		},
	}
	s := newTestStore(t, api, nil)
	if err := s.LoadRooms(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.SetActiveRoom("r")

	s.HandleEvent(domain.Event{Type: domain.EventUserJoined, RoomID: "r", UserID: "u5"})
	eventually(t, func() bool {
		r, _ := s.Room("r")
		return r.HasParticipant("u5")
	}, "active room reload")

	s.HandleEvent(domain.Event{Type: domain.EventUserLeft, RoomID: "elsewhere", UserID: "u5"})
	time.Sleep(20 * time.Millisecond)
	api.mu.Lock()
	calls := slices.Clone(api.getRoomCalls)
	api.mu.Unlock()
	if !slices.Equal(calls, []string{"r"}) {
		t.Errorf("GetRoom calls = %v, want [r]", calls)
	}
}

func TestEditDeleteReactionEvents(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m2", "r", 2), msg("m1", "r", 1)}}}
	s := newTestStore(t, api, nil)
	if err := s.LoadMessages(context.Background(), "r", 1); err != nil {
		t.Fatal(err)
	}

	edited := domain.Message{ID: "m1", RoomID: "r", Content: "edited", Edited: true}
	s.HandleEvent(domain.Event{Type: domain.EventMessageEdited, RoomID: "r", Message: &edited})
	s.HandleEvent(domain.Event{Type: domain.EventMessageDeleted, RoomID: "r", MessageID: "m2"})
	s.HandleEvent(domain.Event{Type: domain.EventReaction, RoomID: "r", MessageID: "m1",
		Reactions: domain.Reactions{"🔥": {"u3"}}})
	s.HandleEvent(domain.Event{Type: domain.EventMessageDeleted, RoomID: "r", MessageID: "missing"})

	seq := s.Messages("r")
	if len(seq) != 2 {
		t.Fatalf("len(Messages()) = %d, want 2", len(seq))
	}
	if seq[0].Content != "edited" || !seq[0].Edited {
		t.Errorf("m1 = %+v, want edited content", seq[0])
	}
	if !seq[0].Reactions.Has("🔥", "u3") {
		t.Errorf("m1 reactions = %v", seq[0].Reactions)
	}
	if !seq[1].Deleted {
		t.Error("m2 not tombstoned")
	}
}

func TestUnknownEventIgnored(t *testing.T) {
	s := newTestStore(t, nil, nil)
	s.HandleEvent(domain.Event{Type: "presence", RoomID: "r"})
	s.HandleEvent(domain.Event{Type: domain.EventMessage, RoomID: "r"}) // no message
	if len(s.Messages("r")) != 0 {
		t.Error("ignored events changed state")
	}
}
