package chat

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/naveenspark/chatsync/pkg/client"
	"github.com/naveenspark/chatsync/pkg/domain"
)

func TestLoadMessagesPaginationOrdering(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{
		1: {msg("m6", "r", 6), msg("m5", "r", 5), msg("m4", "r", 4)},
		// m4 overlaps page 1 because a message arrived between fetches
		2: {msg("m4", "r", 4), msg("m3", "r", 3), msg("m2", "r", 2)},
	}}
	s := newTestStore(t, api, nil, WithPageSize(3))
	ctx := context.Background()

	if err := s.LoadMessages(ctx, "r", 1); err != nil {
		t.Fatalf("LoadMessages(1) error: %v", err)
	}
	if got := ids(s.Messages("r")); !slices.Equal(got, []string{"m4", "m5", "m6"}) {
		t.Fatalf("page 1 = %v, want oldest first [m4 m5 m6]", got)
	}
	if !s.HasMoreMessages("r") {
		t.Error("HasMoreMessages() = false after a full page")
	}

	if err := s.LoadMessages(ctx, "r", 2); err != nil {
		t.Fatalf("LoadMessages(2) error: %v", err)
	}
	got := ids(s.Messages("r"))
	if !slices.Equal(got, []string{"m2", "m3", "m4", "m5", "m6"}) {
		t.Errorf("after page 2 = %v, want [m2 m3 m4 m5 m6]", got)
	}
	seq := s.Messages("r")
	for i := 1; i < len(seq); i++ {
		if seq[i].CreatedAt.Before(seq[i-1].CreatedAt) {
			t.Errorf("sequence not chronological at %d", i)
		}
	}

	api.pages[3] = []domain.Message{msg("m1", "r", 1)}
	if err := s.LoadMessages(ctx, "r", 3); err != nil {
		t.Fatal(err)
	}
	if s.HasMoreMessages("r") {
		t.Error("HasMoreMessages() = true after a short page")
	}
	if s.LoadingMessages("r") {
		t.Error("LoadingMessages() left set")
	}
}

func TestLoadMessagesFirstPageReplaces(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m2", "r", 2), msg("m1", "r", 1)}}}
	s := newTestStore(t, api, nil)
	ctx := context.Background()
	if err := s.LoadMessages(ctx, "r", 1); err != nil {
		t.Fatal(err)
	}
	api.pages[1] = []domain.Message{msg("m3", "r", 3)}
	if err := s.LoadMessages(ctx, "r", 1); err != nil {
		t.Fatal(err)
	}
	if got := ids(s.Messages("r")); !slices.Equal(got, []string{"m3"}) {
		t.Errorf("Messages() = %v, want [m3]", got)
	}
}

func TestLoadMessagesFirstPageKeepsNewerArrivals(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m1", "r", 1)}}}
	s := newTestStore(t, api, nil)

	// Delivered after the server cut the page.
	older, newer := msg("m0", "r", 0), msg("m5", "r", 5)
	s.HandleEvent(domain.Event{Type: domain.EventMessage, RoomID: "r", Message: &older})
	s.HandleEvent(domain.Event{Type: domain.EventMessage, RoomID: "r", Message: &newer})

	if err := s.LoadMessages(context.Background(), "r", 1); err != nil {
		t.Fatal(err)
	}
	if got := ids(s.Messages("r")); !slices.Equal(got, []string{"m1", "m5"}) {
		t.Errorf("Messages() = %v, want [m1 m5]", got)
	}
}

func TestLoadMessagesFailureKeepsSequence(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m1", "r", 1)}}}
	s := newTestStore(t, api, nil)
	if err := s.LoadMessages(context.Background(), "r", 1); err != nil {
		t.Fatal(err)
	}
	api.setErr(errBoom)
	if err := s.LoadMessages(context.Background(), "r", 2); err == nil {
		t.Fatal("expected error")
	}
	expectNotice(t, s, "Failed to load messages")
	if got := ids(s.Messages("r")); !slices.Equal(got, []string{"m1"}) {
		t.Errorf("Messages() = %v, want [m1]", got)
	}
}

func TestDeleteMessageLeavesTombstone(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m3", "r", 3), msg("m2", "r", 2), msg("m1", "r", 1)}}}
	s := newTestStore(t, api, nil)
	ctx := context.Background()
	if err := s.LoadMessages(ctx, "r", 1); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteMessage(ctx, "r", "m2"); err != nil {
		t.Fatalf("DeleteMessage() error: %v", err)
	}
	seq := s.Messages("r")
	if got := ids(seq); !slices.Equal(got, []string{"m1", "m2", "m3"}) {
		t.Fatalf("Messages() = %v, want [m1 m2 m3]", got)
	}
	if !seq[1].Deleted {
		t.Error("m2 not flagged deleted")
	}
	if seq[0].Deleted || seq[2].Deleted {
		t.Error("neighbours flagged deleted")
	}

	api.setErr(errBoom)
	if err := s.DeleteMessage(ctx, "r", "m3"); err == nil {
		t.Fatal("expected error")
	}
	expectNotice(t, s, "Failed to delete message")
	if s.Messages("r")[2].Deleted {
		t.Error("m3 flagged deleted despite failure")
	}
}

func TestEditMessage(t *testing.T) {
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m1", "r", 1)}}}
	s := newTestStore(t, api, nil)
	ctx := context.Background()
	if err := s.LoadMessages(ctx, "r", 1); err != nil {
		t.Fatal(err)
	}

	api.editFn = func(roomID, messageID, content string) (*domain.Message, error) {
		if got := s.Messages("r")[0].Content; got != "content m1" {
			t.Errorf("content changed before confirmation: %q", got)
		}
		return &domain.Message{ID: messageID, RoomID: roomID, Content: strings.ToUpper(content), Edited: true}, nil
	}
	if err := s.EditMessage(ctx, "r", "m1", "fixed"); err != nil {
		t.Fatalf("EditMessage() error: %v", err)
	}
	m := s.Messages("r")[0]
	if m.Content != "FIXED" || !m.Edited {
		t.Errorf("message = %+v, want server content FIXED and edited", m)
	}
	if m.Sender.ID != "u2" {
		t.Error("merge dropped the sender")
	}

	api.editFn = nil
	api.setErr(errBoom)
	if err := s.EditMessage(ctx, "r", "m1", "again"); err == nil {
		t.Fatal("expected error")
	}
	expectNotice(t, s, "Failed to edit message")
	if got := s.Messages("r")[0].Content; got != "FIXED" {
		t.Errorf("content = %q after failed edit, want FIXED", got)
	}
}

func TestReactToMessageTogglesAction(t *testing.T) {
	reacted := msg("m1", "r", 1)
	reacted.Reactions = domain.Reactions{"👍": {"me", "u2"}}
	api := &fakeAPI{pages: map[int][]domain.Message{1: {msg("m2", "r", 2), reacted}}}
	s := newTestStore(t, api, nil)
	ctx := context.Background()
	if err := s.LoadMessages(ctx, "r", 1); err != nil {
		t.Fatal(err)
	}

	api.reactFn = func(roomID, messageID, emoji, action string) (domain.Reactions, error) {
		if action == client.ReactionRemove {
			return domain.Reactions{"👍": {"u2"}}, nil
		}
		return domain.Reactions{"👍": {"me"}, "🎉": {"u3"}}, nil
	}

	if err := s.ReactToMessage(ctx, "r", "m1", "👍"); err != nil {
		t.Fatalf("ReactToMessage(m1) error: %v", err)
	}
	if err := s.ReactToMessage(ctx, "r", "m2", "👍"); err != nil {
		t.Fatalf("ReactToMessage(m2) error: %v", err)
	}
	if !slices.Equal(api.reactActions, []string{client.ReactionRemove, client.ReactionAdd}) {
		t.Errorf("actions = %v, want [remove add]", api.reactActions)
	}

	seq := s.Messages("r")
	if seq[0].Reactions.Has("👍", "me") {
		t.Error("m1 still shows own reaction after remove")
	}
	if !seq[1].Reactions.Has("🎉", "u3") {
		t.Errorf("m2 reactions = %v, want the server's map", seq[1].Reactions)
	}
}

func TestReactToMissingMessageIsNoop(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, nil)
	if err := s.ReactToMessage(context.Background(), "r", "gone", "👍"); err != nil {
		t.Fatalf("ReactToMessage() error: %v", err)
	}
	if len(s.Messages("r")) != 0 {
		t.Error("reacting to a missing message created one")
	}
	expectNoNotice(t, s)
}

func TestSendMessageWithFile(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, nil)
	s.SetDraftMessage("r", "caption")

	api.sendFn = func(_ context.Context, req client.SendMessageRequest) (*domain.Message, error) {
		if n := len(s.Messages("r")); n != 0 {
			t.Errorf("%d messages visible before confirmation, want 0", n)
		}
		return &domain.Message{
			ID: "f1", RoomID: "r", Type: req.Type, Content: req.Content,
			Attachment: &domain.Attachment{Name: req.File.Name, URL: "https://cdn.example/f1"},
		}, nil
	}

	m, err := s.SendMessageWithFile(context.Background(), "r", "caption",
		client.FileUpload{Name: "cat.png", MimeType: "image/png", Reader: strings.NewReader("png")}, "")
	if err != nil {
		t.Fatalf("SendMessageWithFile() error: %v", err)
	}
	if m.Type != domain.MessageImage {
		t.Errorf("Type = %q, want image", m.Type)
	}
	if got := ids(s.Messages("r")); !slices.Equal(got, []string{"f1"}) {
		t.Errorf("Messages() = %v, want [f1]", got)
	}
	if s.DraftMessage("r") != "" {
		t.Error("draft not cleared on confirm")
	}

	api.sendFn = nil
	api.setErr(errBoom)
	s.SetDraftMessage("r", "keep me")
	if _, err := s.SendMessageWithFile(context.Background(), "r", "", client.FileUpload{Name: "a.pdf"}, ""); err == nil {
		t.Fatal("expected error")
	}
	expectNotice(t, s, "Failed to send file")
	if s.DraftMessage("r") != "keep me" {
		t.Error("draft cleared on failure")
	}
	if api.sent[len(api.sent)-1].Type != domain.MessageFile {
		t.Errorf("non-image attachment sent as %q", api.sent[len(api.sent)-1].Type)
	}
}

func TestSendCompletingAfterLeave(t *testing.T) {
	api := &fakeAPI{rooms: []domain.Room{{ID: "r"}}}
	s := newTestStore(t, api, nil)
	ctx := context.Background()
	api.sendFn = func(ctx context.Context, req client.SendMessageRequest) (*domain.Message, error) {
		if err := s.LeaveRoom(ctx, "r"); err != nil {
			t.Errorf("LeaveRoom() error: %v", err)
		}
		return &domain.Message{ID: "srv-1", RoomID: "r", Content: req.Content}, nil
	}

	tests := []struct {
		name string
		send func() error
	}{
		{"text", func() error {
			_, err := s.SendMessage(ctx, "r", "bye", "")
			return err
		}},
		{"file", func() error {
			_, err := s.SendMessageWithFile(ctx, "r", "", client.FileUpload{Name: "a.txt", Reader: strings.NewReader("a")}, "")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.LoadRooms(ctx); err != nil {
				t.Fatal(err)
			}
			if err := tt.send(); err != nil {
				t.Fatalf("send error: %v", err)
			}
			if _, ok := s.Room("r"); ok {
				t.Error("room still registered after leave")
			}
			if got := s.Messages("r"); len(got) != 0 {
				t.Errorf("Messages(r) = %v after leave, want none", ids(got))
			}
		})
	}
}
