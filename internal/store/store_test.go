package store_test

import (
	"context"
	"testing"

	"github.com/louieee/chatclone/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *store.Store, username string) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), &store.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func createRoom(t *testing.T, s *store.Store, name string, memberIDs ...int64) *store.Room {
	t.Helper()
	r, err := s.CreateRoom(context.Background(), &store.Room{Name: name, MaximumMembers: 100})
	if err != nil {
		t.Fatalf("create room %s: %v", name, err)
	}
	for _, id := range memberIDs {
		if err := s.AddRoomMember(context.Background(), r.ID, id); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return r
}

func TestUserLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := createUser(t, s, "alice")

	byID, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if byID.Username != "alice" {
		t.Errorf("username = %q", byID.Username)
	}

	// Lookup is case-insensitive.
	byName, err := s.UserByUsername(ctx, "ALICE")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if byName.ID != u.ID {
		t.Errorf("id = %d, want %d", byName.ID, u.ID)
	}

	if _, err := s.UserByID(ctx, 9999); err != store.ErrNotFound {
		t.Errorf("missing user error = %v, want ErrNotFound", err)
	}
}

func TestDuplicateUsernameRejected(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "bob")
	_, err := s.CreateUser(context.Background(), &store.User{
		Username: "BOB", Email: "other@example.com", PasswordHash: "x",
	})
	if err == nil {
		t.Fatal("expected constraint error for duplicate username")
	}
}

func TestRoomMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	room := createRoom(t, s, "den", alice.ID)

	member, err := s.IsRoomMember(ctx, room.ID, alice.ID)
	if err != nil || !member {
		t.Fatalf("alice should be a member (err=%v)", err)
	}
	member, err = s.IsRoomMember(ctx, room.ID, bob.ID)
	if err != nil || member {
		t.Fatalf("bob should not be a member (err=%v)", err)
	}

	count, err := s.RoomMemberCount(ctx, room.ID)
	if err != nil || count != 1 {
		t.Fatalf("member count = %d (err=%v), want 1", count, err)
	}

	if err := s.RemoveRoomMember(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	member, _ = s.IsRoomMember(ctx, room.ID, alice.ID)
	if member {
		t.Error("alice still a member after removal")
	}
}

func TestRoomAdminBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	room := createRoom(t, s, "den", alice.ID, bob.ID)

	if err := s.AddRoomAdmin(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("add admin: %v", err)
	}
	if err := s.AddRoomAdmin(ctx, room.ID, bob.ID); err != nil {
		t.Fatalf("add admin: %v", err)
	}

	first, err := s.FirstRoomAdminID(ctx, room.ID)
	if err != nil {
		t.Fatalf("first admin: %v", err)
	}
	if first != alice.ID {
		t.Errorf("first admin = %d, want %d", first, alice.ID)
	}

	if err := s.RemoveRoomAdmin(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("remove admin: %v", err)
	}
	first, err = s.FirstRoomAdminID(ctx, room.ID)
	if err != nil || first != bob.ID {
		t.Errorf("first admin after removal = %d (err=%v), want %d", first, err, bob.ID)
	}
}

func TestMessagePagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	room := createRoom(t, s, "den", alice.ID)

	for i := 0; i < 5; i++ {
		if _, err := s.CreateMessage(ctx, &store.Message{RoomID: room.ID, SenderID: alice.ID, Text: "m"}); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	page, total, err := s.MessagesByRoom(ctx, room.ID, 1, 2)
	if err != nil {
		t.Fatalf("MessagesByRoom: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}

	page, _, err = s.MessagesByRoom(ctx, room.ID, 3, 2)
	if err != nil {
		t.Fatalf("MessagesByRoom page 3: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("last page size = %d, want 1", len(page))
	}
}

func TestMarkViewedIsAtomicByFirstInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	room := createRoom(t, s, "den", alice.ID, bob.ID)
	msg, err := s.CreateMessage(ctx, &store.Message{RoomID: room.ID, SenderID: alice.ID, Text: "hi"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}

	first, err := s.MarkViewed(ctx, msg.ID, bob.ID)
	if err != nil {
		t.Fatalf("mark viewed: %v", err)
	}
	if !first {
		t.Error("first mark should report the insert")
	}
	again, err := s.MarkViewed(ctx, msg.ID, bob.ID)
	if err != nil {
		t.Fatalf("second mark viewed: %v", err)
	}
	if again {
		t.Error("second mark must be a no-op")
	}

	n, err := s.ViewerCount(ctx, msg.ID)
	if err != nil || n != 1 {
		t.Errorf("viewer count = %d (err=%v), want 1", n, err)
	}
	viewed, err := s.HasViewed(ctx, msg.ID, bob.ID)
	if err != nil || !viewed {
		t.Errorf("HasViewed = %v (err=%v), want true", viewed, err)
	}
}

func TestUnviewedMessagesExcludesSenderAndViewers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	room := createRoom(t, s, "den", alice.ID, bob.ID)

	fromAlice, _ := s.CreateMessage(ctx, &store.Message{RoomID: room.ID, SenderID: alice.ID, Text: "a"})
	fromBob, _ := s.CreateMessage(ctx, &store.Message{RoomID: room.ID, SenderID: bob.ID, Text: "b"})
	seen, _ := s.CreateMessage(ctx, &store.Message{RoomID: room.ID, SenderID: alice.ID, Text: "c"})
	if _, err := s.MarkViewed(ctx, seen.ID, bob.ID); err != nil {
		t.Fatalf("mark viewed: %v", err)
	}

	ids := []int64{fromAlice.ID, fromBob.ID, seen.ID}
	unviewed, err := s.UnviewedMessages(ctx, bob.ID, ids)
	if err != nil {
		t.Fatalf("UnviewedMessages: %v", err)
	}
	if len(unviewed) != 1 || unviewed[0].ID != fromAlice.ID {
		t.Errorf("unviewed = %+v, want exactly the unseen message from alice", unviewed)
	}
}
