package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/store"
)

const testSecret = "test-secret"

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
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestIssueAndResolveToken(t *testing.T) {
	s := newTestStore(t)
	user := createUser(t, s, "alice")

	issuer := auth.NewIssuer(testSecret, time.Hour)
	resolver := auth.NewResolver(s, testSecret)

	token, err := issuer.Issue(user.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	principal, err := resolver.ResolveToken(context.Background(), token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if principal.ID != user.ID || principal.Username != "alice" {
		t.Errorf("principal = %+v", principal)
	}
}

func TestResolveTokenFailures(t *testing.T) {
	s := newTestStore(t)
	user := createUser(t, s, "alice")

	issuer := auth.NewIssuer(testSecret, time.Hour)
	resolver := auth.NewResolver(s, testSecret)
	ctx := context.Background()

	if _, err := resolver.ResolveToken(ctx, "garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("garbage token error = %v", err)
	}

	// Valid signature, different secret.
	otherIssuer := auth.NewIssuer("another-secret", time.Hour)
	forged, _ := otherIssuer.Issue(user.ID)
	if _, err := resolver.ResolveToken(ctx, forged); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("forged token error = %v", err)
	}

	// Token naming a user that no longer exists.
	ghost, _ := issuer.Issue(99999)
	if _, err := resolver.ResolveToken(ctx, ghost); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("ghost user token error = %v", err)
	}

	// Expired token.
	expiredIssuer := auth.NewIssuer(testSecret, -time.Minute)
	expired, _ := expiredIssuer.Issue(user.ID)
	if _, err := resolver.ResolveToken(ctx, expired); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expired token error = %v", err)
	}
}

func TestResolveRoomMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	room, err := s.CreateRoom(ctx, &store.Room{Name: "den", MaximumMembers: 10})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := s.AddRoomMember(ctx, room.ID, alice.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	issuer := auth.NewIssuer(testSecret, time.Hour)
	resolver := auth.NewResolver(s, testSecret)

	aliceToken, _ := issuer.Issue(alice.ID)
	principal, resolvedRoom, err := resolver.ResolveRoomMembership(ctx, aliceToken, room.ID)
	if err != nil {
		t.Fatalf("member resolution failed: %v", err)
	}
	if principal.ID != alice.ID || resolvedRoom.ID != room.ID {
		t.Errorf("resolved (%+v, %+v)", principal, resolvedRoom)
	}

	bobToken, _ := issuer.Issue(bob.ID)
	if _, _, err := resolver.ResolveRoomMembership(ctx, bobToken, room.ID); !errors.Is(err, auth.ErrNotAMember) {
		t.Errorf("non-member error = %v", err)
	}

	if _, _, err := resolver.ResolveRoomMembership(ctx, aliceToken, 424242); !errors.Is(err, auth.ErrRoomNotFound) {
		t.Errorf("unknown room error = %v", err)
	}

	if _, _, err := resolver.ResolveRoomMembership(ctx, "garbage", room.ID); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("bad token error = %v", err)
	}
}
