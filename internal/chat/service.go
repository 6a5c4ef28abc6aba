// Package chat is the synchronous write tier: account, room and message
// operations backed by the store, each notifying gateway listeners through
// the event bridge. Notification delivery is strictly best-effort; a failed
// publish never fails the operation that triggered it.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/louieee/chatclone/internal/auth"
	"github.com/louieee/chatclone/internal/event"
	"github.com/louieee/chatclone/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoAccount          = errors.New("you dont have an account with us")
	ErrNotAMember         = errors.New("you are not a member of this group")
	ErrAlreadyMember      = errors.New("you are already a member of this chat")
	ErrRoomFull           = errors.New("this group is full")
	ErrNotAdmin           = errors.New("only admins are allowed to update room")
	ErrCapacityTooSmall   = errors.New("the members count cannot be less than number of members in the room")
	ErrEmptyMessage       = errors.New("message cannot be empty")
)

// Publisher is the bridge surface the service needs. Satisfied by
// *bridge.Bridge; tests substitute a recorder.
type Publisher interface {
	SendToRoom(ctx context.Context, senderID, roomID int64, name string, data any) error
	SendToGeneral(ctx context.Context, senderID int64, name string, data any) error
	SendToPrivate(ctx context.Context, userID int64, name string, data any) error
}

type Service struct {
	logger    *slog.Logger
	store     *store.Store
	publisher Publisher
	issuer    *auth.Issuer
}

func NewService(logger *slog.Logger, st *store.Store, publisher Publisher, issuer *auth.Issuer) *Service {
	return &Service{
		logger:    logger.With(slog.String("component", "chat_service")),
		store:     st,
		publisher: publisher,
		issuer:    issuer,
	}
}

// notify logs and swallows a publish failure. Nothing in this tier may fail
// because a notification did.
func (s *Service) notify(op string, err error) {
	if err != nil {
		s.logger.Error("Notification delivery failed", slog.String("op", op), slog.Any("error", err))
	}
}

type SignupInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Signup creates an account and announces it on the general channel.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*UserProfile, error) {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.store.CreateUser(ctx, &store.User{
		Username:     in.Username,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return nil, err
	}

	profile := profileOf(user)
	s.notify("signup", s.publisher.SendToGeneral(ctx, user.ID, event.NewUser, profile))
	return &profile, nil
}

// Login checks credentials and returns a fresh bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNoAccount
	}
	if err != nil {
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", ErrInvalidCredentials
	}
	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return "", err
	}

	s.notify("login", s.publisher.SendToGeneral(ctx, user.ID, event.LoggedIn, profileOf(user)))
	return token, nil
}

// Profile returns the public shape of a user.
func (s *Service) Profile(ctx context.Context, userID int64) (*UserProfile, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := profileOf(user)
	return &profile, nil
}
