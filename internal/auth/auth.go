// Package auth issues and resolves the bearer tokens that authenticate both
// real client connections and bridge-opened ones.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louieee/chatclone/internal/store"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRoomNotFound = errors.New("room not found")
	ErrNotAMember   = errors.New("not a member of this room")
)

// Principal is the authenticated identity attached to a connection for its
// lifetime.
type Principal struct {
	ID       int64
	Username string
}

// Claims is the token payload. Subject holds the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs bearer tokens. The bridge uses it to mint a token on demand
// for whichever identity it is publishing as.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for the user.
func (i *Issuer) Issue(userID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Resolver turns bearer tokens into Principals and, for room connections,
// verifies room membership. Lookups have no side effects.
type Resolver struct {
	store  *store.Store
	secret []byte
}

func NewResolver(st *store.Store, secret string) *Resolver {
	return &Resolver{store: st, secret: []byte(secret)}
}

// ResolveToken validates the token signature and loads the principal it names.
// Every failure mode collapses to ErrInvalidToken.
func (r *Resolver) ResolveToken(ctx context.Context, tokenString string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return r.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := r.store.UserByID(ctx, userID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Principal{ID: user.ID, Username: user.Username}, nil
}

// ResolveRoomMembership composes token resolution with a membership check.
// An unknown room and a non-member are distinct errors here, but callers
// treat both as "no access" and must not reveal which occurred.
func (r *Resolver) ResolveRoomMembership(ctx context.Context, tokenString string, roomID int64) (*Principal, *store.Room, error) {
	principal, err := r.ResolveToken(ctx, tokenString)
	if err != nil {
		return nil, nil, err
	}
	room, err := r.store.RoomByID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load room: %w", err)
	}
	member, err := r.store.IsRoomMember(ctx, roomID, principal.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("membership check: %w", err)
	}
	if !member {
		return nil, nil, ErrNotAMember
	}
	return principal, room, nil
}
