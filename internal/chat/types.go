package chat

import (
	"time"

	"github.com/louieee/chatclone/internal/store"
)

// UserProfile is the public shape of a user.
type UserProfile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

func profileOf(u *store.User) UserProfile {
	return UserProfile{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Username: u.Username}
}

// RoomSummary is the listing shape of a room.
type RoomSummary struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoomDetail carries full room state including membership.
type RoomDetail struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description"`
	MaximumMembers int           `json:"maximum_members"`
	Members        []UserProfile `json:"members"`
	Admins         []UserProfile `json:"admins"`
	MembersCount   int           `json:"members_count"`
}

// MessageDetail is the wire shape of a chat message.
type MessageDetail struct {
	ID           int64     `json:"id"`
	Chat         int64     `json:"chat"`
	Sender       int64     `json:"sender"`
	Text         string    `json:"text"`
	TimeSent     time.Time `json:"time_sent"`
	ViewersCount int       `json:"viewers_count"`
	Viewed       bool      `json:"viewed"`
}

// MessagePage is one page of room messages plus pagination bookkeeping.
type MessagePage struct {
	Count    int             `json:"count"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Results  []MessageDetail `json:"results"`
}
