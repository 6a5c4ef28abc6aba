package store

import "time"

type User struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	ID             int64
	Name           string
	Description    string
	MaximumMembers int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Message struct {
	ID       int64
	RoomID   int64
	SenderID int64
	Text     string
	TimeSent time.Time
}
