package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *Store) CreateMessage(ctx context.Context, m *Message) (*Message, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (room_id, sender_id, text, time_sent) VALUES (?, ?, ?, ?)",
		m.RoomID, m.SenderID, m.Text, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	created := *m
	created.ID = id
	created.TimeSent = now.UTC()
	return &created, nil
}

// MessagesByRoom returns one page of a room's messages in send order along
// with the room's total message count. Page numbering starts at 1.
func (s *Store) MessagesByRoom(ctx context.Context, roomID int64, page, pageSize int) ([]Message, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE room_id = ?", roomID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("message count: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, text, time_sent FROM messages
		 WHERE room_id = ? ORDER BY id LIMIT ? OFFSET ?`,
		roomID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sent int64
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Text, &sent); err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		m.TimeSent = fromMillis(sent)
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// MarkViewed records that viewer has seen the message. Returns true only for
// the first record; repeated calls are no-ops. The insert itself is the
// atomicity point, so two concurrent calls cannot both claim the first view.
func (s *Store) MarkViewed(ctx context.Context, messageID, viewerID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO message_viewers (message_id, viewer_id, viewed_at) VALUES (?, ?, ?)
		 ON CONFLICT(message_id, viewer_id) DO NOTHING`,
		messageID, viewerID, toMillis(time.Now()))
	if err != nil {
		return false, fmt.Errorf("mark viewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark viewed: %w", err)
	}
	return n > 0, nil
}

func (s *Store) HasViewed(ctx context.Context, messageID, viewerID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM message_viewers WHERE message_id = ? AND viewer_id = ?",
		messageID, viewerID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("viewed check: %w", err)
	}
	return true, nil
}

func (s *Store) ViewerCount(ctx context.Context, messageID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM message_viewers WHERE message_id = ?", messageID).Scan(&n); err != nil {
		return 0, fmt.Errorf("viewer count: %w", err)
	}
	return n, nil
}

// UnviewedMessages filters the given message ids down to those the viewer has
// neither sent nor already seen. Order of ids is preserved.
func (s *Store) UnviewedMessages(ctx context.Context, viewerID int64, ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, viewerID, viewerID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, sender_id, text, time_sent FROM messages
		 WHERE id IN (`+placeholders+`)
		   AND sender_id != ?
		   AND id NOT IN (SELECT message_id FROM message_viewers WHERE viewer_id = ?)
		 ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("unviewed messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var sent int64
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.Text, &sent); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.TimeSent = fromMillis(sent)
		out = append(out, m)
	}
	return out, rows.Err()
}
