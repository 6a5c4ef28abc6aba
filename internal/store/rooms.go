package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const roomColumns = "id, name, description, maximum_members, created_at, updated_at"

func scanRoom(row *sql.Row) (*Room, error) {
	var r Room
	var createdAt, updatedAt int64
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.MaximumMembers, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func (s *Store) CreateRoom(ctx context.Context, r *Room) (*Room, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, description, maximum_members, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.Name, r.Description, r.MaximumMembers, toMillis(now), toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("room id: %w", err)
	}
	created := *r
	created.ID = id
	created.CreatedAt = now.UTC()
	created.UpdatedAt = now.UTC()
	return &created, nil
}

func (s *Store) UpdateRoom(ctx context.Context, r *Room) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, description = ?, maximum_members = ?, updated_at = ? WHERE id = ?`,
		r.Name, r.Description, r.MaximumMembers, toMillis(time.Now()), r.ID)
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) RoomByID(ctx context.Context, id int64) (*Room, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+roomColumns+" FROM rooms WHERE id = ?", id)
	return scanRoom(row)
}

// RoomsForUser lists the rooms the user is a member of.
func (s *Store) RoomsForUser(ctx context.Context, userID int64) ([]Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.description, r.maximum_members, r.created_at, r.updated_at
		 FROM rooms r JOIN room_members m ON m.room_id = r.id
		 WHERE m.user_id = ? ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		var r Room
		var createdAt, updatedAt int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.MaximumMembers, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		r.UpdatedAt = fromMillis(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// IsRoomMember reports whether the user currently belongs to the room.
func (s *Store) IsRoomMember(ctx context.Context, roomID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("membership check: %w", err)
	}
	return true, nil
}

func (s *Store) IsRoomAdmin(ctx context.Context, roomID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM room_admins WHERE room_id = ? AND user_id = ?", roomID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("admin check: %w", err)
	}
	return true, nil
}

func (s *Store) AddRoomMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)", roomID, userID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *Store) RemoveRoomMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (s *Store) AddRoomAdmin(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO room_admins (room_id, user_id) VALUES (?, ?)", roomID, userID)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

func (s *Store) RemoveRoomAdmin(ctx context.Context, roomID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM room_admins WHERE room_id = ? AND user_id = ?", roomID, userID)
	if err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	return nil
}

func (s *Store) RoomMemberCount(ctx context.Context, roomID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM room_members WHERE room_id = ?", roomID).Scan(&n); err != nil {
		return 0, fmt.Errorf("member count: %w", err)
	}
	return n, nil
}

func (s *Store) RoomAdminCount(ctx context.Context, roomID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM room_admins WHERE room_id = ?", roomID).Scan(&n); err != nil {
		return 0, fmt.Errorf("admin count: %w", err)
	}
	return n, nil
}

// RoomMemberIDs lists member ids in insertion order.
func (s *Store) RoomMemberIDs(ctx context.Context, roomID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM room_members WHERE room_id = ? ORDER BY rowid", roomID)
	if err != nil {
		return nil, fmt.Errorf("member ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FirstRoomAdminID returns the earliest-added admin of the room.
func (s *Store) FirstRoomAdminID(ctx context.Context, roomID int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM room_admins WHERE room_id = ? ORDER BY rowid LIMIT 1", roomID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("first admin: %w", err)
	}
	return id, nil
}
