package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/louieee/chatclone/internal/event"
	"github.com/louieee/chatclone/internal/store"
)

type RoomInput struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	MaximumMembers int    `json:"maximum_members"`
}

// CreateRoom creates a room with the creator as its first member and admin,
// and announces it on the general channel.
func (s *Service) CreateRoom(ctx context.Context, creatorID int64, in RoomInput) (*RoomDetail, error) {
	if in.MaximumMembers <= 0 {
		in.MaximumMembers = 100
	}
	room, err := s.store.CreateRoom(ctx, &store.Room{
		Name:           in.Name,
		Description:    in.Description,
		MaximumMembers: in.MaximumMembers,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.AddRoomMember(ctx, room.ID, creatorID); err != nil {
		return nil, err
	}
	if err := s.store.AddRoomAdmin(ctx, room.ID, creatorID); err != nil {
		return nil, err
	}

	s.notify("create room", s.publisher.SendToGeneral(ctx, creatorID, event.NewChatRoom,
		RoomSummary{ID: room.ID, Name: room.Name, Description: room.Description}))
	return s.RoomDetail(ctx, room.ID)
}

// UpdateRoom lets an admin edit the room. Capacity may not drop below the
// current member count.
func (s *Service) UpdateRoom(ctx context.Context, userID, roomID int64, in RoomInput) (*RoomDetail, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	admin, err := s.store.IsRoomAdmin(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !admin {
		return nil, ErrNotAdmin
	}
	memberCount, err := s.store.RoomMemberCount(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if in.MaximumMembers < memberCount {
		return nil, ErrCapacityTooSmall
	}

	room.Name = in.Name
	room.Description = in.Description
	room.MaximumMembers = in.MaximumMembers
	if err := s.store.UpdateRoom(ctx, room); err != nil {
		return nil, err
	}

	s.notify("update room", s.publisher.SendToGeneral(ctx, userID, event.UpdateChatRoom,
		RoomSummary{ID: room.ID, Name: room.Name, Description: room.Description}))
	return s.RoomDetail(ctx, room.ID)
}

// Rooms lists the rooms the user belongs to.
func (s *Service) Rooms(ctx context.Context, userID int64) ([]RoomSummary, error) {
	rooms, err := s.store.RoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomSummary{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return out, nil
}

// RoomDetail loads a room with its membership.
func (s *Service) RoomDetail(ctx context.Context, roomID int64) (*RoomDetail, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	memberIDs, err := s.store.RoomMemberIDs(ctx, roomID)
	if err != nil {
		return nil, err
	}
	detail := &RoomDetail{
		ID:             room.ID,
		Name:           room.Name,
		Description:    room.Description,
		MaximumMembers: room.MaximumMembers,
		Members:        make([]UserProfile, 0, len(memberIDs)),
		Admins:         []UserProfile{},
		MembersCount:   len(memberIDs),
	}
	for _, id := range memberIDs {
		user, err := s.store.UserByID(ctx, id)
		if err != nil {
			return nil, err
		}
		profile := profileOf(user)
		detail.Members = append(detail.Members, profile)
		admin, err := s.store.IsRoomAdmin(ctx, roomID, id)
		if err != nil {
			return nil, err
		}
		if admin {
			detail.Admins = append(detail.Admins, profile)
		}
	}
	return detail, nil
}

// JoinRoom adds the user to the room and notifies its members.
func (s *Service) JoinRoom(ctx context.Context, userID, roomID int64) (*RoomDetail, error) {
	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	member, err := s.store.IsRoomMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if member {
		return nil, ErrAlreadyMember
	}
	count, err := s.store.RoomMemberCount(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if count >= room.MaximumMembers {
		return nil, ErrRoomFull
	}
	if err := s.store.AddRoomMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	s.notifyMembershipChange(ctx, roomID, userID, event.NewMember)
	return s.RoomDetail(ctx, roomID)
}

// LeaveRoom removes the user (and any admin rights) from the room. If the
// room is left without admins but still has members, the earliest remaining
// member is promoted.
func (s *Service) LeaveRoom(ctx context.Context, userID, roomID int64) (*RoomDetail, error) {
	if _, err := s.store.RoomByID(ctx, roomID); err != nil {
		return nil, err
	}
	member, err := s.store.IsRoomMember(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAMember
	}
	if err := s.store.RemoveRoomMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	if err := s.store.RemoveRoomAdmin(ctx, roomID, userID); err != nil {
		return nil, err
	}

	if err := s.backfillAdmin(ctx, roomID); err != nil {
		return nil, err
	}

	s.notifyMembershipChange(ctx, roomID, userID, event.MemberExit)
	return s.RoomDetail(ctx, roomID)
}

// backfillAdmin guarantees a non-empty room always has at least one admin.
func (s *Service) backfillAdmin(ctx context.Context, roomID int64) error {
	adminCount, err := s.store.RoomAdminCount(ctx, roomID)
	if err != nil {
		return err
	}
	if adminCount > 0 {
		return nil
	}
	memberIDs, err := s.store.RoomMemberIDs(ctx, roomID)
	if err != nil {
		return err
	}
	if len(memberIDs) == 0 {
		return nil
	}
	return s.store.AddRoomAdmin(ctx, roomID, memberIDs[0])
}

// notifyMembershipChange announces a join or exit to the room, acting as the
// room's first admin. A room that ends up with no admins (last member left)
// has nobody to speak for it and the notification is skipped.
func (s *Service) notifyMembershipChange(ctx context.Context, roomID, subjectID int64, name string) {
	adminID, err := s.store.FirstRoomAdminID(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		s.notify("membership change", fmt.Errorf("find announcing admin: %w", err))
		return
	}
	subject, err := s.store.UserByID(ctx, subjectID)
	if err != nil {
		s.notify("membership change", fmt.Errorf("load member: %w", err))
		return
	}
	s.notify("membership change", s.publisher.SendToRoom(ctx, adminID, roomID, name, profileOf(subject)))
}
