package chat

import (
	"context"
	"strings"

	"github.com/louieee/chatclone/internal/event"
	"github.com/louieee/chatclone/internal/store"
)

// CreateMessage stores a message from a room member and notifies the room.
func (s *Service) CreateMessage(ctx context.Context, senderID, roomID int64, text string) (*MessageDetail, error) {
	member, err := s.store.IsRoomMember(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAMember
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	msg, err := s.store.CreateMessage(ctx, &store.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Text:     text,
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.messageDetail(ctx, msg, senderID)
	if err != nil {
		return nil, err
	}
	s.notify("create message", s.publisher.SendToRoom(ctx, senderID, roomID, event.NewMessage, detail))
	return detail, nil
}

// ListMessages returns one page of a room's messages for a member, and marks
// every message on the page the viewer had not seen. The first view of a
// message (sender excluded) notifies the sender's private channel.
func (s *Service) ListMessages(ctx context.Context, viewerID, roomID int64, page, pageSize int) (*MessagePage, error) {
	member, err := s.store.IsRoomMember(ctx, roomID, viewerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrNotAMember
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}

	messages, total, err := s.store.MessagesByRoom(ctx, roomID, page, pageSize)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	if err := s.markPageViewed(ctx, viewerID, ids); err != nil {
		return nil, err
	}

	out := &MessagePage{Count: total, Page: page, PageSize: pageSize, Results: make([]MessageDetail, 0, len(messages))}
	for i := range messages {
		detail, err := s.messageDetail(ctx, &messages[i], viewerID)
		if err != nil {
			return nil, err
		}
		out.Results = append(out.Results, *detail)
	}
	return out, nil
}

// MarkViewed records a single view. The insert is the atomicity point: only
// the call that creates the record notifies the sender, so concurrent
// identical calls produce at most one notification. Views by the sender are
// a no-op; the sender has implicitly seen their own message.
func (s *Service) MarkViewed(ctx context.Context, msg *store.Message, viewerID int64) error {
	if msg.SenderID == viewerID {
		return nil
	}
	first, err := s.store.MarkViewed(ctx, msg.ID, viewerID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}
	detail, err := s.messageDetail(ctx, msg, viewerID)
	if err != nil {
		return err
	}
	s.notify("mark viewed", s.publisher.SendToPrivate(ctx, msg.SenderID, event.NewMessageViewer, detail))
	return nil
}

// markPageViewed filters the page down to messages the viewer has neither
// sent nor seen, then marks each. The filter is a point-in-time check; the
// mark itself stays idempotent regardless.
func (s *Service) markPageViewed(ctx context.Context, viewerID int64, ids []int64) error {
	unviewed, err := s.store.UnviewedMessages(ctx, viewerID, ids)
	if err != nil {
		return err
	}
	for i := range unviewed {
		if err := s.MarkViewed(ctx, &unviewed[i], viewerID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) messageDetail(ctx context.Context, m *store.Message, forUserID int64) (*MessageDetail, error) {
	viewers, err := s.store.ViewerCount(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	viewed := m.SenderID == forUserID
	if !viewed {
		viewed, err = s.store.HasViewed(ctx, m.ID, forUserID)
		if err != nil {
			return nil, err
		}
	}
	return &MessageDetail{
		ID:           m.ID,
		Chat:         m.RoomID,
		Sender:       m.SenderID,
		Text:         m.Text,
		TimeSent:     m.TimeSent,
		ViewersCount: viewers,
		Viewed:       viewed,
	}, nil
}
