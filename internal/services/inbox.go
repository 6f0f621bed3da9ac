package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
)

var ErrNotParticipant = apperrors.New(apperrors.ErrForbidden, "not a participant of this message")

// RecentActivityLimits bound the recent activity list: up to Unread unread
// messages first, then up to Read read ones, at most Total overall.
type RecentActivityLimits struct {
	Unread int
	Read   int
	Total  int
}

var DefaultRecentActivityLimits = RecentActivityLimits{Unread: 3, Read: 2, Total: 5}

// MessageView is a message decorated for one viewer.
type MessageView struct {
	ID         int64              `json:"id"`
	SenderID   int64              `json:"sender_id"`
	ReceiverID int64              `json:"receiver_id"`
	Sender     models.UserSummary `json:"sender"`
	Content    string             `json:"content"`
	Timestamp  string             `json:"timestamp"`
	IsRead     bool               `json:"is_read"`
	IsSender   bool               `json:"is_sender"`
}

type RecentActivity struct {
	UnreadCount int           `json:"unread_count"`
	Recent      []MessageView `json:"recent"`
}

type Conversation struct {
	Correspondent models.UserSummary `json:"correspondent"`
	LastMessage   MessageView        `json:"last_message"`
	UnreadCount   int                `json:"unread_count"`
}

type Thread struct {
	Correspondent models.UserSummary `json:"correspondent"`
	Messages      []MessageView      `json:"messages"`
}

type MarkReadResult struct {
	Marked      int64 `json:"marked"`
	UnreadCount int   `json:"unread_count"`
}

// InboxService derives the per-user inbox views from the message store.
type InboxService struct {
	messages repositories.MessageRepository
	profiles repositories.ProfileRepository
	limits   RecentActivityLimits
	log      *slog.Logger
}

func NewInboxService(messages repositories.MessageRepository, profiles repositories.ProfileRepository, limits RecentActivityLimits, log *slog.Logger) *InboxService {
	return &InboxService{messages: messages, profiles: profiles, limits: limits, log: log}
}

// RecentActivity lists the newest unread messages received by viewer ahead
// of the newest read ones, plus the total unread count.
func (s *InboxService) RecentActivity(ctx context.Context, viewer int64) (RecentActivity, error) {
	unread, err := s.messages.RecentReceived(ctx, viewer, false, s.limits.Unread)
	if err != nil {
		return RecentActivity{}, fmt.Errorf("recent unread: %w", err)
	}
	read, err := s.messages.RecentReceived(ctx, viewer, true, s.limits.Read)
	if err != nil {
		return RecentActivity{}, fmt.Errorf("recent read: %w", err)
	}
	count, err := s.messages.UnreadCount(ctx, viewer)
	if err != nil {
		return RecentActivity{}, fmt.Errorf("unread count: %w", err)
	}

	recent := append(unread, read...)
	if len(recent) > s.limits.Total {
		recent = recent[:s.limits.Total]
	}

	profiles, err := s.profilesFor(ctx, lo.Map(recent, func(m models.Message, _ int) int64 { return m.SenderID }))
	if err != nil {
		return RecentActivity{}, err
	}
	return RecentActivity{
		UnreadCount: count,
		Recent:      s.views(recent, viewer, profiles),
	}, nil
}

// ConversationsList returns one entry per user who has written to viewer,
// carrying the latest message exchanged with them, newest first.
func (s *InboxService) ConversationsList(ctx context.Context, viewer int64) ([]Conversation, error) {
	latest, err := s.messages.LatestPerCorrespondent(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("latest per correspondent: %w", err)
	}
	counts, err := s.messages.UnreadCountsBySender(ctx, viewer)
	if err != nil {
		return nil, fmt.Errorf("unread by sender: %w", err)
	}

	ids := lo.Map(latest, func(m models.Message, _ int) int64 { return m.Correspondent(viewer) })
	profiles, err := s.profilesFor(ctx, append(ids, viewer))
	if err != nil {
		return nil, err
	}

	return lo.Map(latest, func(m models.Message, _ int) Conversation {
		other := m.Correspondent(viewer)
		return Conversation{
			Correspondent: summaryOf(profiles, other),
			LastMessage:   view(m, viewer, profiles),
			UnreadCount:   counts[other],
		}
	}), nil
}

// ThreadView marks the thread read for viewer and returns its full history.
func (s *InboxService) ThreadView(ctx context.Context, viewer, correspondent int64) (Thread, error) {
	other, err := s.profiles.GetProfile(ctx, correspondent)
	if err != nil {
		return Thread{}, err
	}

	marked, err := s.messages.MarkThreadRead(ctx, viewer, correspondent)
	if err != nil {
		return Thread{}, fmt.Errorf("mark thread read: %w", err)
	}
	if marked > 0 {
		s.log.Debug("thread marked read", "viewer", viewer, "correspondent", correspondent, "marked", marked)
	}

	msgs, err := s.messages.Thread(ctx, viewer, correspondent)
	if err != nil {
		return Thread{}, fmt.Errorf("load thread: %w", err)
	}
	profiles, err := s.profilesFor(ctx, []int64{viewer})
	if err != nil {
		return Thread{}, err
	}
	profiles[other.ID] = other

	return Thread{
		Correspondent: other.Summary(),
		Messages:      s.views(msgs, viewer, profiles),
	}, nil
}

// ViewMessage returns one message. It is marked read when viewer received it.
func (s *InboxService) ViewMessage(ctx context.Context, viewer, messageID int64) (MessageView, error) {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return MessageView{}, err
	}
	if !msg.Involves(viewer) {
		return MessageView{}, ErrNotParticipant
	}

	if msg.ReceiverID == viewer && !msg.IsRead {
		if err := s.messages.MarkRead(ctx, msg.ID); err != nil {
			return MessageView{}, fmt.Errorf("mark read: %w", err)
		}
		msg.IsRead = true
	}

	profiles, err := s.profilesFor(ctx, []int64{msg.SenderID})
	if err != nil {
		return MessageView{}, err
	}
	return view(msg, viewer, profiles), nil
}

// MarkThreadRead flips every unread message correspondent sent to viewer.
func (s *InboxService) MarkThreadRead(ctx context.Context, viewer, correspondent int64) (MarkReadResult, error) {
	if _, err := s.profiles.GetProfile(ctx, correspondent); err != nil {
		return MarkReadResult{}, err
	}
	marked, err := s.messages.MarkThreadRead(ctx, viewer, correspondent)
	if err != nil {
		return MarkReadResult{}, fmt.Errorf("mark thread read: %w", err)
	}
	count, err := s.messages.UnreadCount(ctx, viewer)
	if err != nil {
		return MarkReadResult{}, fmt.Errorf("unread count: %w", err)
	}
	return MarkReadResult{Marked: marked, UnreadCount: count}, nil
}

func (s *InboxService) profilesFor(ctx context.Context, ids []int64) (map[int64]models.Profile, error) {
	profiles, err := s.profiles.BulkProfiles(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if profiles == nil {
		profiles = map[int64]models.Profile{}
	}
	return profiles, nil
}

func (s *InboxService) views(msgs []models.Message, viewer int64, profiles map[int64]models.Profile) []MessageView {
	return lo.Map(msgs, func(m models.Message, _ int) MessageView {
		return view(m, viewer, profiles)
	})
}

func view(m models.Message, viewer int64, profiles map[int64]models.Profile) MessageView {
	return MessageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Sender:     summaryOf(profiles, m.SenderID),
		Content:    m.Content,
		Timestamp:  m.Timestamp(),
		IsRead:     m.IsRead,
		IsSender:   m.SenderID == viewer,
	}
}

// summaryOf falls back to a bare id when the profile is gone.
func summaryOf(profiles map[int64]models.Profile, id int64) models.UserSummary {
	return lo.ValueOr(profiles, id, models.Profile{ID: id}).Summary()
}
