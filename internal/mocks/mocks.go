package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"inbox-service/internal/models"
	"inbox-service/internal/rabbitmq"
	"inbox-service/internal/repositories"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkThreadRead(ctx context.Context, viewerID, correspondentID int64) (int64, error) {
	args := m.Called(ctx, viewerID, correspondentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Thread(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCount(ctx context.Context, viewerID int64) (int, error) {
	args := m.Called(ctx, viewerID)
	return args.Int(0), args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) RecentReceived(ctx context.Context, viewerID int64, isRead bool, limit int) ([]models.Message, error) {
	args := m.Called(ctx, viewerID, isRead, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LatestPerCorrespondent(ctx context.Context, viewerID int64) ([]models.Message, error) {
	args := m.Called(ctx, viewerID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadCountsBySender(ctx context.Context, viewerID int64) (map[int64]int, error) {
	args := m.Called(ctx, viewerID)
	var counts map[int64]int
	if val := args.Get(0); val != nil {
		counts = val.(map[int64]int)
	}
	return counts, args.Error(1)
}

func (m *MessageRepositoryMock) Search(ctx context.Context, filter repositories.MessageFilter) ([]models.MessageWithParties, error) {
	args := m.Called(ctx, filter)
	var rows []models.MessageWithParties
	if val := args.Get(0); val != nil {
		rows = val.([]models.MessageWithParties)
	}
	return rows, args.Error(1)
}

type ProfileRepositoryMock struct {
	mock.Mock
}

func (m *ProfileRepositoryMock) GetProfile(ctx context.Context, userID int64) (models.Profile, error) {
	args := m.Called(ctx, userID)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

func (m *ProfileRepositoryMock) BulkProfiles(ctx context.Context, ids []int64) (map[int64]models.Profile, error) {
	args := m.Called(ctx, ids)
	var profiles map[int64]models.Profile
	if val := args.Get(0); val != nil {
		profiles = val.(map[int64]models.Profile)
	}
	return profiles, args.Error(1)
}

type AuthenticatorMock struct {
	mock.Mock
}

func (m *AuthenticatorMock) Authenticate(ctx context.Context, token string) (models.Profile, error) {
	args := m.Called(ctx, token)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) DeliverNewMessage(ctx context.Context, recipient int64, payload models.NewMessagePayload) {
	m.Called(ctx, recipient, payload)
}

// PublisherMock stands in for the AMQP publisher behind audit and websocket events.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	return m.Called(ctx, routingKey, event, headers).Error(0)
}

func (m *PublisherMock) Close() error {
	return m.Called().Error(0)
}

var (
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ repositories.ProfileRepository = (*ProfileRepositoryMock)(nil)
	_ rabbitmq.Publisher             = (*PublisherMock)(nil)
)
