package handlers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"inbox-service/internal/middleware"
	"inbox-service/internal/mocks"
	"inbox-service/internal/models"
	"inbox-service/internal/repositories"
	"inbox-service/internal/services"
	"inbox-service/internal/telemetry"
)

var (
	avatar   = "https://cdn.example.com/alice.png"
	aliceP   = models.Profile{ID: 1, Username: "alice", FirstName: "Alice", LastName: "Moreau", AvatarURL: &avatar, Role: models.RoleUser, IsActive: true}
	bobP     = models.Profile{ID: 2, Username: "bob", Role: models.RoleUser, IsActive: true}
	sentAt   = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	testLog  = logs.GetLoggerFromLevel(slog.LevelDebug)
	jsonType = "application/json"
)

type handlerDeps struct {
	messages  *mocks.MessageRepositoryMock
	profiles  *mocks.ProfileRepositoryMock
	hub       *mocks.BroadcasterMock
	publisher *mocks.PublisherMock
}

func newHandlerDeps() *handlerDeps {
	return &handlerDeps{
		messages:  new(mocks.MessageRepositoryMock),
		profiles:  new(mocks.ProfileRepositoryMock),
		hub:       new(mocks.BroadcasterMock),
		publisher: new(mocks.PublisherMock),
	}
}

func (d *handlerDeps) assertExpectations(t *testing.T) {
	d.messages.AssertExpectations(t)
	d.profiles.AssertExpectations(t)
	d.hub.AssertExpectations(t)
	d.publisher.AssertExpectations(t)
}

func setupMessageRouter(d *handlerDeps, caller models.Profile) *gin.Engine {
	gin.SetMode(gin.TestMode)
	inbox := services.NewInboxService(d.messages, d.profiles, services.DefaultRecentActivityLimits, testLog)
	audit := telemetry.NewAuditEmitter(d.publisher, "audit.inbox", "inbox-service", "test", testLog)
	handler := NewMessageHandler(d.messages, d.profiles, inbox, d.hub, audit, testLog)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.UserIDKey, caller.ID)
		c.Set(middleware.ProfileKey, caller)
		c.Next()
	})
	r.POST("/messages/send", handler.SendMessage)
	r.GET("/messages/unread", handler.UnreadSummary)
	r.GET("/messages/conversations", handler.Conversations)
	r.GET("/messages/thread/:user_id", handler.Thread)
	r.POST("/messages/thread/:user_id/read", handler.MarkThreadRead)
	r.GET("/messages/:message_id", handler.ViewMessage)
	return r
}

func doRequest(r http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func doRequestWith(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSendMessageSuccess(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, aliceP)

	payload := models.NewMessagePayload{SenderID: 1, Sender: "alice", Content: "hi", Timestamp: "2025-03-01T09:00:00Z"}
	d.profiles.On("GetProfile", mock.Anything, int64(2)).Return(bobP, nil).Once()
	d.messages.On("Append", mock.Anything, int64(1), int64(2), " hi ").
		Return(models.Message{ID: 10, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: sentAt}, nil).Once()
	d.hub.On("DeliverNewMessage", mock.Anything, int64(2), payload).Once()
	d.publisher.On("Publish", mock.Anything, "audit.inbox", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.UserID != nil && *env.UserID == "1" && env.Payload.Text == "message 10 sent to user 2"
	}), mock.Anything).Return(nil).Once()

	rec := doRequest(router, http.MethodPost, "/messages/send", jsonType, `{"receiver_id":2,"message":" hi "}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"status": "ok",
		"message": {
			"sender_id": 1,
			"sender": "alice",
			"content": "hi",
			"timestamp": "2025-03-01T09:00:00Z",
			"sender_avatar": "https://cdn.example.com/alice.png"
		}
	}`, rec.Body.String())
	d.assertExpectations(t)
}

func TestSendMessageAcceptsForm(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	d.profiles.On("GetProfile", mock.Anything, int64(1)).Return(aliceP, nil).Once()
	d.messages.On("Append", mock.Anything, int64(2), int64(1), "yo").
		Return(models.Message{ID: 11, SenderID: 2, ReceiverID: 1, Content: "yo", CreatedAt: sentAt}, nil).Once()
	d.hub.On("DeliverNewMessage", mock.Anything, int64(1), mock.Anything).Once()
	d.publisher.On("Publish", mock.Anything, "audit.inbox", mock.Anything, mock.Anything).Return(nil).Once()

	form := url.Values{"receiver_id": {"1"}, "message": {"yo"}}
	rec := doRequest(router, http.MethodPost, "/messages/send", "application/x-www-form-urlencoded", form.Encode())

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	msg := resp["message"].(map[string]any)
	assert.Nil(t, msg["sender_avatar"])
	d.assertExpectations(t)
}

func TestSendMessageEmpty(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, aliceP)

	rec := doRequest(router, http.MethodPost, "/messages/send", jsonType, `{"receiver_id":2,"message":"   "}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"Empty message"}`, rec.Body.String())
	d.messages.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.hub.AssertNotCalled(t, "DeliverNewMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessageUnknownReceiver(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, aliceP)

	d.profiles.On("GetProfile", mock.Anything, int64(404)).Return(nil, repositories.ErrUserNotFound).Once()

	rec := doRequest(router, http.MethodPost, "/messages/send", jsonType, `{"receiver_id":404,"message":"hello"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"User not found"}`, rec.Body.String())
	d.hub.AssertNotCalled(t, "DeliverNewMessage", mock.Anything, mock.Anything, mock.Anything)
	d.assertExpectations(t)
}

func TestSendMessagePersistFailureSkipsFanout(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, aliceP)

	d.profiles.On("GetProfile", mock.Anything, int64(2)).Return(bobP, nil).Once()
	d.messages.On("Append", mock.Anything, int64(1), int64(2), "hello").Return(nil, assert.AnError).Once()

	rec := doRequest(router, http.MethodPost, "/messages/send", jsonType, `{"receiver_id":2,"message":"hello"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","error":"failed to send message"}`, rec.Body.String())
	d.hub.AssertNotCalled(t, "DeliverNewMessage", mock.Anything, mock.Anything, mock.Anything)
	d.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	d.assertExpectations(t)
}

func TestSendMessageMalformedBody(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, aliceP)

	for _, body := range []string{`{"receiver_id":"two"`, `{"message":"hi"}`, `{"receiver_id":-1,"message":"hi"}`} {
		rec := doRequest(router, http.MethodPost, "/messages/send", jsonType, body)

		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"status":"error","error":"invalid request"}`, rec.Body.String())
	}
	d.profiles.AssertNotCalled(t, "GetProfile", mock.Anything, mock.Anything)
}

func TestUnreadSummary(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	unread := []models.Message{{ID: 3, SenderID: 1, ReceiverID: 2, Content: "new", CreatedAt: sentAt}}
	read := []models.Message{{ID: 1, SenderID: 1, ReceiverID: 2, Content: "old", CreatedAt: sentAt.Add(-time.Hour), IsRead: true}}
	d.messages.On("RecentReceived", mock.Anything, int64(2), false, 3).Return(unread, nil).Once()
	d.messages.On("RecentReceived", mock.Anything, int64(2), true, 2).Return(read, nil).Once()
	d.messages.On("UnreadCount", mock.Anything, int64(2)).Return(1, nil).Once()
	d.profiles.On("BulkProfiles", mock.Anything, []int64{1}).Return(map[int64]models.Profile{1: aliceP}, nil).Once()

	rec := doRequest(router, http.MethodGet, "/messages/unread", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp services.RecentActivity
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.UnreadCount)
	require.Len(t, resp.Recent, 2)
	assert.Equal(t, int64(3), resp.Recent[0].ID)
	assert.Equal(t, "AM", resp.Recent[0].Sender.Initials)
	d.assertExpectations(t)
}

func TestConversations(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	latest := []models.Message{{ID: 9, SenderID: 2, ReceiverID: 1, Content: "latest", CreatedAt: sentAt}}
	d.messages.On("LatestPerCorrespondent", mock.Anything, int64(2)).Return(latest, nil).Once()
	d.messages.On("UnreadCountsBySender", mock.Anything, int64(2)).Return(map[int64]int{1: 2}, nil).Once()
	d.profiles.On("BulkProfiles", mock.Anything, []int64{1, 2}).Return(map[int64]models.Profile{1: aliceP, 2: bobP}, nil).Once()

	rec := doRequest(router, http.MethodGet, "/messages/conversations", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Conversations []services.Conversation `json:"conversations"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Conversations, 1)
	conv := resp.Conversations[0]
	assert.Equal(t, "alice", conv.Correspondent.Username)
	assert.Equal(t, 2, conv.UnreadCount)
	assert.True(t, conv.LastMessage.IsSender)
	d.assertExpectations(t)
}

func TestConversationsRepoError(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	d.messages.On("LatestPerCorrespondent", mock.Anything, int64(2)).Return(nil, assert.AnError).Once()

	rec := doRequest(router, http.MethodGet, "/messages/conversations", "", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to load conversations"}`, rec.Body.String())
}

func TestThreadMarksRead(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	msgs := []models.Message{
		{ID: 1, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: sentAt, IsRead: true},
		{ID: 2, SenderID: 2, ReceiverID: 1, Content: "hey", CreatedAt: sentAt.Add(time.Minute)},
	}
	d.profiles.On("GetProfile", mock.Anything, int64(1)).Return(aliceP, nil).Once()
	d.messages.On("MarkThreadRead", mock.Anything, int64(2), int64(1)).Return(int64(1), nil).Once()
	d.messages.On("Thread", mock.Anything, int64(2), int64(1)).Return(msgs, nil).Once()
	d.profiles.On("BulkProfiles", mock.Anything, []int64{2}).Return(map[int64]models.Profile{2: bobP}, nil).Once()

	rec := doRequest(router, http.MethodGet, "/messages/thread/1", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp services.Thread
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Alice Moreau", resp.Correspondent.DisplayName)
	require.Len(t, resp.Messages, 2)
	assert.False(t, resp.Messages[0].IsSender)
	assert.True(t, resp.Messages[1].IsSender)
	assert.Equal(t, "bob", resp.Messages[1].Sender.Username)
	d.assertExpectations(t)
}

func TestThreadInvalidUserID(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	for _, id := range []string{"abc", "0", "-3"} {
		rec := doRequest(router, http.MethodGet, "/messages/thread/"+id, "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
}

func TestThreadUnknownUser(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	d.profiles.On("GetProfile", mock.Anything, int64(77)).Return(nil, repositories.ErrUserNotFound).Once()

	rec := doRequest(router, http.MethodGet, "/messages/thread/77", "", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User not found"}`, rec.Body.String())
	d.messages.AssertNotCalled(t, "MarkThreadRead", mock.Anything, mock.Anything, mock.Anything)
}

func TestMarkThreadReadEndpoint(t *testing.T) {
	d := newHandlerDeps()
	router := setupMessageRouter(d, bobP)

	d.profiles.On("GetProfile", mock.Anything, int64(1)).Return(aliceP, nil).Once()
	d.messages.On("MarkThreadRead", mock.Anything, int64(2), int64(1)).Return(int64(3), nil).Once()
	d.messages.On("UnreadCount", mock.Anything, int64(2)).Return(0, nil).Once()

	rec := doRequest(router, http.MethodPost, "/messages/thread/1/read", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked":3,"unread_count":0}`, rec.Body.String())
	d.assertExpectations(t)
}

func TestViewMessage(t *testing.T) {
	msg := models.Message{ID: 5, SenderID: 1, ReceiverID: 2, Content: "hi", CreatedAt: sentAt}

	t.Run("receiver marks read", func(t *testing.T) {
		d := newHandlerDeps()
		router := setupMessageRouter(d, bobP)
		d.messages.On("GetMessage", mock.Anything, int64(5)).Return(msg, nil).Once()
		d.messages.On("MarkRead", mock.Anything, int64(5)).Return(nil).Once()
		d.profiles.On("BulkProfiles", mock.Anything, []int64{1}).Return(map[int64]models.Profile{1: aliceP}, nil).Once()

		rec := doRequest(router, http.MethodGet, "/messages/5", "", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), `"is_read":true`))
		d.assertExpectations(t)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		d := newHandlerDeps()
		carol := models.Profile{ID: 3, Username: "carol", IsActive: true}
		router := setupMessageRouter(d, carol)
		d.messages.On("GetMessage", mock.Anything, int64(5)).Return(msg, nil).Once()

		rec := doRequest(router, http.MethodGet, "/messages/5", "", "")

		require.Equal(t, http.StatusForbidden, rec.Code)
		d.messages.AssertNotCalled(t, "MarkRead", mock.Anything, mock.Anything)
	})

	t.Run("missing", func(t *testing.T) {
		d := newHandlerDeps()
		router := setupMessageRouter(d, bobP)
		d.messages.On("GetMessage", mock.Anything, int64(6)).Return(nil, repositories.ErrMessageNotFound).Once()

		rec := doRequest(router, http.MethodGet, "/messages/6", "", "")

		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}
