package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"inbox-service/internal/apperrors"
	"inbox-service/internal/models"
)

var (
	ErrEmptyMessage    = apperrors.New(apperrors.ErrValidation, "Empty message")
	ErrMessageNotFound = apperrors.New(apperrors.ErrNotFound, "message not found")
)

const messageColumns = `id, sender_id, receiver_id, content, created_at, is_read`

// MessageRepository defines persistence of direct messages and their read state.
type MessageRepository interface {
	Append(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error)
	MarkThreadRead(ctx context.Context, viewerID, correspondentID int64) (int64, error)
	MarkRead(ctx context.Context, messageID int64) error
	Thread(ctx context.Context, userA, userB int64) ([]models.Message, error)
	UnreadCount(ctx context.Context, viewerID int64) (int, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	RecentReceived(ctx context.Context, viewerID int64, isRead bool, limit int) ([]models.Message, error)
	LatestPerCorrespondent(ctx context.Context, viewerID int64) ([]models.Message, error)
	UnreadCountsBySender(ctx context.Context, viewerID int64) (map[int64]int, error)
	Search(ctx context.Context, filter MessageFilter) ([]models.MessageWithParties, error)
}

// MessageFilter narrows the admin message listing.
type MessageFilter struct {
	Query  string
	IsRead *bool
	Limit  int
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db, now: time.Now}
}

// Append stores a new unread message. Content is trimmed and must not be empty.
func (r *MessageRepo) Append(ctx context.Context, senderID, receiverID int64, content string) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}

	var msg models.Message
	err := r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, receiver_id, content, created_at, is_read) VALUES ($1, $2, $3, $4, FALSE) RETURNING `+messageColumns,
		senderID, receiverID, content, r.now().UTC()).StructScan(&msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// MarkThreadRead flips every unread message sent by correspondent to viewer.
func (r *MessageRepo) MarkThreadRead(ctx context.Context, viewerID, correspondentID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE receiver_id=$1 AND sender_id=$2 AND is_read = FALSE`, viewerID, correspondentID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkRead flips a single message to read.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Thread returns all messages between two users in chronological order.
func (r *MessageRepo) Thread(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, userA, userB)
	return msgs, err
}

// UnreadCount counts unread messages received by the viewer.
func (r *MessageRepo) UnreadCount(ctx context.Context, viewerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM messages WHERE receiver_id=$1 AND is_read = FALSE`, viewerID)
	return count, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// RecentReceived returns the newest messages received by the viewer with the given read state.
func (r *MessageRepo) RecentReceived(ctx context.Context, viewerID int64, isRead bool, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	if limit <= 0 {
		return msgs, nil
	}
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE receiver_id=$1 AND is_read=$2
        ORDER BY created_at DESC, id DESC
        LIMIT $3`
	err := r.db.SelectContext(ctx, &msgs, query, viewerID, isRead, limit)
	return msgs, err
}

// LatestPerCorrespondent returns, for every user who has sent the viewer at
// least one message, the highest-id message exchanged with them in either
// direction. Newest conversation first.
func (r *MessageRepo) LatestPerCorrespondent(ctx context.Context, viewerID int64) ([]models.Message, error) {
	query := `SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at, m.is_read
        FROM messages m
        JOIN (
            SELECT CASE WHEN sender_id=$1 THEN receiver_id ELSE sender_id END AS correspondent, MAX(id) AS last_id
            FROM messages
            WHERE sender_id=$1 OR receiver_id=$1
            GROUP BY correspondent
        ) latest ON latest.last_id = m.id
        WHERE latest.correspondent IN (SELECT sender_id FROM messages WHERE receiver_id=$1)
        ORDER BY m.id DESC`
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, query, viewerID)
	return msgs, err
}

// UnreadCountsBySender groups the viewer's unread messages by sender.
func (r *MessageRepo) UnreadCountsBySender(ctx context.Context, viewerID int64) (map[int64]int, error) {
	var rows []struct {
		SenderID int64 `db:"sender_id"`
		Unread   int   `db:"unread"`
	}
	err := r.db.SelectContext(ctx, &rows, `SELECT sender_id, COUNT(*) AS unread FROM messages WHERE receiver_id=$1 AND is_read = FALSE GROUP BY sender_id`, viewerID)
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Unread
	}
	return counts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes q match literally inside a LIKE pattern.
func escapeLike(q string) string {
	return likeEscaper.Replace(q)
}

// Search lists messages newest first for the admin screen.
func (r *MessageRepo) Search(ctx context.Context, filter MessageFilter) ([]models.MessageWithParties, error) {
	var (
		where []string
		args  []any
	)
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(q))+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(`(LOWER(s.username) LIKE $%[1]d ESCAPE '\' OR LOWER(rc.username) LIKE $%[1]d ESCAPE '\' OR LOWER(m.content) LIKE $%[1]d ESCAPE '\')`, n))
	}
	if filter.IsRead != nil {
		args = append(args, *filter.IsRead)
		where = append(where, fmt.Sprintf("m.is_read = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)

	query := `SELECT m.id, m.sender_id, m.receiver_id, m.content, m.created_at, m.is_read,
            s.username AS sender_username, rc.username AS receiver_username
        FROM messages m
        JOIN users s ON s.id = m.sender_id
        JOIN users rc ON rc.id = m.receiver_id`
	if len(where) > 0 {
		query += "\n        WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf("\n        ORDER BY m.created_at DESC, m.id DESC\n        LIMIT $%d", len(args))

	rows := []models.MessageWithParties{}
	err := r.db.SelectContext(ctx, &rows, query, args...)
	return rows, err
}
