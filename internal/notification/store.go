package notification

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/encore/pkg/apperror"
)

// timeLayout は作成日時の保存形式。
// 文字列比較で時系列順になるよう固定幅にしている。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store は通知レコードのSQLite実装。
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Option はStoreの設定を変更する関数。
type Option func(*Store)

// WithClock は作成日時に使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore は新しいStoreを生成する。dbにはマイグレーション適用済みの接続を渡す。
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// row はnotificationsテーブルの1行。
type row struct {
	ID            string `db:"id"`
	RecipientID   string `db:"recipient_id"`
	SourceEventID string `db:"source_event_id"`
	Message       string `db:"message"`
	Read          bool   `db:"is_read"`
	CreatedAt     string `db:"created_at"`
}

func (r row) toNotification() (Notification, error) {
	createdAt, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("作成日時 %q の解析に失敗: %w", r.CreatedAt, err)
	}
	return Notification{
		ID:            r.ID,
		RecipientID:   r.RecipientID,
		SourceEventID: r.SourceEventID,
		Message:       r.Message,
		Read:          r.Read,
		CreatedAt:     createdAt,
	}, nil
}

const selectColumns = `SELECT id, recipient_id, source_event_id, message, is_read, created_at FROM notifications`

// Create は未読の通知を1件作成する。
func (s *Store) Create(ctx context.Context, recipientID, sourceEventID, message string) (Notification, error) {
	n := Notification{
		ID:            uuid.New().String(),
		RecipientID:   recipientID,
		SourceEventID: sourceEventID,
		Message:       message,
		CreatedAt:     s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient_id, source_event_id, message, is_read, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		n.ID, n.RecipientID, n.SourceEventID, n.Message, n.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Notification{}, apperror.Storage("notification.create", err)
	}
	return n, nil
}

// ListByRecipient は受信者宛ての通知を新しい順に返す。
// 該当が無い場合は空のスライスを返す。
func (s *Store) ListByRecipient(ctx context.Context, recipientID string) ([]Notification, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		selectColumns+` WHERE recipient_id = ? ORDER BY created_at DESC, rowid DESC`, recipientID)
	if err != nil {
		return nil, apperror.Storage("notification.list", err)
	}

	notifications := make([]Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.toNotification()
		if err != nil {
			return nil, apperror.Storage("notification.list", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, nil
}

// Get は通知を1件取得する。
func (s *Store) Get(ctx context.Context, id string) (Notification, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, selectColumns+` WHERE id = ?`, id); err != nil {
		return Notification{}, apperror.Storage("notification.get", err)
	}
	if len(rows) == 0 {
		return Notification{}, fmt.Errorf("通知 %s: %w", id, apperror.ErrNotFound)
	}
	n, err := rows[0].toNotification()
	if err != nil {
		return Notification{}, apperror.Storage("notification.get", err)
	}
	return n, nil
}

// MarkRead は通知を既読にする。既読の通知に対しても成功する。
func (s *Store) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	return affectedOne(res, err, "notification.mark_read", id)
}

// Delete は通知を削除する。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	return affectedOne(res, err, "notification.delete", id)
}

// CountUnread は受信者宛ての未読通知の件数を返す。
func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, apperror.Storage("notification.count_unread", err)
	}
	return n, nil
}

// MarkAllRead は受信者宛ての未読通知を全て既読にし、更新件数を返す。
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`, recipientID)
	if err != nil {
		return 0, apperror.Storage("notification.mark_all_read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Storage("notification.mark_all_read", err)
	}
	return n, nil
}

// affectedOne は1行も更新されなかった場合にErrNotFoundを返す。
func affectedOne(res sql.Result, err error, op, id string) error {
	if err != nil {
		return apperror.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperror.Storage(op, err)
	}
	if n == 0 {
		return fmt.Errorf("通知 %s: %w", id, apperror.ErrNotFound)
	}
	return nil
}
