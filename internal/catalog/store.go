package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/nao1215/encore/pkg/apperror"
	"golang.org/x/crypto/bcrypt"
)

// timeLayout は作成日時の保存形式。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrDuplicateUser はユーザー名またはメールアドレスが登録済みであることを表す。
var ErrDuplicateUser = apperror.NewValidationError("ユーザー名またはメールアドレスは既に登録されています", "username", "email")

// Store はイベントとユーザーのSQLite実装。
type Store struct {
	db         *sqlx.DB
	now        func() time.Time
	bcryptCost int
}

// Option はStoreの設定を変更する関数。
type Option func(*Store)

// WithClock は作成日時に使う時計を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithBcryptCost はパスワードハッシュのコストを変更する。テストで使う。
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		s.bcryptCost = cost
	}
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now, bcryptCost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type eventRow struct {
	Event
	CreatedAt string `db:"created_at"`
}

func (r eventRow) toEvent() Event {
	e := r.Event
	e.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAt)
	return e
}

type userRow struct {
	User
	CreatedAt string `db:"created_at"`
}

func (r userRow) toUser() User {
	u := r.User
	u.CreatedAt, _ = time.Parse(timeLayout, r.CreatedAt)
	return u
}

const (
	eventColumns = `id, title, date, artist, location, description, organizer, created_at`
	userColumns  = `id, username, email, town, password_hash, created_at`
)

// CreateEvent はイベントを保存する。
func (s *Store) CreateEvent(ctx context.Context, in NewEvent) (Event, error) {
	if err := in.Validate(); err != nil {
		return Event{}, err
	}
	e := Event{
		ID:          uuid.New().String(),
		Title:       in.Title,
		Date:        in.Date,
		Artist:      in.Artist,
		Location:    in.Location,
		Description: in.Description,
		Organizer:   in.Organizer,
		CreatedAt:   s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Date, e.Artist, e.Location, e.Description, e.Organizer, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Event{}, apperror.Storage("event.create", err)
	}
	return e, nil
}

// ListEvents はイベントを新しい順に返す。
func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+eventColumns+` FROM events ORDER BY created_at DESC, rowid DESC`); err != nil {
		return nil, apperror.Storage("event.list", err)
	}
	events := make([]Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}

// GetEvent はイベントを1件取得する。
func (s *Store) GetEvent(ctx context.Context, id string) (Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id); err != nil {
		return Event{}, apperror.Storage("event.get", err)
	}
	if len(rows) == 0 {
		return Event{}, fmt.Errorf("イベント %s: %w", id, apperror.ErrNotFound)
	}
	return rows[0].toEvent(), nil
}

// FindUsersByTown はtownが完全一致（大文字小文字を区別）するユーザーを返す。
func (s *Store) FindUsersByTown(ctx context.Context, town string) ([]User, error) {
	var rows []userRow
	// SQLiteの = は既定でBINARY照合のため大文字小文字を区別する
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM users WHERE town = ? ORDER BY created_at, rowid`, town); err != nil {
		return nil, apperror.Storage("user.find_by_town", err)
	}
	users := make([]User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toUser())
	}
	return users, nil
}

// CreateUser はパスワードをハッシュ化してユーザーを登録する。
func (s *Store) CreateUser(ctx context.Context, in NewUser) (User, error) {
	if err := in.Validate(); err != nil {
		return User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return User{}, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	u := User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        in.Email,
		Town:         in.Town,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.Town, u.PasswordHash, u.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return User{}, ErrDuplicateUser
		}
		return User{}, apperror.Storage("user.create", err)
	}
	return u, nil
}

// GetUser はユーザーを1件取得する。
func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return s.getUserBy(ctx, "id", id)
}

// Authenticate はメールアドレスとパスワードを照合する。
// 一致しない場合は apperror.ErrUnauthorized を返す。
func (s *Store) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.getUserBy(ctx, "email", email)
	if errors.Is(err, apperror.ErrNotFound) {
		return User{}, fmt.Errorf("メールアドレスまたはパスワードが違います: %w", apperror.ErrUnauthorized)
	}
	if err != nil {
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, fmt.Errorf("メールアドレスまたはパスワードが違います: %w", apperror.ErrUnauthorized)
	}
	return u, nil
}

// getUserBy はcolumnの値でユーザーを検索する。columnは固定値のみ渡すこと。
func (s *Store) getUserBy(ctx context.Context, column, value string) (User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value); err != nil {
		return User{}, apperror.Storage("user.get", err)
	}
	if len(rows) == 0 {
		return User{}, fmt.Errorf("ユーザー %s: %w", value, apperror.ErrNotFound)
	}
	return rows[0].toUser(), nil
}

// UpdateTown はユーザーの居住地を変更する。以降のファンアウトから新しい値で判定される。
func (s *Store) UpdateTown(ctx context.Context, id, town string) (User, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET town = ? WHERE id = ?`, town, id)
	if err != nil {
		return User{}, apperror.Storage("user.update_town", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return User{}, apperror.Storage("user.update_town", err)
	}
	if n == 0 {
		return User{}, fmt.Errorf("ユーザー %s: %w", id, apperror.ErrNotFound)
	}
	return s.GetUser(ctx, id)
}
