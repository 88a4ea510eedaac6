package catalog

import (
	"time"

	"github.com/nao1215/encore/pkg/validation"
)

// Event は登録された公演イベント。
type Event struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Date        string    `json:"date" db:"date"`
	Artist      string    `json:"artist" db:"artist"`
	Location    string    `json:"location" db:"location"`
	Description string    `json:"description" db:"description"`
	Organizer   string    `json:"organizer" db:"organizer"`
	CreatedAt   time.Time `json:"createdAt" db:"-"`
}

// NewEvent はイベント登録の入力。
type NewEvent struct {
	Title       string `json:"title" validate:"required,notblank"`
	Date        string `json:"date" validate:"required,notblank"`
	Artist      string `json:"artist"`
	Location    string `json:"location" validate:"required,notblank"`
	Description string `json:"description"`
	Organizer   string `json:"organizer"`
}

// Validate は必須項目（title, date, location）を検証する。
func (e NewEvent) Validate() error {
	return validation.Struct(e, "title, date, location は必須です")
}

// User は登録ユーザー。Townが通知の宛先判定に使われる。
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	Town         string    `json:"town" db:"town"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"-"`
}

// NewUser はユーザー登録の入力。
type NewUser struct {
	Username string `json:"username" validate:"required,notblank"`
	Email    string `json:"email" validate:"required,notblank"`
	Password string `json:"password" validate:"required"`
	Town     string `json:"town"`
}

// Validate は必須項目を検証する。
func (u NewUser) Validate() error {
	return validation.Struct(u, "username, email, password は必須です")
}
