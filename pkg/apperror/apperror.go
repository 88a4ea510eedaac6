// Package apperror はサービス全体で共有するエラー分類を提供する。
//
// 入力不備（ValidationError）、存在しないID（ErrNotFound）、
// 認証エラー（ErrUnauthorized / ErrForbidden）、
// 永続化層の障害（StorageError）を区別し、HTTPステータスへ対応付ける。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound は指定されたIDのレコードが存在しないことを表す。
	ErrNotFound = errors.New("対象が見つかりません")
	// ErrUnauthorized は認証情報が無いことを表す。
	ErrUnauthorized = errors.New("認証が必要です")
	// ErrForbidden は認証情報が無効であるか、操作が許可されていないことを表す。
	ErrForbidden = errors.New("操作が許可されていません")
)

// ValidationError は利用者が修正可能な入力不備を表す。
type ValidationError struct {
	// Fields は不足または不正な項目名。
	Fields []string
	// Message は利用者向けのメッセージ。
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError は新しいValidationErrorを生成する。
func NewValidationError(message string, fields ...string) *ValidationError {
	return &ValidationError{Fields: fields, Message: message}
}

// StorageError は永続化層に到達できない、または操作に失敗したことを表す。
// 自動リトライは行わない。
type StorageError struct {
	// Op は失敗した操作名。
	Op string
	// Err は元のエラー。
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *StorageError) Error() string {
	return fmt.Sprintf("ストレージ操作 %s に失敗: %v", e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage はerrをStorageErrorで包む。errがnilの場合はnilを返す。
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// HTTPStatus はエラーに対応するHTTPステータスコードを返す。
func HTTPStatus(err error) int {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
