package inbox

import (
	"context"
	"net/url"

	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/pkg/httpclient"
)

// Source はサーバー上の通知を読み書きする。
type Source interface {
	List(ctx context.Context, recipientID string) ([]notification.Notification, error)
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// HTTPSource はencore APIを呼び出すSource。
type HTTPSource struct {
	client *httpclient.Client
}

// NewHTTPSource は新しいHTTPSourceを生成する。
func NewHTTPSource(client *httpclient.Client) *HTTPSource {
	return &HTTPSource{client: client}
}

// List は受信者宛ての通知を新しい順に取得する。
func (s *HTTPSource) List(ctx context.Context, recipientID string) ([]notification.Notification, error) {
	var items []notification.Notification
	if err := s.client.GetJSON(ctx, "/api/notifications/"+url.PathEscape(recipientID), &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []notification.Notification{}
	}
	return items, nil
}

// MarkRead は通知を既読にする。
func (s *HTTPSource) MarkRead(ctx context.Context, id string) error {
	return s.client.PostJSON(ctx, "/api/notifications/mark-read", map[string]string{"notificationId": id}, nil)
}

// Delete は通知を削除する。
func (s *HTTPSource) Delete(ctx context.Context, id string) error {
	return s.client.DeleteJSON(ctx, "/api/notifications/"+url.PathEscape(id), nil)
}
