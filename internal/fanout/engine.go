package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/encore/internal/catalog"
	"github.com/nao1215/encore/internal/metrics"
	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/pkg/logging"
)

// EventWriter は公演イベントを保存する。
type EventWriter interface {
	CreateEvent(ctx context.Context, in catalog.NewEvent) (catalog.Event, error)
}

// RecipientFinder は開催地に住むユーザーを探す。
type RecipientFinder interface {
	FindUsersByTown(ctx context.Context, town string) ([]catalog.User, error)
}

// Creator は通知を1件作成する。
type Creator interface {
	Create(ctx context.Context, recipientID, sourceEventID, message string) (notification.Notification, error)
}

// Broadcaster は作成された通知を接続中のクライアントへ配信する。
type Broadcaster interface {
	Broadcast(n notification.Notification)
}

// Result はイベント登録の結果。
type Result struct {
	// Event は保存されたイベント。
	Event catalog.Event
	// NotificationSent は1件以上の通知を作成できたかどうか。
	NotificationSent bool
	// Created は作成できた通知の件数。
	Created int
	// Failed は作成に失敗した受信者の数。
	Failed int
	// Queued はファンアウトをキューに委ねた場合にtrueになる。
	Queued bool
}

// Message は通知本文を組み立てる。作成時点のタイトルと開催地で確定する。
func Message(title, location string) string {
	return fmt.Sprintf("New event \"%s\" happening in your town (%s)!", title, location)
}

// Engine はリクエスト内で同期的にファンアウトする。
type Engine struct {
	events        EventWriter
	users         RecipientFinder
	notifications Creator
	push          Broadcaster
}

// NewEngine は新しいEngineを生成する。
func NewEngine(events EventWriter, users RecipientFinder, notifications Creator, push Broadcaster) *Engine {
	return &Engine{
		events:        events,
		users:         users,
		notifications: notifications,
		push:          push,
	}
}

// Post はイベントを保存し、開催地が完全一致するユーザー全員に通知を作成する。
// イベントの保存に失敗した場合は通知を1件も作らない。
func (e *Engine) Post(ctx context.Context, in catalog.NewEvent) (Result, error) {
	start := time.Now()

	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	ev, err := e.events.CreateEvent(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("イベントの保存に失敗: %w", err)
	}

	recipients, err := e.users.FindUsersByTown(ctx, ev.Location)
	if err != nil {
		return Result{Event: ev}, fmt.Errorf("受信者の検索に失敗: %w", err)
	}

	msg := Message(ev.Title, ev.Location)
	created := make([]notification.Notification, 0, len(recipients))
	failed := 0
	for _, u := range recipients {
		n, err := e.notifications.Create(ctx, u.ID, ev.ID, msg)
		if err != nil {
			failed++
			metrics.FanoutFailures.WithLabelValues(modeSync).Inc()
			logging.Error().Err(err).
				Str("event_id", ev.ID).
				Str("recipient_id", u.ID).
				Msg("通知の作成に失敗しました")
			continue
		}
		created = append(created, n)
	}

	for _, n := range created {
		e.push.Broadcast(n)
	}

	metrics.NotificationsCreated.WithLabelValues(modeSync).Add(float64(len(created)))
	metrics.FanoutDuration.WithLabelValues(modeSync).Observe(time.Since(start).Seconds())
	logging.Info().
		Str("event_id", ev.ID).
		Str("location", ev.Location).
		Int("recipients", len(recipients)).
		Int("created", len(created)).
		Int("failed", failed).
		Msg("ファンアウトが完了しました")

	return Result{
		Event:            ev,
		NotificationSent: len(created) > 0,
		Created:          len(created),
		Failed:           failed,
	}, nil
}

const (
	modeSync  = "sync"
	modeQueue = "queue"
)
