package event

import (
	"time"

	"github.com/goccy/go-json"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeEvent は公演イベントエンティティを表す。
	AggregateTypeEvent AggregateType = "Event"
	// AggregateTypeNotification は通知エンティティを表す。
	AggregateTypeNotification AggregateType = "Notification"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeEventPosted は公演イベントが登録されたことを表す。
	// ファンアウトキューの起点となる。
	TypeEventPosted Type = "EventPosted"
	// TypeNotificationRequested は1人の受信者への通知作成が要求されたことを表す。
	TypeNotificationRequested Type = "NotificationRequested"
)

// Envelope はキューを流れるドメインイベントの共通形式。
type Envelope struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// EventPostedData はEventPostedイベントのデータ。
type EventPostedData struct {
	// EventID は登録された公演イベントのID。
	EventID string `json:"event_id"`
	// Title は公演タイトル。
	Title string `json:"title"`
	// Location は開催地。受信者の絞り込みに使う。
	Location string `json:"location"`
}

// NotificationRequestedData はNotificationRequestedイベントのデータ。
type NotificationRequestedData struct {
	// RecipientID は通知先のユーザーID。
	RecipientID string `json:"recipient_id"`
	// EventID は通知の元になった公演イベントのID。
	EventID string `json:"event_id"`
	// Message は作成時点で確定した通知本文。
	Message string `json:"message"`
}
