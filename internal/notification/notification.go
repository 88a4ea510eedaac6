package notification

import "time"

// Notification は1人の受信者に宛てた通知。
type Notification struct {
	// ID は通知の一意識別子（UUID）。
	ID string `json:"id" db:"id"`
	// RecipientID は通知先のユーザーID。作成後は変わらない。
	RecipientID string `json:"recipientId" db:"recipient_id"`
	// SourceEventID は通知の元になった公演イベントのID。
	SourceEventID string `json:"sourceEventId" db:"source_event_id"`
	// Message は作成時に確定した本文。
	Message string `json:"message" db:"message"`
	// Read は既読状態。
	Read bool `json:"read" db:"is_read"`
	// CreatedAt は作成日時。一覧はこの降順で並ぶ。
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CountUnread はnotificationsのうち未読のものを数える。
func CountUnread(notifications []Notification) int {
	n := 0
	for _, item := range notifications {
		if !item.Read {
			n++
		}
	}
	return n
}
