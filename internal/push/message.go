package push

import (
	"fmt"

	"github.com/goccy/go-json"
)

// MessageTypeNewNotification は新着通知を表すメッセージ種別。
const MessageTypeNewNotification = "newNotification"

const (
	messageTypePing = "ping"
	messageTypePong = "pong"
)

// Message はWebSocketで送受信するメッセージ。
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Incoming は受信側で解析したメッセージ。Dataは種別に応じて後からデコードする。
type Incoming struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ParseMessage は受信したテキストフレームを解析する。
func ParseMessage(b []byte) (Incoming, error) {
	var in Incoming
	if err := json.Unmarshal(b, &in); err != nil {
		return Incoming{}, fmt.Errorf("プッシュメッセージの解析に失敗: %w", err)
	}
	return in, nil
}
