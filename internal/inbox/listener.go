package inbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/nao1215/encore/internal/push"
	"github.com/nao1215/encore/pkg/logging"
)

// Listener はプッシュチャネルを購読し、新着の合図ごとにStateを取り直す。
// 受け取った通知の宛先は確認しない。
type Listener struct {
	state  *State
	url    string
	dialer *websocket.Dialer
}

// NewListener は新しいListenerを生成する。urlはws://host/ws の形式。
func NewListener(state *State, url string) *Listener {
	return &Listener{state: state, url: url, dialer: websocket.DefaultDialer}
}

// String はスーパーバイザーのログに出る名前を返す。
func (l *Listener) String() string {
	return "inbox-listener"
}

// Serve は接続が切れるかctxがキャンセルされるまで購読する。
// 切断時はエラーを返すので、再接続はスーパーバイザーに任せる。
func (l *Listener) Serve(ctx context.Context) error {
	conn, _, err := l.dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return fmt.Errorf("プッシュチャネルへの接続に失敗: %w", err)
	}
	defer conn.Close()

	// ReadMessageはctxを見ないため、キャンセル時に接続を閉じて抜ける
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	kick := make(chan struct{}, 1)
	loopCtx, cancelLoop := context.WithCancel(ctx)
	resyncDone := make(chan struct{})
	go func() {
		defer close(resyncDone)
		l.resyncLoop(loopCtx, kick)
	}()
	defer func() {
		cancelLoop()
		<-resyncDone
	}()

	logging.Info().Str("url", l.url).Msg("プッシュチャネルに接続しました")
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("プッシュチャネルが切断されました: %w", err)
		}
		msg, err := push.ParseMessage(payload)
		if err != nil {
			logging.Warn().Err(err).Msg("プッシュメッセージを無視しました")
			continue
		}
		if msg.Type != push.MessageTypeNewNotification {
			continue
		}
		// 連続した合図は1回の取得にまとめる
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

func (l *Listener) resyncLoop(ctx context.Context, kick <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
			if err := l.state.Resync(ctx); err != nil && !errors.Is(err, ErrStaleSnapshot) && ctx.Err() == nil {
				logging.Warn().Err(err).Msg("プッシュを受けた取得に失敗しました")
			}
		}
	}
}
