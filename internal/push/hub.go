package push

import (
	"cmp"
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nao1215/encore/internal/metrics"
	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/pkg/logging"
)

// Hub は接続中のクライアントを管理し、メッセージを全員に配信する。
// クライアント集合はRunWithContextのゴルーチンだけが変更する。
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	// done はRunWithContextの終了時に閉じられる。
	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	sendBuffer int
	upgrader   websocket.Upgrader
}

// NewHub は新しいHubを生成する。
// broadcastBufferはハブのキュー長、sendBufferはクライアントごとの送信キュー長。
func NewHub(broadcastBuffer, sendBuffer int) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// ソケットは認証なしで公開している
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// String はスーパーバイザーのログに出る名前を返す。
func (h *Hub) String() string {
	return "push-hub"
}

// Serve はRunWithContextを呼び出す。スーパーバイザーから起動される。
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// RunWithContext はctxがキャンセルされるまでクライアントの登録と配信を処理する。
// 終了時には全クライアントを切断する。
func (h *Hub) RunWithContext(ctx context.Context) error {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		// 登録と解除を配信より先に処理する
		select {
		case client := <-h.register:
			h.add(client)
			continue
		case client := <-h.unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			n := h.ClientCount()
			h.closeAll()
			logging.Info().Str("component", "push-hub").Int("clients_closed", n).Msg("プッシュハブを停止しました")
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// Broadcast は通知を接続中の全クライアントへ送る。宛先による絞り込みは行わない。
// ハブのキューが満杯の場合は破棄する。
func (h *Hub) Broadcast(n notification.Notification) {
	h.enqueue(Message{Type: MessageTypeNewNotification, Data: n})
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		metrics.PushDropped.WithLabelValues("hub_full").Inc()
		logging.Warn().Str("type", msg.Type).Msg("ブロードキャストキューが満杯のためメッセージを破棄しました")
	}
}

// ClientCount は接続中のクライアント数を返す。
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS はHTTPリクエストをWebSocketにアップグレードしてクライアントを登録する。
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocketへのアップグレードに失敗しました")
		return
	}

	client := newClient(h, conn, h.sendBuffer)
	select {
	case h.register <- client:
		client.start()
	case <-h.done:
		_ = conn.Close()
	case <-r.Context().Done():
		_ = conn.Close()
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.PushClients.Inc()
	logging.Debug().Uint64("client_id", c.id).Int("total_clients", n).Msg("WebSocketクライアントが接続しました")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.PushClients.Dec()
		logging.Debug().Uint64("client_id", c.id).Int("total_clients", n).Msg("WebSocketクライアントが切断しました")
	}
}

// deliver はメッセージを接続順に各クライアントの送信キューへ入れる。
// 送信キューが満杯のクライアントは切断する。
func (h *Hub) deliver(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	slices.SortFunc(clients, func(a, b *Client) int { return cmp.Compare(a.id, b.id) })

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			metrics.PushClients.Dec()
			metrics.PushDropped.WithLabelValues("slow_client").Inc()
			logging.Warn().Uint64("client_id", c.id).Msg("送信キューが満杯のクライアントを切断しました")
		}
	}
	metrics.PushBroadcasts.Inc()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		metrics.PushClients.Dec()
	}
}

// enqueueTo は1つのクライアントにだけメッセージを送る。登録解除済みなら何もしない。
func (h *Hub) enqueueTo(c *Client, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
