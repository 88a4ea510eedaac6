package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nao1215/encore/internal/catalog"
	"github.com/nao1215/encore/internal/metrics"
	"github.com/nao1215/encore/pkg/event"
	"github.com/nao1215/encore/pkg/logging"
)

const (
	// TopicEventPosted はイベント登録を流すトピック。
	TopicEventPosted = "events.posted"
	// TopicNotificationRequested は受信者ごとの通知作成要求を流すトピック。
	TopicNotificationRequested = "notifications.requested"

	handlerExpand  = "fanout.expand"
	handlerDeliver = "fanout.deliver"
)

// QueueConfig はQueueの設定。
type QueueConfig struct {
	// RetryMax は受信者ごとの再試行回数。
	RetryMax int
	// RetryInitialInterval は最初の再試行までの待ち時間。以降は倍々に伸びる。
	RetryInitialInterval time.Duration
	// Buffer はgochannelの出力バッファ。
	Buffer int64
	// CloseTimeout は停止時に処理中のメッセージを待つ時間。
	CloseTimeout time.Duration
}

// Queue はwatermillのgochannelを使って非同期にファンアウトする。
// Serveが動いている間だけ受け付ける。
type Queue struct {
	engine *Engine
	cfg    QueueConfig
	logger watermill.LoggerAdapter

	mu  sync.Mutex
	pub message.Publisher
	// ready はpubが設定されたときに閉じられる。
	ready chan struct{}
}

// NewQueue は新しいQueueを生成する。受信者の検索や通知の作成はengineの依存先を使う。
func NewQueue(engine *Engine, cfg QueueConfig) *Queue {
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 10 * time.Second
	}
	return &Queue{
		engine: engine,
		cfg:    cfg,
		logger: logging.NewWatermillAdapter("fanout-queue"),
		ready:  make(chan struct{}),
	}
}

// String はスーパーバイザーのログに出る名前を返す。
func (q *Queue) String() string {
	return "fanout-queue"
}

// Serve はctxがキャンセルされるまでルーターを動かす。
// 呼び出しごとに新しいpub/subとルーターを作るため、再起動できる。
func (q *Queue) Serve(ctx context.Context) error {
	pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: q.cfg.Buffer}, q.logger)
	defer pubsub.Close()

	router, err := q.newRouter(pubsub)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- router.Run(ctx) }()

	select {
	case <-router.Running():
		q.setPublisher(pubsub)
	case err := <-errCh:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ファンアウトキューが起動前に停止しました: %v", err)
	}

	err = <-errCh
	q.setPublisher(nil)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (q *Queue) newRouter(pubsub *gochannel.GoChannel) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: q.cfg.CloseTimeout}, q.logger)
	if err != nil {
		return nil, fmt.Errorf("watermillルーターの作成に失敗: %w", err)
	}

	// 外側から順に適用される。再試行不可のエラーはRetryより内側で打ち切る
	router.AddMiddleware(
		q.dropExhausted,
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      q.cfg.RetryMax,
			InitialInterval: q.cfg.RetryInitialInterval,
			MaxInterval:     q.cfg.RetryInitialInterval * 16,
			Multiplier:      2,
			Logger:          q.logger,
		}.Middleware,
		q.ackPermanent,
	)

	router.AddHandler(handlerExpand, TopicEventPosted, pubsub, TopicNotificationRequested, pubsub, q.expand)
	router.AddConsumerHandler(handlerDeliver, TopicNotificationRequested, pubsub, q.deliver)
	return router, nil
}

func (q *Queue) setPublisher(pub message.Publisher) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pub = pub
	if pub != nil {
		close(q.ready)
	} else {
		q.ready = make(chan struct{})
	}
}

// publisher はルーターが動き出すまで待ってからPublisherを返す。
func (q *Queue) publisher(ctx context.Context) (message.Publisher, error) {
	for {
		q.mu.Lock()
		pub, ready := q.pub, q.ready
		q.mu.Unlock()
		if pub != nil {
			return pub, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("ファンアウトキューが起動していません: %w", ctx.Err())
		}
	}
}

// Post はイベントを保存し、ファンアウトをキューに委ねてすぐに戻る。
// イベントの保存に失敗した場合は何も投入しない。
func (q *Queue) Post(ctx context.Context, in catalog.NewEvent) (Result, error) {
	if err := in.Validate(); err != nil {
		return Result{}, err
	}
	ev, err := q.engine.events.CreateEvent(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("イベントの保存に失敗: %w", err)
	}

	env, err := event.New(ev.ID, event.AggregateTypeEvent, event.TypeEventPosted, event.EventPostedData{
		EventID:  ev.ID,
		Title:    ev.Title,
		Location: ev.Location,
	})
	if err != nil {
		return Result{Event: ev}, err
	}
	payload, err := env.Marshal()
	if err != nil {
		return Result{Event: ev}, err
	}

	pub, err := q.publisher(ctx)
	if err != nil {
		return Result{Event: ev}, err
	}
	if err := pub.Publish(TopicEventPosted, message.NewMessage(env.ID, payload)); err != nil {
		return Result{Event: ev}, fmt.Errorf("イベントの投入に失敗: %w", err)
	}

	logging.Info().Str("event_id", ev.ID).Str("location", ev.Location).Msg("ファンアウトをキューに投入しました")
	return Result{Event: ev, Queued: true}, nil
}

// expand は登録されたイベントを受信者ごとの通知作成要求に展開する。
func (q *Queue) expand(msg *message.Message) ([]*message.Message, error) {
	start := time.Now()

	env, err := event.Parse(msg.Payload, event.TypeEventPosted)
	if err != nil {
		return nil, permanent(err)
	}
	data, err := event.DecodeData[event.EventPostedData](env)
	if err != nil {
		return nil, permanent(err)
	}

	recipients, err := q.engine.users.FindUsersByTown(msg.Context(), data.Location)
	if err != nil {
		return nil, fmt.Errorf("受信者の検索に失敗: %w", err)
	}

	text := Message(data.Title, data.Location)
	out := make([]*message.Message, 0, len(recipients))
	for _, u := range recipients {
		req, err := event.New(u.ID, event.AggregateTypeNotification, event.TypeNotificationRequested, event.NotificationRequestedData{
			RecipientID: u.ID,
			EventID:     data.EventID,
			Message:     text,
		})
		if err != nil {
			return nil, permanent(err)
		}
		payload, err := req.Marshal()
		if err != nil {
			return nil, permanent(err)
		}
		out = append(out, message.NewMessage(req.ID, payload))
	}

	metrics.FanoutDuration.WithLabelValues(modeQueue).Observe(time.Since(start).Seconds())
	logging.Info().Str("event_id", data.EventID).Int("recipients", len(recipients)).Msg("受信者を展開しました")
	return out, nil
}

// deliver は1人の受信者の通知を作成して配信する。
func (q *Queue) deliver(msg *message.Message) error {
	env, err := event.Parse(msg.Payload, event.TypeNotificationRequested)
	if err != nil {
		return permanent(err)
	}
	data, err := event.DecodeData[event.NotificationRequestedData](env)
	if err != nil {
		return permanent(err)
	}

	n, err := q.engine.notifications.Create(msg.Context(), data.RecipientID, data.EventID, data.Message)
	if err != nil {
		return fmt.Errorf("通知の作成に失敗: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(modeQueue).Inc()
	q.engine.push.Broadcast(n)
	return nil
}

// errPermanent は再試行しても成功しないエラーを表す。
var errPermanent = errors.New("再試行不可")

func permanent(err error) error {
	return errors.Join(errPermanent, err)
}

// dropExhausted は再試行を使い切ったメッセージをログに残してAckする。
// NackしたメッセージはgochannelがAckされるまで再配送する。
func (q *Queue) dropExhausted(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err == nil {
			return out, nil
		}
		giveUp(msg, err)
		return nil, nil
	}
}

// ackPermanent は再試行不可のエラーをその場でAckし、Retryに渡さない。
func (q *Queue) ackPermanent(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil && errors.Is(err, errPermanent) {
			giveUp(msg, err)
			return nil, nil
		}
		return out, err
	}
}

func giveUp(msg *message.Message, err error) {
	handler := message.HandlerNameFromCtx(msg.Context())
	if handler == handlerDeliver {
		metrics.FanoutFailures.WithLabelValues(modeQueue).Inc()
	}
	logging.Error().Err(err).
		Str("handler", handler).
		Str("message_uuid", msg.UUID).
		Bool("permanent", errors.Is(err, errPermanent)).
		Msg("メッセージの処理を断念しました")
}
