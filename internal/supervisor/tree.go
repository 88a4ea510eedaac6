// Package supervisor はsutureでプロセス内のサービスを監視する。
//
// ツリーはルートの下にmessaging層（プッシュハブ、ファンアウトキュー、
// inboxの状態管理）とapi層（HTTPサーバー、プッシュ購読）を持つ。
// 一方の層で再起動が続いても、もう一方の層は動き続ける。
package supervisor

import (
	"context"
	"time"

	"github.com/nao1215/encore/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Config はツリーの再起動方針。0の項目は既定値になる。
type Config struct {
	// FailureThreshold はバックオフに入るまでの失敗回数。
	FailureThreshold float64
	// FailureDecay は失敗回数が減衰する秒数。
	FailureDecay float64
	// FailureBackoff はバックオフ中の待ち時間。
	FailureBackoff time.Duration
	// ShutdownTimeout は各サービスの停止を待つ時間。
	ShutdownTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.FailureDecay == 0 {
		c.FailureDecay = 30
	}
	if c.FailureBackoff == 0 {
		c.FailureBackoff = 15 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}

// Tree はencoreのスーパーバイザーツリー。
type Tree struct {
	root      *suture.Supervisor
	messaging *suture.Supervisor
	api       *suture.Supervisor
}

// New は新しいTreeを生成する。nameはルートの名前としてログに出る。
func New(name string, cfg Config) *Tree {
	cfg = cfg.withDefaults()

	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = logEvent

	root := suture.New(name, rootSpec)
	messaging := suture.New("messaging-layer", spec)
	api := suture.New("api-layer", spec)
	root.Add(messaging)
	root.Add(api)

	return &Tree{root: root, messaging: messaging, api: api}
}

// AddMessagingService はmessaging層にサービスを追加する。
func (t *Tree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

// AddAPIService はapi層にサービスを追加する。
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve はctxがキャンセルされるまでツリーを動かす。
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground はツリーを別ゴルーチンで動かし、終了を受け取るチャネルを返す。
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport は停止期限までに止まらなかったサービスを返す。
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// logEvent はsutureのイベントをzerologに出力する。
func logEvent(e suture.Event) {
	var ev *zerolog.Event
	switch e.Type() {
	case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
		ev = logging.Error()
	case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
		ev = logging.Warn()
	default:
		ev = logging.Info()
	}
	ev.Str("component", "supervisor").Fields(e.Map()).Msg(e.String())
}
