// encoreサーバーのエントリポイント。
// 公演イベントの登録を受けて開催地のユーザーへ通知を作成し、
// WebSocketで接続中のクライアントへ新着を配信する。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/encore/internal/api"
	"github.com/nao1215/encore/internal/catalog"
	"github.com/nao1215/encore/internal/config"
	"github.com/nao1215/encore/internal/database"
	"github.com/nao1215/encore/internal/fanout"
	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/internal/push"
	"github.com/nao1215/encore/internal/supervisor"
	"github.com/nao1215/encore/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Error().Err(err).Msg("encoreサーバーが異常終了しました")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if cfg.Auth.JWTSecret == config.DefaultJWTSecret {
		logging.Warn().Str("env", cfg.Server.Env).Msg("開発用の署名鍵で起動しています。本番では auth.jwt_secret を設定してください")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	defer db.Close()

	cat := catalog.NewStore(db)
	notifications := notification.NewStore(db)
	hub := push.NewHub(cfg.Push.BroadcastBuffer, cfg.Push.SendBuffer)
	engine := fanout.NewEngine(cat, cat, notifications, hub)

	tree := supervisor.New("encore", supervisor.Config{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddMessagingService(hub)

	var poster api.Poster = engine
	if cfg.Fanout.Mode == config.FanoutModeQueue {
		queue := fanout.NewQueue(engine, fanout.QueueConfig{
			RetryMax:             cfg.Fanout.RetryMax,
			RetryInitialInterval: cfg.Fanout.RetryInitialInterval,
			Buffer:               cfg.Fanout.Buffer,
			CloseTimeout:         cfg.Server.ShutdownTimeout,
		})
		tree.AddMessagingService(queue)
		poster = queue
	}

	server := api.NewServer(cfg, api.Deps{
		Catalog:       cat,
		Notifications: notifications,
		Poster:        poster,
		Hub:           hub,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPService(httpServer, cfg.Server.ShutdownTimeout))

	logging.Info().
		Str("addr", httpServer.Addr).
		Str("fanout_mode", cfg.Fanout.Mode).
		Str("database", cfg.Database.Path).
		Msg("encoreサーバーを起動します")

	if err := tree.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("スーパーバイザーが停止しました: %w", err)
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		logging.Warn().Int("services", len(report)).Msg("停止期限までに止まらなかったサービスがあります")
	}
	logging.Info().Msg("encoreサーバーを停止しました")
	return nil
}
