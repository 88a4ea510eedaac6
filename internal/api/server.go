package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/encore/internal/catalog"
	"github.com/nao1215/encore/internal/config"
	"github.com/nao1215/encore/internal/fanout"
	"github.com/nao1215/encore/internal/notification"
	"github.com/nao1215/encore/internal/push"
	"github.com/nao1215/encore/pkg/apperror"
	"github.com/nao1215/encore/pkg/logging"
	"github.com/nao1215/encore/pkg/middleware"
	"github.com/nao1215/encore/pkg/validation"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Poster は公演イベントを登録してファンアウトを起動する。
// fanout.Engine と fanout.Queue が実装する。
type Poster interface {
	Post(ctx context.Context, in catalog.NewEvent) (fanout.Result, error)
}

// Deps はServerが使う依存。
type Deps struct {
	Catalog       *catalog.Store
	Notifications *notification.Store
	Poster        Poster
	Hub           *push.Hub
}

// Server はencore APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// auth はJWTの設定。
	auth config.AuthConfig

	catalog       *catalog.Store
	notifications *notification.Store
	poster        Poster
	hub           *push.Hub
}

// NewServer は新しいServerを生成し、ルーティングを設定する。
func NewServer(cfg *config.Config, deps Deps) *Server {
	validation.RegisterGin()

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	s := &Server{
		router:        router,
		auth:          cfg.Auth,
		catalog:       deps.Catalog,
		notifications: deps.Notifications,
		poster:        deps.Poster,
		hub:           deps.Hub,
	}
	s.setupRoutes()
	return s
}

// Handler はhttp.Serverに渡すハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api")

	// 公演イベント（認証不要）
	events := api.Group("/events")
	{
		events.POST("", s.handlePostEvent())
		events.GET("", s.handleListEvents())
		events.GET("/:id", s.handleGetEvent())
	}

	// 通知
	notifications := api.Group("/notifications")
	{
		// 削除は認証なしで受け付ける
		notifications.DELETE("/:id", s.handleDeleteNotification())

		authed := notifications.Group("", middleware.JWTAuth(s.auth.JWTSecret))
		authed.POST("/mark-read", s.handleMarkRead())
		authed.POST("/mark-all-read", s.handleMarkAllRead())
		authed.GET("/:userId", s.handleListNotifications())
		authed.GET("/:userId/unread-count", s.handleUnreadCount())
	}

	// ユーザー
	users := api.Group("/users")
	{
		users.POST("", s.handleRegister())
		users.POST("/login", s.handleLogin())

		me := users.Group("/me", middleware.JWTAuth(s.auth.JWTSecret))
		me.GET("", s.handleGetMe())
		me.PUT("", s.handleUpdateMe())
	}

	// プッシュチャネル
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "encore"})
	})
}

// respondError はエラーの分類に応じたステータスで {"error": ...} を返す。
func respondError(c *gin.Context, err error) {
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.Error().Err(err).Str("path", c.FullPath()).Msg("リクエストの処理に失敗しました")
	}
	body := gin.H{"error": errorMessage(err)}
	var validationErr *apperror.ValidationError
	if errors.As(err, &validationErr) && len(validationErr.Fields) > 0 {
		body["fields"] = validationErr.Fields
	}
	c.JSON(status, body)
}

// errorMessage は利用者に返すメッセージを選ぶ。内部エラーの詳細は返さない。
func errorMessage(err error) string {
	var validationErr *apperror.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.Is(err, apperror.ErrNotFound):
		return err.Error()
	case errors.Is(err, apperror.ErrUnauthorized), errors.Is(err, apperror.ErrForbidden):
		return err.Error()
	default:
		return "内部エラーが発生しました。しばらくしてから再度お試しください"
	}
}
