// Package config はencoreの設定を読み込む。
//
// 設定は次の順に重ねて読み込まれ、後のものが優先される。
//
//  1. 構造体の既定値
//  2. YAMLファイル（CONFIG_PATH または config.yaml）
//  3. ENCORE_ で始まる環境変数（ENCORE_SERVER_PORT → server.port）
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FanoutMode は通知ファンアウトの実行方式。
const (
	// FanoutModeSync はイベント登録リクエスト内で受信者ごとに同期的に通知を作成する。
	FanoutModeSync = "sync"
	// FanoutModeQueue はwatermillのキュー経由で非同期に通知を作成する。
	FanoutModeQueue = "queue"
)

// 実行環境。
const (
	// EnvDevelopment は開発環境。開発用の署名鍵を許可する。
	EnvDevelopment = "development"
	// EnvProduction は本番環境。
	EnvProduction = "production"
)

// Config はプロセス全体の設定。
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Fanout   FanoutConfig   `koanf:"fanout"`
	Push     PushConfig     `koanf:"push"`
	Logging  LoggingConfig  `koanf:"logging"`
	Inbox    InboxConfig    `koanf:"inbox"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	// Env は実行環境。development以外では開発用の署名鍵を拒否する。
	Env string `koanf:"env"`
	// Port は待ち受けポート。
	Port int `koanf:"port"`
	// CORSOrigins は許可するオリジン。"*" は全て許可する。
	CORSOrigins []string `koanf:"cors_origins"`
	// ShutdownTimeout はグレースフルシャットダウンの猶予。
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr はhttp.Serverに渡す待ち受けアドレスを返す。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// DatabaseConfig はSQLiteの設定。
type DatabaseConfig struct {
	// Path はデータベースファイルのパス。":memory:" も指定できる。
	Path string `koanf:"path"`
}

// AuthConfig はJWT認証の設定。
type AuthConfig struct {
	// JWTSecret は署名鍵。
	JWTSecret string `koanf:"jwt_secret"`
	// TokenTTL はログイン時に発行するトークンの有効期間。
	TokenTTL time.Duration `koanf:"token_ttl"`
	// EnforceOwner がtrueの場合、通知一覧の取得をトークンの本人に限定する。
	EnforceOwner bool `koanf:"enforce_owner"`
}

// FanoutConfig は通知ファンアウトの設定。
type FanoutConfig struct {
	// Mode は sync または queue。
	Mode string `koanf:"mode"`
	// RetryMax はqueueモードで受信者ごとに再試行する最大回数。
	RetryMax int `koanf:"retry_max"`
	// RetryInitialInterval は最初の再試行までの待ち時間。
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval"`
	// Buffer はgochannelの出力バッファ。
	Buffer int64 `koanf:"buffer"`
}

// PushConfig はWebSocketプッシュの設定。
type PushConfig struct {
	// BroadcastBuffer はハブのブロードキャストキューの長さ。
	BroadcastBuffer int `koanf:"broadcast_buffer"`
	// SendBuffer はクライアントごとの送信キューの長さ。
	SendBuffer int `koanf:"send_buffer"`
}

// LoggingConfig はロガーの設定。
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// InboxConfig はinboxwatchクライアントの設定。
type InboxConfig struct {
	// BaseURL はAPIのベースURL。
	BaseURL string `koanf:"base_url"`
	// WSURL はプッシュ用WebSocketのURL。
	WSURL string `koanf:"ws_url"`
	// Token はBearerトークン。
	Token string `koanf:"token"`
	// UserID は通知を取得するユーザーID。
	UserID string `koanf:"user_id"`
	// PollInterval はポーリング間隔。
	PollInterval time.Duration `koanf:"poll_interval"`
}

// IsDevelopment は開発環境で動いているかを返す。
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == EnvDevelopment
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port が範囲外です: %d", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path は必須です"))
	}
	switch {
	case c.Auth.JWTSecret == "":
		errs = append(errs, errors.New("auth.jwt_secret は必須です"))
	case c.Auth.JWTSecret == DefaultJWTSecret && !c.IsDevelopment():
		errs = append(errs, fmt.Errorf("server.env が %q の場合は開発用の auth.jwt_secret を使えません", c.Server.Env))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl は正の値である必要があります"))
	}
	switch c.Fanout.Mode {
	case FanoutModeSync, FanoutModeQueue:
	default:
		errs = append(errs, fmt.Errorf("fanout.mode は %s または %s です: %q", FanoutModeSync, FanoutModeQueue, c.Fanout.Mode))
	}
	if c.Fanout.RetryMax < 0 {
		errs = append(errs, errors.New("fanout.retry_max は0以上である必要があります"))
	}
	if c.Push.BroadcastBuffer <= 0 || c.Push.SendBuffer <= 0 {
		errs = append(errs, errors.New("push のバッファは正の値である必要があります"))
	}
	if c.Inbox.PollInterval <= 0 {
		errs = append(errs, errors.New("inbox.poll_interval は正の値である必要があります"))
	}
	return errors.Join(errs...)
}
