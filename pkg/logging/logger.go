// Package logging はzerologベースの構造化ロガーを提供する。
//
// プロセス全体で1つのロガーを共有する。main関数の冒頭でInitを呼び出して
// 出力形式とレベルを設定し、各パッケージはInfo()やError()から
// ログイベントを組み立てて Msg() で出力する。
//
//	logging.Info().Str("event_id", id).Int("recipients", n).Msg("ファンアウト完了")
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config はロガーの設定。
type Config struct {
	// Level は出力する最小レベル（debug, info, warn, error）。
	Level string
	// Format は出力形式（json または console）。
	Format string
	// Output はログの出力先。nilの場合は標準エラー出力。
	Output io.Writer
}

var (
	// log はプロセス全体で共有するロガー。
	log zerolog.Logger
	// mu はlogの差し替えを保護する。
	mu sync.RWMutex
)

func init() {
	initLogger(Config{Level: "info", Format: "json"})
}

// Init はグローバルロガーを設定する。複数回呼び出してもよい。
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

// initLogger はmuを保持した状態で呼び出すこと。
func initLogger(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}
	log = zerolog.New(output).With().Timestamp().Logger()
}

// parseLevel は文字列のレベルをzerologのレベルに変換する。
// 不明な値はinfoとして扱う。
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Logger は現在のグローバルロガーのコピーを返す。
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// With はフィールドを追加した子ロガーを返す。
// コンポーネント単位でフィールドを固定したい場合に使う。
func With(key, value string) zerolog.Logger {
	l := Logger()
	return l.With().Str(key, value).Logger()
}

// Debug はdebugレベルのログイベントを開始する。
func Debug() *zerolog.Event {
	l := Logger()
	return l.Debug()
}

// Info はinfoレベルのログイベントを開始する。
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn はwarnレベルのログイベントを開始する。
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

// Error はerrorレベルのログイベントを開始する。
func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}
