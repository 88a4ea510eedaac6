package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/encore/pkg/logging"
)

// RequestLogger は1リクエストごとに構造化ログを出力するGinミドルウェアを返す。
// gin.Logger() の代わりに使い、ログ出力をzerologに一本化する。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := logging.Info()
		if status >= 500 {
			ev = logging.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("リクエスト処理")
	}
}
