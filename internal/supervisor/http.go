package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer は*http.Serverの起動と停止。
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService はHTTPサーバーをスーパーバイザーのサービスとして動かす。
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService は新しいHTTPServiceを生成する。
// shutdownTimeoutが0以下の場合は10秒待つ。
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// String はスーパーバイザーのログに出る名前を返す。
func (h *HTTPService) String() string {
	return "http-server"
}

// Serve はサーバーを起動し、ctxがキャンセルされたらグレースフルに停止する。
func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
		}
		return nil
	case <-ctx.Done():
		// 元のctxはキャンセル済みのため別のctxで待つ
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}
