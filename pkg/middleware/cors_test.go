package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/encore/internal/config"
)

// TestCORS は設定のcors_originsごとの応答を検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	mobile := "http://192.168.0.10:8081"
	web := "https://encore.example"

	tests := []struct {
		name    string
		origins []string
		method  string
		origin  string
		// allowed がtrueならOriginがそのまま返る
		allowed bool
		status  int
	}{
		{"既定値の*は任意のオリジンを許可する", config.Default().Server.CORSOrigins, http.MethodGet, mobile, true, http.StatusOK},
		{"既定値でもOriginが無ければ何も返さない", config.Default().Server.CORSOrigins, http.MethodGet, "", false, http.StatusOK},
		{"許可リストにあるオリジン", []string{web, mobile}, http.MethodPost, mobile, true, http.StatusOK},
		{"末尾のスラッシュと空白は無視する", []string{" " + web + "/ "}, http.MethodGet, web, true, http.StatusOK},
		{"許可リストに無いオリジン", []string{web}, http.MethodGet, mobile, false, http.StatusOK},
		{"空の許可リストは何も許可しない", nil, http.MethodGet, web, false, http.StatusOK},
		{"許可されたオリジンのプリフライト", []string{web}, http.MethodOptions, web, true, http.StatusNoContent},
		{"許可されないオリジンのプリフライトも204で打ち切る", []string{web}, http.MethodOptions, mobile, false, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reached := false
			router := gin.New()
			router.Use(CORS(tt.origins))
			router.Handle(tt.method, "/api/events", func(c *gin.Context) {
				reached = true
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/events", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.status)
			}
			if reached == (tt.method == http.MethodOptions) {
				t.Errorf("ハンドラーの呼び出し = %v", reached)
			}

			want := ""
			if tt.allowed {
				want = tt.origin
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, want)
			}
			if tt.allowed && w.Header().Get("Access-Control-Allow-Headers") != corsAllowHeaders {
				t.Errorf("Access-Control-Allow-Headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
			}
			if got := w.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
		})
	}
}
