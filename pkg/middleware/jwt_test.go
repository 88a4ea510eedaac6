package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/encore/pkg/apperror"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// TestGenerateJWT はGenerateJWT関数を検証する。
func TestGenerateJWT(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-123", "test@example.com", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims := &JWTClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil || !token.Valid {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if claims.UserID != "user-123" {
			t.Errorf("UserID = %q, want %q", claims.UserID, "user-123")
		}
		if claims.Email != "test@example.com" {
			t.Errorf("Email = %q, want %q", claims.Email, "test@example.com")
		}
		if claims.Issuer != "encore-api" {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, "encore-api")
		}
	})

	t.Run("有効期限がttl後であること", func(t *testing.T) {
		t.Parallel()

		before := time.Now()
		tokenStr, err := GenerateJWT(testSecret, "user-exp", "exp@example.com", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		claims, err := ParseBearer(testSecret, "Bearer "+tokenStr)
		if err != nil {
			t.Fatalf("ParseBearer()でエラーが発生: %v", err)
		}
		expected := before.Add(time.Hour)
		if d := claims.ExpiresAt.Time.Sub(expected); d < -time.Minute || d > time.Minute {
			t.Errorf("ExpiresAt = %v, want およそ %v", claims.ExpiresAt.Time, expected)
		}
	})
}

// TestParseBearer はヘッダー検証のエラー分類を検証する。
func TestParseBearer(t *testing.T) {
	t.Parallel()

	valid, err := GenerateJWT(testSecret, "user-1", "u1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
	}
	expired, err := GenerateJWT(testSecret, "user-1", "u1@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
	}
	otherSecret, err := GenerateJWT("different-secret", "user-1", "u1@example.com", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
	}

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"ヘッダーが無い場合はUnauthorized", "", apperror.ErrUnauthorized},
		{"Bearer形式でない場合はUnauthorized", "Token " + valid, apperror.ErrUnauthorized},
		{"トークンが空の場合はUnauthorized", "Bearer ", apperror.ErrUnauthorized},
		{"期限切れはForbidden", "Bearer " + expired, apperror.ErrForbidden},
		{"別シークレットはForbidden", "Bearer " + otherSecret, apperror.ErrForbidden},
		{"壊れたトークンはForbidden", "Bearer not.a.jwt", apperror.ErrForbidden},
		{"正しいトークンは成功", "Bearer " + valid, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := ParseBearer(testSecret, tt.header)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ParseBearer()でエラーが発生: %v", err)
				}
				if claims.UserID != "user-1" {
					t.Errorf("UserID = %q, want user-1", claims.UserID)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestJWTAuth はJWTAuthミドルウェアのステータスコードとコンテキスト設定を検証する。
func TestJWTAuth(t *testing.T) {
	t.Parallel()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(JWTAuth(testSecret))
		router.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
		})
		return router
	}

	t.Run("有効なトークンでユーザーIDが設定されること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT(testSecret, "user-ok", "ok@example.com", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("レスポンスボディのパースに失敗: %v", err)
		}
		if body["user_id"] != "user-ok" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "user-ok")
		}
	})

	t.Run("ヘッダーが無い場合は401が返ること", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("無効なトークンの場合は403が返ること", func(t *testing.T) {
		t.Parallel()

		tokenStr, err := GenerateJWT("different-secret", "user-diff", "diff@example.com", time.Hour)
		if err != nil {
			t.Fatalf("GenerateJWT()でエラーが発生: %v", err)
		}

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+tokenStr)
		w := httptest.NewRecorder()
		newRouter().ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

// TestGetUserID はコンテキストからのユーザーID取得を検証する。
func TestGetUserID(t *testing.T) {
	t.Parallel()

	t.Run("未設定の場合は空文字列を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty", got)
		}
	})

	t.Run("文字列以外が設定されている場合は空文字列を返すこと", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("user_id", 42)
		if got := GetUserID(c); got != "" {
			t.Errorf("GetUserID() = %q, want empty", got)
		}
	})
}
