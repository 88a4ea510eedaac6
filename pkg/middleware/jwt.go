package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/encore/pkg/apperror"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。通知の受信者IDとして扱う。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
}

// issuer はトークンの発行者名。
const issuer = "encore-api"

// contextKeyUserID はGinコンテキストにユーザーIDを格納するキー。
const contextKeyUserID = "user_id"

// GenerateJWT はユーザー情報から有効期限ttlのJWTトークンを生成する。
// ログイン成功時に呼び出す。
func GenerateJWT(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
		UserID: userID,
		Email:  email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseBearer はAuthorizationヘッダーの値を検証し、クレームを返す。
// ヘッダーが無い、またはBearer形式でない場合は apperror.ErrUnauthorized、
// 署名不正や期限切れの場合は apperror.ErrForbidden を返す。
func ParseBearer(secret, authHeader string) (*JWTClaims, error) {
	if authHeader == "" {
		return nil, fmt.Errorf("Authorizationヘッダーが必要です: %w", apperror.ErrUnauthorized)
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found || tokenString == "" {
		return nil, fmt.Errorf("Bearer トークン形式が不正です: %w", apperror.ErrUnauthorized)
	}

	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("トークンが無効です: %w", errors.Join(apperror.ErrForbidden, err))
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("トークンにユーザーIDがありません: %w", apperror.ErrForbidden)
	}
	return claims, nil
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// トークンが無い場合は401、無効な場合は403で中断する。
// 検証に成功した場合、コンテキストに "user_id" と "email" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ParseBearer(secret, c.GetHeader("Authorization"))
		if err != nil {
			status := http.StatusForbidden
			if errors.Is(err, apperror.ErrUnauthorized) {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		c.Set(contextKeyUserID, claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
