package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/encore/internal/catalog"
	"github.com/nao1215/encore/pkg/middleware"
	"github.com/nao1215/encore/pkg/validation"
)

// loginRequest はPOST /api/users/login のリクエスト。
type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// updateMeRequest はPUT /api/users/me のリクエスト。
type updateMeRequest struct {
	Town string `json:"town" binding:"required,notblank"`
}

// handleRegister はユーザーを登録するハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in catalog.NewUser
		if err := c.ShouldBindJSON(&in); err != nil {
			respondError(c, validation.FromError(err, "リクエストボディが不正です"))
			return
		}

		u, err := s.catalog.CreateUser(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

// handleLogin はメールアドレスとパスワードを照合してトークンを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, validation.FromError(err, "email と password は必須です"))
			return
		}

		u, err := s.catalog.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}

		token, err := middleware.GenerateJWT(s.auth.JWTSecret, u.ID, u.Email, s.auth.TokenTTL)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "userId": u.ID})
	}
}

// handleGetMe はトークンの本人の情報を返すハンドラを返す。
func (s *Server) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := s.catalog.GetUser(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

// handleUpdateMe は本人の居住地を変更するハンドラを返す。
// 変更は以降に登録されるイベントから反映され、既存の通知には影響しない。
func (s *Server) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, validation.FromError(err, "town は必須です"))
			return
		}

		u, err := s.catalog.UpdateTown(c.Request.Context(), middleware.GetUserID(c), req.Town)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}
