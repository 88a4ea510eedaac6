package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/encore/pkg/apperror"
	"github.com/nao1215/encore/pkg/middleware"
	"github.com/nao1215/encore/pkg/validation"
)

// markReadRequest はPOST /api/notifications/mark-read のリクエスト。
type markReadRequest struct {
	NotificationID string `json:"notificationId" binding:"required,notblank"`
}

// checkOwner はenforce_ownerが有効な場合に、対象が呼び出し元本人のものか確認する。
func (s *Server) checkOwner(c *gin.Context, recipientID string) error {
	if !s.auth.EnforceOwner {
		return nil
	}
	if middleware.GetUserID(c) != recipientID {
		return fmt.Errorf("他のユーザーの通知は操作できません: %w", apperror.ErrForbidden)
	}
	return nil
}

// handleListNotifications は受信者宛ての通知を新しい順に返すハンドラを返す。
// 該当が無い場合は空の配列を返す。
func (s *Server) handleListNotifications() gin.HandlerFunc {
	return func(c *gin.Context) {
		recipientID := c.Param("userId")
		if err := s.checkOwner(c, recipientID); err != nil {
			respondError(c, err)
			return
		}

		list, err := s.notifications.ListByRecipient(c.Request.Context(), recipientID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// handleUnreadCount はサーバー側で数えた未読件数を返すハンドラを返す。
func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		recipientID := c.Param("userId")
		if err := s.checkOwner(c, recipientID); err != nil {
			respondError(c, err)
			return
		}

		n, err := s.notifications.CountUnread(c.Request.Context(), recipientID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"unreadCount": n})
	}
}

// handleMarkRead は通知を既読にするハンドラを返す。既読の通知に対しても成功する。
func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, validation.FromError(err, "notificationId は必須です"))
			return
		}

		ctx := c.Request.Context()
		n, err := s.notifications.Get(ctx, req.NotificationID)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := s.checkOwner(c, n.RecipientID); err != nil {
			respondError(c, err)
			return
		}
		if err := s.notifications.MarkRead(ctx, n.ID); err != nil {
			respondError(c, err)
			return
		}
		n.Read = true
		c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read", "notification": n})
	}
}

// handleMarkAllRead は呼び出し元の通知を全て既読にするハンドラを返す。
func (s *Server) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := s.notifications.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// handleDeleteNotification は通知を削除するハンドラを返す。
func (s *Server) handleDeleteNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.notifications.Delete(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Notification deleted successfully"})
	}
}
