package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/encore/internal/catalog"
	"github.com/nao1215/encore/pkg/validation"
)

// postEventMessage はイベント登録成功時に返すメッセージ。
const postEventMessage = "Event created and notifications sent to users in the location."

// queuedEventMessage はqueueモードでイベント登録に成功した時に返すメッセージ。
const queuedEventMessage = "Event created and notifications queued for users in the location."

// postEventResponse はPOST /api/events のレスポンス。
type postEventResponse struct {
	Event            catalog.Event `json:"event"`
	Message          string        `json:"message"`
	NotificationSent bool          `json:"notificationSent"`
	Queued           bool          `json:"queued,omitempty"`
}

// handlePostEvent はイベントを登録し、開催地のユーザーへ通知するハンドラを返す。
func (s *Server) handlePostEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in catalog.NewEvent
		if err := c.ShouldBindJSON(&in); err != nil {
			respondError(c, validation.FromError(err, "リクエストボディが不正です"))
			return
		}

		res, err := s.poster.Post(c.Request.Context(), in)
		if err != nil {
			respondError(c, err)
			return
		}

		msg := postEventMessage
		if res.Queued {
			msg = queuedEventMessage
		}
		c.JSON(http.StatusCreated, postEventResponse{
			Event:            res.Event,
			Message:          msg,
			NotificationSent: res.NotificationSent,
			Queued:           res.Queued,
		})
	}
}

// handleListEvents はイベント一覧を返すハンドラを返す。
func (s *Server) handleListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := s.catalog.ListEvents(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, events)
	}
}

// handleGetEvent はイベントを1件返すハンドラを返す。
func (s *Server) handleGetEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		ev, err := s.catalog.GetEvent(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ev)
	}
}
