// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tuneflow-go/internal/repository"
	"tuneflow-go/pkg/log"
)

// NotificationHandler 负责站内通知相关的 API 请求。
// 通知归属接收者：只允许其翻转已读标记或删除。
type NotificationHandler struct {
	notificationRepo repository.NotificationRepository
}

// NewNotificationHandler 创建一个新的 NotificationHandler 实例。
func NewNotificationHandler(notificationRepo repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notificationRepo: notificationRepo}
}

// List 返回当前用户最近的通知。
func (h *NotificationHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := h.notificationRepo.FindByUserID(user.ID, limit)
	if err != nil {
		log.Errorf("List: 获取通知失败, userID=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取通知失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": list})
}

// UnreadCount 返回当前用户的未读通知数。
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.notificationRepo.UnreadCount(c.Request.Context(), user.ID)
	if err != nil {
		log.Errorf("UnreadCount: 统计未读通知失败, userID=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "统计未读通知失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"unread": count}})
}

// MarkRead 把一条通知标记为已读。
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的通知 ID"})
		return
	}
	if err := h.notificationRepo.MarkRead(user.ID, uint(id)); err != nil {
		log.Errorf("MarkRead: 标记已读失败, userID=%d, id=%d, err=%v", user.ID, id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "标记已读失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// MarkAllRead 把当前用户的全部通知标记为已读。
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.notificationRepo.MarkAllRead(c.Request.Context(), user.ID); err != nil {
		log.Errorf("MarkAllRead: 标记全部已读失败, userID=%d, err=%v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "标记全部已读失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}

// Delete 删除当前用户的一条通知。
func (h *NotificationHandler) Delete(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的通知 ID"})
		return
	}
	if err := h.notificationRepo.Delete(user.ID, uint(id)); err != nil {
		log.Errorf("Delete: 删除通知失败, userID=%d, id=%d, err=%v", user.ID, id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除通知失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success"})
}
