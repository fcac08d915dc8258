// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tuneflow-go/internal/push"
	"tuneflow-go/internal/service"
	"tuneflow-go/pkg/log"
	"tuneflow-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// StreamHandler 负责在线推送的长连接入口。
// 两种传输共用同一个推送注册表：浏览器走 SSE（EventSource 无法自定义
// 请求头，令牌经 query 传递），桌面/移动客户端走 WebSocket。
type StreamHandler struct {
	registry    *push.Registry
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewStreamHandler 创建一个新的 StreamHandler 实例。
func NewStreamHandler(registry *push.Registry, userService service.UserService, jwtManager *token.JWTManager) *StreamHandler {
	return &StreamHandler{registry: registry, userService: userService, jwtManager: jwtManager}
}

// authenticate 校验 query 中的令牌并加载用户。
func (h *StreamHandler) authenticate(c *gin.Context) (uint, bool) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "缺少 token"})
		return 0, false
	}
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token"})
		return 0, false
	}
	user, err := h.userService.GetProfile(claims.Username)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在"})
		return 0, false
	}
	return user.ID, true
}

// Stream 处理 SSE 长连接。第一帧是连接确认，之后是类型化事件帧，
// 格式为 "data: <json>\n\n"。同一用户重连时旧连接被注册表替换关闭。
func (h *StreamHandler) Stream(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no") // 关闭 Nginx 缓冲

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "SSE 不受支持"})
		return
	}

	conn := h.registry.Register(userID, push.ClientClassWeb)
	defer h.registry.Unregister(userID, conn)

	// 连接确认帧：走注册表投递，保证与后续帧同一条队列
	h.registry.Push(userID, push.NewFrame(push.FrameTypeConnected, nil))

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			// 客户端断开，立即释放注册表槽位
			log.Infof("SSE 客户端断开, userID=%d", userID)
			return
		case <-conn.Done():
			// 连接被替换或被清扫
			return
		case payload, open := <-conn.Frames():
			if !open {
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				log.Warnf("SSE 写入失败, userID=%d, err=%v", userID, err)
				return
			}
			flusher.Flush()
		}
	}
}

// HandleWS 处理 WebSocket 长连接。客户端类别不发心跳（传输层自带 ping/pong），
// 读循环只用于感知断开并刷新活动时间。
func (h *StreamHandler) HandleWS(c *gin.Context) {
	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer wsConn.Close()

	conn := h.registry.Register(userID, push.ClientClassApp)
	defer h.registry.Unregister(userID, conn)

	h.registry.Push(userID, push.NewFrame(push.FrameTypeConnected, nil))

	// 读循环：感知断开、刷新活动时间
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := wsConn.ReadMessage(); err != nil {
				return
			}
			h.registry.Touch(userID)
		}
	}()

	for {
		select {
		case <-readDone:
			log.Infof("WebSocket 客户端断开, userID=%d", userID)
			return
		case <-conn.Done():
			return
		case payload, open := <-conn.Frames():
			if !open {
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warnf("WebSocket 写入失败, userID=%d, err=%v", userID, err)
				return
			}
		}
	}
}
