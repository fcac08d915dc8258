// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tuneflow-go/pkg/log"
)

// maxLoggedBody 请求/响应体在日志中的截断上限。
const maxLoggedBody = 4096

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// isStream 判断请求是否指向长连接推送端点。
// SSE 与 WebSocket 的响应是无界流，不能整体缓存进日志。
func isStream(path string) bool {
	return strings.HasSuffix(path, "/notifications/stream") || strings.HasSuffix(path, "/notifications/ws")
}

// truncate 按日志上限截断正文。
func truncate(body string) string {
	if len(body) > maxLoggedBody {
		return body[:maxLoggedBody] + "...(truncated)"
	}
	return body
}

// RequestLogger 是一个 Gin 中间件，用于记录详细的请求和响应日志。
// 长连接端点只记录访问行，不捕获正文。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()
		path := c.Request.URL.Path

		if isStream(path) {
			c.Next()
			log.Infow("HTTP Stream Log",
				"statusCode", c.Writer.Status(),
				"duration", time.Since(startTime).String(),
				"clientIP", c.ClientIP(),
				"path", path,
			)
			return
		}

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		// 使用自定义的 ResponseWriter 捕获响应
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		// 处理请求
		c.Next()

		// 计算延迟
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		// 记录完整的请求和响应信息
		log.Infow("HTTP Request Log",
			"statusCode", statusCode,
			"latency", latency.String(),
			"clientIP", clientIP,
			"method", method,
			"path", path,
			"requestBody", truncate(string(requestBody)),
			"responseBody", truncate(blw.body.String()),
		)
	}
}
