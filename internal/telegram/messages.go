package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"tuneflow-go/internal/model"
	"tuneflow-go/internal/service"
)

// 面向聊天的提示文案。
const (
	msgLinkUsage         = "用法: /link <邮箱>，请使用注册账号时填写的邮箱"
	msgLinkNotFound      = "未找到使用该邮箱的账号，请确认邮箱拼写"
	msgLinkConflict      = "该账号已关联到另一个聊天，请先在原聊天中执行 /unlink"
	msgLinkOK            = "关联成功！之后文件的状态变化会实时推送到这里"
	msgUnlinkNotLinked   = "当前聊天尚未关联任何账号"
	msgUnlinkOK          = "已解除关联，将不再向这里推送通知"
	msgCallbackMalformed = "无法识别的操作"
	msgFileNotFound      = "文件不存在或已被移除"
)

// statusKeyboard 为一个文件构造状态操作按钮。
// 按钮负载使用 "file_admin_status" 前缀，按约定由文件管理身份消费，
// 超级管理员身份也会防御性地接受它。
func statusKeyboard(fileID string) *models.InlineKeyboardMarkup {
	row := make([]models.InlineKeyboardButton, 0, 3)
	for _, status := range []string{model.FileStatusReceived, model.FileStatusPending, model.FileStatusReady} {
		data := CallbackData{Scope: "file_admin", Subject: "status", FileID: fileID, Status: status}
		row = append(row, models.InlineKeyboardButton{
			Text:         statusLabel(status),
			CallbackData: data.Encode(),
		})
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{row},
	}
}

// statusLabel 返回状态的按钮文案。
func statusLabel(status string) string {
	switch status {
	case model.FileStatusReceived:
		return "📥 已接收"
	case model.FileStatusPending:
		return "⚙️ 处理中"
	case model.FileStatusReady:
		return "✅ 完成"
	}
	return status
}

// eventText 把扇出事件渲染成聊天消息正文。
func eventText(event service.Event) string {
	text := event.Title
	if event.Message != "" {
		text = fmt.Sprintf("%s\n%s", event.Title, event.Message)
	}
	return text
}
