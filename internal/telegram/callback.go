// Package telegram 实现了聊天机器人 webhook 路由：三个独立密钥的机器人
// 身份经由同一套参数化处理逻辑驱动文件生命周期状态机。
package telegram

import (
	"strings"

	"github.com/google/uuid"
)

// CallbackData 是内联按钮回调负载的显式标签化表示。
// 线上格式为 "<scope>_<subject>_<fileId>_<STATUS>"，
// 如 "file_admin_status_<uuid>_READY"。负载只在路由边界解析一次，
// 之后的调用链都使用解析后的结构。
type CallbackData struct {
	Scope   string // 例如 "file_admin"
	Subject string // 例如 "status"
	FileID  string // UUID，绝不包含分隔符
	Status  string // 目标状态
}

// ParseCallback 按位置切分回调负载。
// scope 自身可能含下划线，因此从尾部定位：最后一段是状态，
// 倒数第二段是文件 ID（必须是合法 UUID），倒数第三段是 subject，
// 其余部分拼回 scope。
func ParseCallback(data string) (*CallbackData, bool) {
	parts := strings.Split(data, "_")
	if len(parts) < 4 {
		return nil, false
	}

	status := parts[len(parts)-1]
	fileID := parts[len(parts)-2]
	if _, err := uuid.Parse(fileID); err != nil {
		return nil, false
	}

	return &CallbackData{
		Scope:   strings.Join(parts[:len(parts)-3], "_"),
		Subject: parts[len(parts)-3],
		FileID:  fileID,
		Status:  status,
	}, true
}

// Encode 把标签化负载编码回线上格式。
func (c *CallbackData) Encode() string {
	return c.Scope + "_" + c.Subject + "_" + c.FileID + "_" + c.Status
}

// IsStatusChange 判断负载是否是一次状态变更请求。
// 除 "file_admin" 外防御性地接受任何 "<scope>_status" 形态：
// 实际运行中不止一个机器人身份会收到本该发给另一身份的回调
// （文档化的跨路由回退行为）。
func (c *CallbackData) IsStatusChange() bool {
	return c.Subject == "status"
}
