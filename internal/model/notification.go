// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 通知类型码。类型决定了扇出时走哪些渠道（站内记录总是写入）。
const (
	NotifyTypeFileStatusUpdate    = "file_status_update"
	NotifyTypeEstimatedTimeUpdate = "estimated_time_update"
	NotifyTypePriceSet            = "PRICE_SET"
	NotifyTypePaymentConfirmed    = "PAYMENT_CONFIRMED"
	NotifyTypeAdminNotes          = "ADMIN_NOTES"
	NotifyTypeNewUpload           = "NEW_UPLOAD"
)

// Notification 对应于数据库中的 'notifications' 表。
// 每条记录归属一个接收者，仅允许其翻转已读标记或删除。
type Notification struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  uint   `gorm:"index;not null" json:"userId"`
	Type    string `gorm:"type:varchar(40);not null" json:"type"`
	Title   string `gorm:"type:varchar(255);not null" json:"title"`
	Message string `gorm:"type:text" json:"message"`
	// Payload 为可选的结构化负载（JSON 字符串），供前端直接消费。
	Payload   string    `gorm:"type:text" json:"payload"`
	FileID    *string   `gorm:"type:char(36)" json:"fileId"`
	IsRead    bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Notification) TableName() string {
	return "notifications"
}
