// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 审计动作码。
const (
	AuditActionStatusChange        = "STATUS_CHANGE"
	AuditActionPriceSet            = "PRICE_SET"
	AuditActionPaymentStatusChange = "PAYMENT_STATUS_CHANGE"
	AuditActionAdminNotesUpdated   = "ADMIN_NOTES_UPDATED"
	AuditActionEstimatedTimeSet    = "ESTIMATED_TIME_SET"
)

// AuditLogEntry 对应于数据库中的 'audit_log' 表。
// 每一次改变状态的操作都追加一条记录，记录只增不改不删。
type AuditLogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileID    string    `gorm:"type:char(36);index;not null" json:"fileId"`
	ActorID   uint      `gorm:"not null" json:"actorId"`
	Action    string    `gorm:"type:varchar(40);not null" json:"action"`
	OldValue  string    `gorm:"type:text" json:"oldValue"`
	NewValue  string    `gorm:"type:text" json:"newValue"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AuditLogEntry) TableName() string {
	return "audit_log"
}
