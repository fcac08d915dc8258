// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Modification 对应于数据库中的 'modifications' 表。
// 它是可供客户选择的调校操作目录（如 EGR 关闭、DPF 移除、Stage 1 等）。
type Modification struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Modification) TableName() string {
	return "modifications"
}
