// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// User 对应于数据库中的 'users' 表。
// Telegram 关联字段由客户机器人的 /link 命令写入、/unlink 命令清空，
// 它们是平台账号与外部聊天身份之间唯一的耦合点。
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(50);uniqueIndex;not null" json:"username"`
	Email    string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password string `gorm:"type:varchar(255);not null" json:"-"`
	Role     string `gorm:"type:varchar(20);not null;default:'USER'" json:"role"` // USER 或 ADMIN

	// Telegram 聊天身份关联（可为空）。
	TelegramChatID   *int64     `gorm:"uniqueIndex" json:"telegramChatId"`
	TelegramUsername *string    `gorm:"type:varchar(100)" json:"telegramUsername"`
	TelegramLinkedAt *time.Time `json:"telegramLinkedAt"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}

// IsAdmin 判断用户是否具有工作人员权限。
func (u *User) IsAdmin() bool {
	return u.Role == "ADMIN"
}

// TelegramLinked 判断用户是否已关联 Telegram 聊天身份。
func (u *User) TelegramLinked() bool {
	return u.TelegramChatID != nil
}
