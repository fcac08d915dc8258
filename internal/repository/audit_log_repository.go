// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"
	"tuneflow-go/internal/model"
)

// AuditLogRepository 接口定义了审计日志的持久化操作。
// 审计日志是只追加的：没有更新和删除方法。
type AuditLogRepository interface {
	Append(entry *model.AuditLogEntry) error
	FindByFileID(fileID string) ([]model.AuditLogEntry, error)
}

// auditLogRepository 是 AuditLogRepository 接口的 GORM 实现。
type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建一个新的 AuditLogRepository 实例。
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Append 追加一条审计记录。
func (r *auditLogRepository) Append(entry *model.AuditLogEntry) error {
	return r.db.Create(entry).Error
}

// FindByFileID 检索指定文件的全部审计记录，按时间正序。
func (r *auditLogRepository) FindByFileID(fileID string) ([]model.AuditLogEntry, error) {
	var entries []model.AuditLogEntry
	err := r.db.Where("file_id = ?", fileID).Order("created_at asc").Find(&entries).Error
	return entries, err
}
