// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"
	"tuneflow-go/internal/model"
)

// ModificationRepository 接口定义了调校操作目录的持久化操作。
type ModificationRepository interface {
	FindAll() ([]model.Modification, error)
	FindByIDs(ids []uint) ([]model.Modification, error)
}

// modificationRepository 是 ModificationRepository 接口的 GORM 实现。
type modificationRepository struct {
	db *gorm.DB
}

// NewModificationRepository 创建一个新的 ModificationRepository 实例。
func NewModificationRepository(db *gorm.DB) ModificationRepository {
	return &modificationRepository{db: db}
}

// FindAll 检索目录中的全部调校操作。
func (r *modificationRepository) FindAll() ([]model.Modification, error) {
	var mods []model.Modification
	err := r.db.Order("id asc").Find(&mods).Error
	return mods, err
}

// FindByIDs 根据 ID 列表检索调校操作。
func (r *modificationRepository) FindByIDs(ids []uint) ([]model.Modification, error) {
	var mods []model.Modification
	if len(ids) == 0 {
		return mods, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&mods).Error
	return mods, err
}
