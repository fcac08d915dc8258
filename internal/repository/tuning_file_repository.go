// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"gorm.io/gorm"
	"tuneflow-go/internal/model"
)

// TuningFileRepository 接口定义了调校文件记录的持久化操作。
// 状态机的字段级写入统一通过 Updates 完成，读-改-写序列由
// 文件生命周期服务负责编排，这里只做行级存取。
type TuningFileRepository interface {
	Create(file *model.TuningFile) error
	FindByID(fileID string) (*model.TuningFile, error)
	FindByUserID(userID uint) ([]model.TuningFile, error)
	FindAll() ([]model.TuningFile, error)
	UpdateFields(fileID string, fields map[string]interface{}) error
	AttachModifications(file *model.TuningFile, modIDs []uint) error
}

// tuningFileRepository 是 TuningFileRepository 接口的 GORM 实现。
type tuningFileRepository struct {
	db *gorm.DB
}

// NewTuningFileRepository 创建一个新的 TuningFileRepository 实例。
func NewTuningFileRepository(db *gorm.DB) TuningFileRepository {
	return &tuningFileRepository{db: db}
}

// Create 在数据库中创建一个新的调校文件记录。
func (r *tuningFileRepository) Create(file *model.TuningFile) error {
	return r.db.Create(file).Error
}

// FindByID 根据文件 ID 检索一条调校文件记录，并预加载其请求的调校操作。
func (r *tuningFileRepository) FindByID(fileID string) (*model.TuningFile, error) {
	var file model.TuningFile
	err := r.db.Preload("Modifications").Where("id = ?", fileID).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// FindByUserID 查找指定客户上传的所有文件，按创建时间倒序。
func (r *tuningFileRepository) FindByUserID(userID uint) ([]model.TuningFile, error) {
	var files []model.TuningFile
	err := r.db.Preload("Modifications").
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&files).Error
	return files, err
}

// FindAll 检索所有文件记录，供工作人员面板使用。
func (r *tuningFileRepository) FindAll() ([]model.TuningFile, error) {
	var files []model.TuningFile
	err := r.db.Preload("Modifications").Order("created_at desc").Find(&files).Error
	return files, err
}

// UpdateFields 对指定文件执行字段级更新。
// 使用 map 以便把倒计时字段显式写成 NULL（结构体更新会忽略零值）。
func (r *tuningFileRepository) UpdateFields(fileID string, fields map[string]interface{}) error {
	return r.db.Model(&model.TuningFile{}).Where("id = ?", fileID).Updates(fields).Error
}

// AttachModifications 把目录中的调校操作关联到文件（写入连接表）。
func (r *tuningFileRepository) AttachModifications(file *model.TuningFile, modIDs []uint) error {
	if len(modIDs) == 0 {
		return nil
	}
	var mods []model.Modification
	if err := r.db.Where("id IN ?", modIDs).Find(&mods).Error; err != nil {
		return err
	}
	return r.db.Model(file).Association("Modifications").Append(&mods)
}
