// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"time"

	"gorm.io/gorm"
	"tuneflow-go/internal/model"
)

// UserRepository 接口定义了用户数据的持久化操作。
type UserRepository interface {
	Create(user *model.User) error
	FindByUsername(username string) (*model.User, error)
	FindByEmail(email string) (*model.User, error)
	FindByID(userID uint) (*model.User, error)
	FindByTelegramChatID(chatID int64) (*model.User, error)
	FindAdmins() ([]model.User, error)
	Update(user *model.User) error
	LinkTelegram(userID uint, chatID int64, tgUsername string) error
	UnlinkTelegram(userID uint) error
}

// userRepository 是 UserRepository 接口的 GORM 实现。
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建一个新的 UserRepository 实例。
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create 在数据库中创建一个新的用户记录。
func (r *userRepository) Create(user *model.User) error {
	return r.db.Create(user).Error
}

// FindByUsername 根据用户名从数据库中查找一个用户。
func (r *userRepository) FindByUsername(username string) (*model.User, error) {
	var user model.User
	err := r.db.Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail 根据邮箱从数据库中查找一个用户。
// 客户机器人的 /link 命令通过邮箱定位账号。
func (r *userRepository) FindByEmail(email string) (*model.User, error) {
	var user model.User
	err := r.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID 根据用户 ID 从数据库中查找一个用户。
func (r *userRepository) FindByID(userID uint) (*model.User, error) {
	var user model.User
	err := r.db.First(&user, userID).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByTelegramChatID 根据已关联的 Telegram 聊天 ID 查找用户。
func (r *userRepository) FindByTelegramChatID(chatID int64) (*model.User, error) {
	var user model.User
	err := r.db.Where("telegram_chat_id = ?", chatID).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindAdmins 检索所有具有 ADMIN 角色的用户，用于面向工作人员的通知扇出。
func (r *userRepository) FindAdmins() ([]model.User, error) {
	var users []model.User
	err := r.db.Where("role = ?", "ADMIN").Find(&users).Error
	return users, err
}

// Update 更新数据库中一个已存在的用户记录。
func (r *userRepository) Update(user *model.User) error {
	return r.db.Save(user).Error
}

// LinkTelegram 把 Telegram 聊天身份写到用户记录上，并刷新关联时间戳。
func (r *userRepository) LinkTelegram(userID uint, chatID int64, tgUsername string) error {
	now := time.Now()
	return r.db.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"telegram_chat_id":   chatID,
		"telegram_username":  tgUsername,
		"telegram_linked_at": now,
	}).Error
}

// UnlinkTelegram 清空用户记录上的 Telegram 聊天身份字段。
func (r *userRepository) UnlinkTelegram(userID uint) error {
	return r.db.Model(&model.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"telegram_chat_id":   nil,
		"telegram_username":  nil,
		"telegram_linked_at": nil,
	}).Error
}
