// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"strconv"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"tuneflow-go/internal/model"
)

// NotificationRepository 接口定义了站内通知的持久化操作。
// 未读计数走 Redis 计数器，避免列表页高频 COUNT 查询；
// Redis 不可用或计数缺失时回退到数据库统计。
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	FindByUserID(userID uint, limit int) ([]model.Notification, error)
	MarkRead(userID uint, notificationID uint) error
	MarkAllRead(ctx context.Context, userID uint) error
	Delete(userID uint, notificationID uint) error
	UnreadCount(ctx context.Context, userID uint) (int64, error)
}

// notificationRepository 是 NotificationRepository 接口的 GORM+Redis 实现。
type notificationRepository struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewNotificationRepository 创建一个新的 NotificationRepository 实例。
func NewNotificationRepository(db *gorm.DB, redisClient *redis.Client) NotificationRepository {
	return &notificationRepository{db: db, redisClient: redisClient}
}

// getUnreadKey generates the redis key for the unread counter.
func (r *notificationRepository) getUnreadKey(userID uint) string {
	return "notify:unread:" + strconv.FormatUint(uint64(userID), 10)
}

// Create 写入一条站内通知，并递增接收者的未读计数。
// 计数器失败不影响通知本身的落库。
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if err := r.db.Create(n).Error; err != nil {
		return err
	}
	_ = r.redisClient.Incr(ctx, r.getUnreadKey(n.UserID)).Err()
	return nil
}

// FindByUserID 检索用户最近的通知，按创建时间倒序。
func (r *notificationRepository) FindByUserID(userID uint, limit int) ([]model.Notification, error) {
	var list []model.Notification
	q := r.db.Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}

// MarkRead 把指定的一条通知标记为已读。归属检查通过 user_id 条件完成。
func (r *notificationRepository) MarkRead(userID uint, notificationID uint) error {
	res := r.db.Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		_ = r.redisClient.Decr(context.Background(), r.getUnreadKey(userID)).Err()
	}
	return nil
}

// MarkAllRead 把用户全部通知标记为已读，并清零未读计数。
func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint) error {
	if err := r.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true).Error; err != nil {
		return err
	}
	return r.redisClient.Del(ctx, r.getUnreadKey(userID)).Err()
}

// Delete 删除用户自己的一条通知。
func (r *notificationRepository) Delete(userID uint, notificationID uint) error {
	return r.db.Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&model.Notification{}).Error
}

// UnreadCount 返回用户的未读通知数。优先读 Redis 计数器，缺失则回源并回填。
func (r *notificationRepository) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	key := r.getUnreadKey(userID)
	val, err := r.redisClient.Get(ctx, key).Int64()
	if err == nil {
		if val < 0 {
			val = 0
		}
		return val, nil
	}
	if err != redis.Nil {
		// Redis 故障时直接走数据库
		return r.countFromDB(userID)
	}

	count, derr := r.countFromDB(userID)
	if derr != nil {
		return 0, derr
	}
	_ = r.redisClient.Set(ctx, key, count, 0).Err()
	return count, nil
}

// countFromDB 从数据库统计未读通知数。
func (r *notificationRepository) countFromDB(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}
