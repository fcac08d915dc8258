// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"

	"tuneflow-go/internal/model"
	"tuneflow-go/internal/push"
	"tuneflow-go/internal/repository"
	"tuneflow-go/pkg/log"
)

// Event 是一次扇出的语义事件。Type 决定走哪些渠道，
// Data 为推送帧与站内记录共享的结构化负载。
type Event struct {
	Type    string
	UserID  uint // 接收者
	Title   string
	Message string
	FileID  *string
	Data    map[string]interface{}
}

// ChatNotifier 把事件格式化后发往外部聊天平台。
// 具体实现位于 telegram 包，由它根据接收者角色选择机器人身份并
// 在事件支持可操作回复时附带内联按钮。
type ChatNotifier interface {
	Send(ctx context.Context, recipient *model.User, event Event) error
}

// EmailSender 发送模板化邮件。
type EmailSender interface {
	Send(to, subject, body string) error
}

// NotifyService 接口是通知扇出的单一入口。
// 各渠道相互独立、尽力而为：任何一个渠道失败都不会阻断其它渠道，
// 也绝不会传播回触发扇出的状态变更调用方。
type NotifyService interface {
	Notify(ctx context.Context, event Event)
	NotifyAdmins(ctx context.Context, event Event, excludeUserID uint)
	// SetChatNotifier 在服务构造后绑定聊天机器人渠道。
	// 机器人路由依赖文件服务，文件服务又依赖通知服务，聊天渠道只能后置注入。
	SetChatNotifier(chat ChatNotifier)
}

// notifyService 是 NotifyService 接口的实现。
type notifyService struct {
	notificationRepo repository.NotificationRepository
	userRepo         repository.UserRepository
	registry         *push.Registry
	chat             ChatNotifier
	mailer           EmailSender
}

// NewNotifyService 创建一个新的 NotifyService 实例。
// chat 与 mailer 允许为 nil（未配置对应渠道时直接跳过）。
func NewNotifyService(
	notificationRepo repository.NotificationRepository,
	userRepo repository.UserRepository,
	registry *push.Registry,
	chat ChatNotifier,
	mailer EmailSender,
) NotifyService {
	return &notifyService{
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		registry:         registry,
		chat:             chat,
		mailer:           mailer,
	}
}

// SetChatNotifier 绑定聊天机器人渠道。
func (s *notifyService) SetChatNotifier(chat ChatNotifier) {
	s.chat = chat
}

// chatWorthy 判断事件类型是否需要发外部聊天消息。
func chatWorthy(eventType string) bool {
	switch eventType {
	case model.NotifyTypeFileStatusUpdate,
		model.NotifyTypeEstimatedTimeUpdate,
		model.NotifyTypePriceSet,
		model.NotifyTypePaymentConfirmed,
		model.NotifyTypeAdminNotes,
		model.NotifyTypeNewUpload:
		return true
	}
	return false
}

// emailWorthy 判断事件类型是否需要发邮件。
func emailWorthy(eventType string) bool {
	return eventType == model.NotifyTypePriceSet || eventType == model.NotifyTypePaymentConfirmed
}

// Notify 对单个接收者执行四渠道扇出。
// 触发本次扇出的状态变更在调用前已经落库，这里的任何失败只记日志。
func (s *notifyService) Notify(ctx context.Context, event Event) {
	// 1. 站内通知记录：总是写入
	payload := ""
	if event.Data != nil {
		if b, err := json.Marshal(event.Data); err == nil {
			payload = string(b)
		}
	}
	record := &model.Notification{
		UserID:  event.UserID,
		Type:    event.Type,
		Title:   event.Title,
		Message: event.Message,
		Payload: payload,
		FileID:  event.FileID,
	}
	if err := s.notificationRepo.Create(ctx, record); err != nil {
		log.Errorf("扇出失败[channel=inapp], userID=%d, type=%s, err=%v", event.UserID, event.Type, err)
	}

	// 2. 聊天机器人渠道：接收者已关联聊天身份且事件类型需要时发送
	if s.chat != nil && chatWorthy(event.Type) {
		recipient, err := s.userRepo.FindByID(event.UserID)
		if err != nil {
			log.Errorf("扇出失败[channel=telegram], userID=%d, type=%s, 查找接收者失败: %v", event.UserID, event.Type, err)
		} else if recipient.TelegramLinked() {
			if err := s.chat.Send(ctx, recipient, event); err != nil {
				log.Errorf("扇出失败[channel=telegram], userID=%d, type=%s, err=%v", event.UserID, event.Type, err)
			}
		}
	}

	// 3. 邮件渠道：失败记录后继续
	if s.mailer != nil && emailWorthy(event.Type) {
		recipient, err := s.userRepo.FindByID(event.UserID)
		if err != nil {
			log.Errorf("扇出失败[channel=email], userID=%d, type=%s, 查找接收者失败: %v", event.UserID, event.Type, err)
		} else if err := s.mailer.Send(recipient.Email, event.Title, event.Message); err != nil {
			log.Errorf("扇出失败[channel=email], userID=%d, type=%s, err=%v", event.UserID, event.Type, err)
		}
	}

	// 4. 在线推送：没有打开的连接不是错误，只是无操作
	if s.registry != nil {
		if delivered := s.registry.Push(event.UserID, push.NewFrame(event.Type, event.Data)); !delivered {
			log.Infof("推送未送达（无活动连接）, userID=%d, type=%s", event.UserID, event.Type)
		}
	}
}

// NotifyAdmins 把同一事件扇出给所有工作人员（可排除触发动作的本人）。
func (s *notifyService) NotifyAdmins(ctx context.Context, event Event, excludeUserID uint) {
	admins, err := s.userRepo.FindAdmins()
	if err != nil {
		log.Errorf("扇出失败: 查找管理员列表失败, type=%s, err=%v", event.Type, err)
		return
	}
	for _, admin := range admins {
		if admin.ID == excludeUserID {
			continue
		}
		ev := event
		ev.UserID = admin.ID
		s.Notify(ctx, ev)
	}
}
