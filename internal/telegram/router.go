package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"gorm.io/gorm"

	"tuneflow-go/internal/config"
	"tuneflow-go/internal/model"
	"tuneflow-go/internal/repository"
	"tuneflow-go/internal/service"
	"tuneflow-go/pkg/log"
)

// Router 是三个机器人身份共享的参数化 webhook 路由。
// 入站调用无论结果如何都快速确认（聊天平台按超时重试），
// 授权失败只确认不变更，重复投递依赖生命周期服务的幂等规则。
type Router struct {
	fileService service.FileService
	userRepo    repository.UserRepository
	identities  map[Role]*Identity
}

// NewRouter 根据配置创建三个机器人身份并挂接统一的更新处理器。
func NewRouter(
	fileService service.FileService,
	userRepo repository.UserRepository,
	cfg config.TelegramConfig,
) (*Router, error) {
	r := &Router{
		fileService: fileService,
		userRepo:    userRepo,
		identities:  make(map[Role]*Identity),
	}

	for role, idCfg := range map[Role]config.BotIdentityConfig{
		RoleSuperAdmin: cfg.SuperAdmin,
		RoleFileAdmin:  cfg.FileAdmin,
		RoleCustomer:   cfg.Customer,
	} {
		if idCfg.Token == "" {
			log.Warnf("机器人身份 %s 未配置 token，跳过", role)
			continue
		}
		identity := &Identity{Role: role, cfg: idCfg}

		opts := []bot.Option{
			bot.WithDefaultHandler(r.updateHandler(identity)),
		}
		if idCfg.WebhookSecret != "" {
			opts = append(opts, bot.WithWebhookSecretToken(idCfg.WebhookSecret))
		}
		api, err := bot.New(idCfg.Token, opts...)
		if err != nil {
			return nil, fmt.Errorf("创建机器人身份 %s 失败: %w", role, err)
		}
		identity.api = api
		r.identities[role] = identity
	}

	return r, nil
}

// Start 启动各身份的 webhook 更新消费循环。
func (r *Router) Start(ctx context.Context) {
	for role, identity := range r.identities {
		go identity.api.StartWebhook(ctx)
		log.Infof("机器人身份 %s 已启动", role)
	}
}

// WebhookHandler 返回指定身份的入站 HTTP 处理器，用于挂载到路由引擎。
// 处理器解析更新并立即响应 200，实际处理在消费循环中进行。
func (r *Router) WebhookHandler(role Role) (http.Handler, bool) {
	identity, ok := r.identities[role]
	if !ok {
		return nil, false
	}
	return identity.api.WebhookHandler(), true
}

// RegisterWebhooks 在聊天平台上注册各身份的入站端点。
func (r *Router) RegisterWebhooks(ctx context.Context, publicURL string) {
	for role, identity := range r.identities {
		url := fmt.Sprintf("%s/webhook/telegram/%s", strings.TrimRight(publicURL, "/"), role)
		_, err := identity.api.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:            url,
			SecretToken:    identity.cfg.WebhookSecret,
			AllowedUpdates: []string{"message", "callback_query"},
		})
		if err != nil {
			log.Errorf("注册 webhook 失败, role=%s, err=%v", role, err)
			continue
		}
		log.Infof("webhook 已注册, role=%s, url=%s", role, url)
	}
}

// updateHandler 为一个身份构造统一的更新处理器。
func (r *Router) updateHandler(identity *Identity) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		switch {
		case update.CallbackQuery != nil:
			r.handleCallback(ctx, identity, b, update.CallbackQuery)
		case update.Message != nil:
			r.handleMessage(ctx, identity, b, update.Message)
		}
	}
}

// handleCallback 处理内联按钮回调。
// 回调无论结果如何都被确认，避免聊天平台重试风暴；
// 回复文案仅作为对操作者的反馈。
func (r *Router) handleCallback(ctx context.Context, identity *Identity, b *bot.Bot, cq *models.CallbackQuery) {
	// 先确认：确认与后续处理结果无关
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: cq.ID,
	}); err != nil {
		log.Warnf("确认回调失败, role=%s, err=%v", identity.Role, err)
	}

	chatID := callbackChatID(cq)
	reply := r.processCallback(ctx, identity, chatID, cq.From.ID, cq.Data)
	if reply == "" {
		return
	}
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		log.Warnf("发送回调反馈失败, role=%s, chatID=%d, err=%v", identity.Role, chatID, err)
	}
}

// callbackChatID 取回调所在的聊天 ID。白名单按聊天 ID 配置
// （员工 /start 回显的就是它），群聊中它与发起人的用户 ID 不同，
// 授权必须用按钮所在消息的聊天。消息不可达时退回发起人 ID。
func callbackChatID(cq *models.CallbackQuery) int64 {
	if cq.Message.Message != nil {
		return cq.Message.Message.Chat.ID
	}
	if cq.Message.InaccessibleMessage != nil {
		return cq.Message.InaccessibleMessage.Chat.ID
	}
	return cq.From.ID
}

// processCallback 执行回调的解析、授权与状态变更，返回给操作者的反馈文案。
// 授权看聊天 ID（白名单维度），审计归属看按下按钮的用户 ID，
// 群聊中二者不同。返回空串表示静默（未授权时只确认、不反馈，留给审计日志）。
func (r *Router) processCallback(ctx context.Context, identity *Identity, chatID, fromID int64, data string) string {
	cb, ok := ParseCallback(data)
	if !ok {
		log.Warnf("回调负载无法解析, role=%s, chatID=%d, data=%q", identity.Role, chatID, data)
		return msgCallbackMalformed
	}
	if !cb.IsStatusChange() {
		log.Warnf("未知的回调 subject, role=%s, subject=%s", identity.Role, cb.Subject)
		return msgCallbackMalformed
	}

	// 授权：仅员工身份且聊天 ID 在白名单内才允许变更。
	// 未授权的回调已被确认，这里静默无操作，仅留审计日志行。
	if !identity.staff() || !identity.chatAllowed(chatID) {
		log.Warnf("未授权的状态变更回调, role=%s, chatID=%d, fileID=%s", identity.Role, chatID, cb.FileID)
		return ""
	}

	actor := r.resolveActor(fromID)
	file, err := r.fileService.SetStatus(ctx, cb.FileID, cb.Status, nil, actor)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileNotFound):
			return msgFileNotFound
		case errors.Is(err, service.ErrInvalidStatus):
			return msgCallbackMalformed
		case errors.Is(err, service.ErrModifiedFileMissing):
			return "成品文件尚未上传，不能标记为完成"
		default:
			log.Errorf("状态变更失败, fileID=%s, status=%s, err=%v", cb.FileID, cb.Status, err)
			return "操作失败，请稍后重试"
		}
	}

	// 重复投递的同状态变更在生命周期服务内部是幂等无操作，这里同样按成功反馈
	return fmt.Sprintf("文件 %s 状态：%s", file.FileName, statusLabel(file.Status))
}

// resolveActor 把按下按钮的用户映射为操作者账号。账号经由私聊关联，
// 私聊的聊天 ID 等于用户 ID，所以按 fromID 查关联记录。
// 员工未关联账号时退化为合成操作者，保证审计行仍然可追溯。
func (r *Router) resolveActor(fromID int64) *model.User {
	user, err := r.userRepo.FindByTelegramChatID(fromID)
	if err == nil {
		return user
	}
	return &model.User{Username: fmt.Sprintf("telegram:%d", fromID), Role: "ADMIN"}
}

// handleMessage 处理文本命令。关联命令只对客户身份开放；
// 员工身份的 /start 回显聊天 ID，便于配置白名单。
func (r *Router) handleMessage(ctx context.Context, identity *Identity, b *bot.Bot, msg *models.Message) {
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	var reply string
	switch {
	case identity.Role == RoleCustomer && strings.HasPrefix(text, "/link"):
		tgUsername := ""
		if msg.From != nil {
			tgUsername = msg.From.Username
		}
		reply = r.processLink(chatID, tgUsername, strings.TrimSpace(strings.TrimPrefix(text, "/link")))
	case identity.Role == RoleCustomer && strings.HasPrefix(text, "/unlink"):
		reply = r.processUnlink(chatID)
	case strings.HasPrefix(text, "/start"):
		if identity.staff() {
			reply = fmt.Sprintf("当前聊天 ID: %d", chatID)
		} else {
			reply = "你好！使用 /link <邮箱> 关联你的账号，之后文件状态变化会实时推送到这里"
		}
	default:
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		log.Warnf("发送命令回复失败, role=%s, chatID=%d, err=%v", identity.Role, chatID, err)
	}
}

// processLink 执行账号关联：按邮箱定位账号，未被其它聊天占用时
// 写入聊天 ID、用户名与关联时间戳。
func (r *Router) processLink(chatID int64, tgUsername, email string) string {
	if email == "" {
		return msgLinkUsage
	}

	user, err := r.userRepo.FindByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return msgLinkNotFound
		}
		log.Errorf("关联账号查询失败, email=%s, err=%v", email, err)
		return "操作失败，请稍后重试"
	}

	if user.TelegramChatID != nil && *user.TelegramChatID != chatID {
		return msgLinkConflict
	}

	if err := r.userRepo.LinkTelegram(user.ID, chatID, tgUsername); err != nil {
		log.Errorf("写入账号关联失败, userID=%d, chatID=%d, err=%v", user.ID, chatID, err)
		return "操作失败，请稍后重试"
	}

	log.Infof("账号已关联, userID=%d, chatID=%d", user.ID, chatID)
	return msgLinkOK
}

// processUnlink 解除当前聊天与账号的关联。
func (r *Router) processUnlink(chatID int64) string {
	user, err := r.userRepo.FindByTelegramChatID(chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return msgUnlinkNotLinked
		}
		log.Errorf("解除关联查询失败, chatID=%d, err=%v", chatID, err)
		return "操作失败，请稍后重试"
	}

	if err := r.userRepo.UnlinkTelegram(user.ID); err != nil {
		log.Errorf("解除关联失败, userID=%d, err=%v", user.ID, err)
		return "操作失败，请稍后重试"
	}

	log.Infof("账号已解除关联, userID=%d, chatID=%d", user.ID, chatID)
	return msgUnlinkOK
}

// Send 实现 service.ChatNotifier：把扇出事件投递到接收者已关联的聊天。
// 员工经由文件管理身份接收，客户经由客户身份接收；
// 面向员工的新上传提醒附带状态操作按钮。
func (r *Router) Send(ctx context.Context, recipient *model.User, event service.Event) error {
	role := RoleCustomer
	if recipient.IsAdmin() {
		role = RoleFileAdmin
	}
	identity, ok := r.identities[role]
	if !ok {
		return fmt.Errorf("机器人身份 %s 未配置", role)
	}
	if recipient.TelegramChatID == nil {
		return fmt.Errorf("接收者 %d 未关联聊天", recipient.ID)
	}

	params := &bot.SendMessageParams{
		ChatID: *recipient.TelegramChatID,
		Text:   eventText(event),
	}
	if event.Type == model.NotifyTypeNewUpload && recipient.IsAdmin() && event.FileID != nil {
		params.ReplyMarkup = statusKeyboard(*event.FileID)
	}

	_, err := identity.api.SendMessage(ctx, params)
	return err
}
