package telegram

import (
	"tuneflow-go/internal/config"

	"github.com/go-telegram/bot"
)

// Role 标识机器人身份。三个身份各自持有独立的入站端点与密钥，
// 是逻辑上互相独立的参与者，即便它们最终调用同一个生命周期服务。
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleFileAdmin  Role = "file_admin"
	RoleCustomer   Role = "customer"
)

// Identity 把一个机器人身份的配置与其出站 API 客户端绑在一起。
type Identity struct {
	Role Role
	cfg  config.BotIdentityConfig
	api  *bot.Bot
}

// staff 判断该身份是否属于工作人员侧（允许驱动状态变更）。
func (id *Identity) staff() bool {
	return id.Role == RoleSuperAdmin || id.Role == RoleFileAdmin
}

// chatAllowed 检查聊天 ID 是否在该身份的白名单内。
// 白名单为空的员工身份拒绝一切聊天（缺配置不等于全放行）。
func (id *Identity) chatAllowed(chatID int64) bool {
	for _, allowed := range id.cfg.AllowedChatIDs {
		if allowed == chatID {
			return true
		}
	}
	return false
}
