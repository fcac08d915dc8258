// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	Push     PushConfig     `mapstructure:"push"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	// PublicURL 是对外可达的基础地址，用于在启动时注册 Telegram webhook。
	// 留空则跳过 webhook 注册（本地开发）。
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// MinIOConfig 存储对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// TelegramConfig 存储三个机器人身份的配置。
// 三个身份各有独立的 token 与密钥，逻辑上是互相独立的参与者。
type TelegramConfig struct {
	SuperAdmin BotIdentityConfig `mapstructure:"super_admin"`
	FileAdmin  BotIdentityConfig `mapstructure:"file_admin"`
	Customer   BotIdentityConfig `mapstructure:"customer"`
}

// BotIdentityConfig 是单个机器人身份的配置。
type BotIdentityConfig struct {
	Token string `mapstructure:"token"`
	// WebhookSecret 注册 webhook 时下发给聊天平台，平台回调时带回以供校验。
	WebhookSecret string `mapstructure:"webhook_secret"`
	// AllowedChatIDs 是允许通过该身份触发状态变更的聊天 ID 白名单。
	// 客户身份留空：客户通过账号关联鉴别，而不是白名单。
	AllowedChatIDs []int64 `mapstructure:"allowed_chat_ids"`
}

// EmailConfig 存储 SMTP 邮件发送的配置。
type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// PushConfig 存储在线推送注册表的配置。
type PushConfig struct {
	// StaleAfterMinutes 连接空闲清扫阈值（分钟），默认 5。
	StaleAfterMinutes int `mapstructure:"stale_after_minutes"`
	// HeartbeatSeconds web 类连接的心跳间隔（秒），默认 30。
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}
}
