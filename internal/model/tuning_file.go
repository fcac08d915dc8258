// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 文件生命周期状态。状态机只有三个状态，支付状态与其正交。
const (
	FileStatusReceived = "RECEIVED" // 已接收，等待工作人员处理
	FileStatusPending  = "PENDING"  // 处理中，可附带预计完成时间
	FileStatusReady    = "READY"    // 处理完成，成品可下载
)

// 支付状态。
const (
	PaymentStatusNotPaid = "NOT_PAID"
	PaymentStatusPaid    = "PAID"
)

// ValidFileStatus 检查给定字符串是否为合法的文件状态。
func ValidFileStatus(s string) bool {
	return s == FileStatusReceived || s == FileStatusPending || s == FileStatusReady
}

// ValidPaymentStatus 检查给定字符串是否为合法的支付状态。
func ValidPaymentStatus(s string) bool {
	return s == PaymentStatusNotPaid || s == PaymentStatusPaid
}

// TuningFile 对应于数据库中的 'tuning_files' 表。
// 它记录了客户上传的一个调校二进制文件及其审核/付款流转状态。
// 主键使用 UUID：回调负载按 "_" 切分，ID 中绝不允许出现分隔符。
type TuningFile struct {
	ID     string `gorm:"type:char(36);primaryKey" json:"id"`
	UserID uint   `gorm:"index;not null" json:"userId"`

	// 原始上传件的元数据与对象存储键。
	FileName    string `gorm:"type:varchar(255);not null" json:"fileName"`
	StorageKey  string `gorm:"type:varchar(512);not null" json:"storageKey"`
	FileSize    int64  `gorm:"not null" json:"fileSize"`
	ContentType string `gorm:"type:varchar(100)" json:"contentType"`

	// 工作流字段。Price 默认为 0，直到工作人员定价。
	Status        string          `gorm:"type:varchar(16);not null;default:'RECEIVED'" json:"status"`
	PaymentStatus string          `gorm:"type:varchar(16);not null;default:'NOT_PAID'" json:"paymentStatus"`
	Price         decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`

	// 倒计时窗口：仅在 Status = PENDING 时有意义，离开 PENDING 必须清空两个字段。
	EstimatedProcessingTime      *int       `gorm:"default:null" json:"estimatedProcessingTime"` // 分钟
	EstimatedProcessingTimeSetAt *time.Time `gorm:"default:null" json:"estimatedProcessingTimeSetAt"`

	// 自由文本字段。
	Comment    string `gorm:"type:text" json:"comment"`
	AdminNotes string `gorm:"type:varchar(2000)" json:"adminNotes"`
	DTCCodes   string `gorm:"column:dtc_codes;type:text" json:"dtcCodes"`

	// 成品交付件：工作人员上传处理结果后填充，仅在 Status = READY 时对外可下载。
	ModifiedFileName    *string `gorm:"type:varchar(255)" json:"modifiedFileName"`
	ModifiedStorageKey  *string `gorm:"type:varchar(512)" json:"modifiedStorageKey"`
	ModifiedFileSize    *int64  `json:"modifiedFileSize"`
	ModifiedContentType *string `gorm:"type:varchar(100)" json:"modifiedContentType"`

	// 客户请求的调校操作（多对多）。
	Modifications []Modification `gorm:"many2many:tuning_file_modifications;" json:"modifications"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (TuningFile) TableName() string {
	return "tuning_files"
}
