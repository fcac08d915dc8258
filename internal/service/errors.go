// Package service 包含了应用的业务逻辑层。
package service

import "errors"

// 业务错误分级：校验错误在任何写入之前拒绝，未找到错误与校验错误
// 区分上报，下游渠道错误只在扇出边界内记录、从不上抛。
var (
	// ErrFileNotFound 文件 ID 不存在。
	ErrFileNotFound = errors.New("文件不存在")
	// ErrInvalidStatus 未知的文件状态。
	ErrInvalidStatus = errors.New("无效的文件状态")
	// ErrInvalidPaymentStatus 未知的支付状态。
	ErrInvalidPaymentStatus = errors.New("无效的支付状态")
	// ErrNegativePrice 价格必须为非负数。
	ErrNegativePrice = errors.New("价格不能为负数")
	// ErrNotesTooLong 工作人员备注超出 2000 字符上限。
	ErrNotesTooLong = errors.New("备注长度超出 2000 字符上限")
	// ErrEstimateNotPending 预计完成时间仅在 PENDING 状态下有意义。
	ErrEstimateNotPending = errors.New("仅处理中的文件可以设置预计完成时间")
	// ErrInvalidEstimate 预计完成时间必须为正的分钟数。
	ErrInvalidEstimate = errors.New("预计完成时间必须为正数")
	// ErrModifiedFileMissing 成品未上传时不允许把状态置为 READY。
	ErrModifiedFileMissing = errors.New("成品文件尚未上传，不能标记为完成")
	// ErrFileNotReady 成品仅在 READY 状态下可下载。
	ErrFileNotReady = errors.New("文件尚未处理完成，成品不可下载")
)
