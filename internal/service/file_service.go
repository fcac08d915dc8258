// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tuneflow-go/internal/model"
	"tuneflow-go/internal/repository"
	"tuneflow-go/pkg/log"
)

// adminNotesMaxLen 工作人员备注的字符上限。
const adminNotesMaxLen = 2000

// UploadConfirmedInput 是上传确认时创建文件记录所需的全部信息。
// 对象本体已由客户端直传对象存储，这里只登记元数据。
type UploadConfirmedInput struct {
	UserID          uint
	FileName        string
	StorageKey      string
	FileSize        int64
	ContentType     string
	Comment         string
	DTCCodes        string
	ModificationIDs []uint
}

// CountdownInfo 是按需计算的倒计时视图，不落库。
// Remaining 为 0 表示窗口已过期，这不是错误。
type CountdownInfo struct {
	RemainingMs     int64   `json:"remainingMs"`
	TotalMs         int64   `json:"totalMs"`
	PercentComplete float64 `json:"percentComplete"`
	Expired         bool    `json:"expired"`
}

// FileService 接口是文件生命周期状态机的唯一修改入口。
// 工作人员面板和聊天机器人路由都必须经由这里修改文件，
// 保证每一次变更都被统一审计并扇出。
type FileService interface {
	UploadConfirmed(ctx context.Context, input UploadConfirmedInput) (*model.TuningFile, error)
	GetFile(fileID string) (*model.TuningFile, error)
	ListByUser(userID uint) ([]model.TuningFile, error)
	ListAll() ([]model.TuningFile, error)

	SetStatus(ctx context.Context, fileID, newStatus string, estimateMinutes *int, actor *model.User) (*model.TuningFile, error)
	SetEstimatedTime(ctx context.Context, fileID string, minutes int, actor *model.User) error
	SetPrice(ctx context.Context, fileID string, price decimal.Decimal, actor *model.User) error
	SetPaymentStatus(ctx context.Context, fileID, status string, actor *model.User) error
	SetAdminNotes(ctx context.Context, fileID, notes string, actor *model.User) error
	AttachModifiedFile(ctx context.Context, fileID, storageKey, fileName string, size int64, contentType string, actor *model.User) error

	Countdown(file *model.TuningFile) *CountdownInfo
	AuditTrail(fileID string) ([]model.AuditLogEntry, error)
}

// fileService 是 FileService 接口的实现。
type fileService struct {
	fileRepo  repository.TuningFileRepository
	auditRepo repository.AuditLogRepository
	notify    NotifyService
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(
	fileRepo repository.TuningFileRepository,
	auditRepo repository.AuditLogRepository,
	notify NotifyService,
) FileService {
	return &fileService{
		fileRepo:  fileRepo,
		auditRepo: auditRepo,
		notify:    notify,
	}
}

// load 加载文件记录，把 gorm 的未找到错误翻译成业务错误。
func (s *fileService) load(fileID string) (*model.TuningFile, error) {
	file, err := s.fileRepo.FindByID(fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return file, nil
}

// audit 追加一条审计记录。审计失败只记日志：状态变更此刻已经提交。
func (s *fileService) audit(fileID string, actor *model.User, action, oldValue, newValue string) {
	entry := &model.AuditLogEntry{
		FileID:   fileID,
		ActorID:  actor.ID,
		Action:   action,
		OldValue: oldValue,
		NewValue: newValue,
	}
	if err := s.auditRepo.Append(entry); err != nil {
		log.Errorf("审计记录写入失败, fileID=%s, action=%s, err=%v", fileID, action, err)
	}
}

// UploadConfirmed 在客户端确认直传完成后创建文件记录（status=RECEIVED），
// 并向所有工作人员扇出带状态操作按钮的新上传提醒。
func (s *fileService) UploadConfirmed(ctx context.Context, input UploadConfirmedInput) (*model.TuningFile, error) {
	file := &model.TuningFile{
		ID:            uuid.NewString(),
		UserID:        input.UserID,
		FileName:      input.FileName,
		StorageKey:    input.StorageKey,
		FileSize:      input.FileSize,
		ContentType:   input.ContentType,
		Status:        model.FileStatusReceived,
		PaymentStatus: model.PaymentStatusNotPaid,
		Price:         decimal.Zero,
		Comment:       input.Comment,
		DTCCodes:      input.DTCCodes,
	}
	if err := s.fileRepo.Create(file); err != nil {
		return nil, err
	}
	if err := s.fileRepo.AttachModifications(file, input.ModificationIDs); err != nil {
		log.Errorf("关联调校操作失败, fileID=%s, err=%v", file.ID, err)
	}

	s.notify.NotifyAdmins(ctx, Event{
		Type:    model.NotifyTypeNewUpload,
		Title:   "新文件上传",
		Message: fmt.Sprintf("客户上传了新文件 %s，等待审核定价", file.FileName),
		FileID:  &file.ID,
		Data: map[string]interface{}{
			"fileId":   file.ID,
			"fileName": file.FileName,
			"status":   file.Status,
		},
	}, 0)

	return file, nil
}

// GetFile 返回一条文件记录。
func (s *fileService) GetFile(fileID string) (*model.TuningFile, error) {
	return s.load(fileID)
}

// ListByUser 返回指定客户的全部文件。
func (s *fileService) ListByUser(userID uint) ([]model.TuningFile, error) {
	return s.fileRepo.FindByUserID(userID)
}

// ListAll 返回全部文件，供工作人员面板使用。
func (s *fileService) ListAll() ([]model.TuningFile, error) {
	return s.fileRepo.FindAll()
}

// SetStatus 写入新的文件状态。
// 状态与当前值相同是幂等无操作：聊天平台 webhook 可能重复投递，
// 重放不产生重复审计和重复通知，直接按成功返回。
// 进入 PENDING 且携带预估时一并写入倒计时窗口；离开 PENDING 清空两个倒计时字段。
func (s *fileService) SetStatus(ctx context.Context, fileID, newStatus string, estimateMinutes *int, actor *model.User) (*model.TuningFile, error) {
	if !model.ValidFileStatus(newStatus) {
		return nil, ErrInvalidStatus
	}
	if estimateMinutes != nil && *estimateMinutes <= 0 {
		return nil, ErrInvalidEstimate
	}
	file, err := s.load(fileID)
	if err != nil {
		return nil, err
	}
	if file.Status == newStatus {
		return file, nil
	}
	if newStatus == model.FileStatusReady && file.ModifiedStorageKey == nil {
		return nil, ErrModifiedFileMissing
	}

	oldStatus := file.Status
	fields := map[string]interface{}{"status": newStatus}
	if newStatus == model.FileStatusPending {
		if estimateMinutes != nil {
			now := time.Now()
			fields["estimated_processing_time"] = *estimateMinutes
			fields["estimated_processing_time_set_at"] = now
		}
	} else {
		fields["estimated_processing_time"] = nil
		fields["estimated_processing_time_set_at"] = nil
	}
	if err := s.fileRepo.UpdateFields(fileID, fields); err != nil {
		return nil, err
	}

	s.audit(fileID, actor, model.AuditActionStatusChange, oldStatus, newStatus)

	s.notify.Notify(ctx, Event{
		Type:    model.NotifyTypeFileStatusUpdate,
		UserID:  file.UserID,
		Title:   "文件状态更新",
		Message: fmt.Sprintf("文件 %s 的状态由 %s 变更为 %s", file.FileName, oldStatus, newStatus),
		FileID:  &file.ID,
		Data: map[string]interface{}{
			"fileId":    file.ID,
			"fileName":  file.FileName,
			"oldStatus": oldStatus,
			"newStatus": newStatus,
		},
	})

	return s.load(fileID)
}

// humanizeMinutes 把分钟数转成人类可读的时间串。
func humanizeMinutes(minutes int) string {
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

// SetEstimatedTime 在不改变状态的前提下更新倒计时窗口。
// 仅在 PENDING 状态下有意义。
func (s *fileService) SetEstimatedTime(ctx context.Context, fileID string, minutes int, actor *model.User) error {
	if minutes <= 0 {
		return ErrInvalidEstimate
	}
	file, err := s.load(fileID)
	if err != nil {
		return err
	}
	if file.Status != model.FileStatusPending {
		return ErrEstimateNotPending
	}

	oldValue := ""
	if file.EstimatedProcessingTime != nil {
		oldValue = humanizeMinutes(*file.EstimatedProcessingTime)
	}
	now := time.Now()
	if err := s.fileRepo.UpdateFields(fileID, map[string]interface{}{
		"estimated_processing_time":        minutes,
		"estimated_processing_time_set_at": now,
	}); err != nil {
		return err
	}

	timeText := humanizeMinutes(minutes)
	s.audit(fileID, actor, model.AuditActionEstimatedTimeSet, oldValue, timeText)

	s.notify.Notify(ctx, Event{
		Type:    model.NotifyTypeEstimatedTimeUpdate,
		UserID:  file.UserID,
		Title:   "预计完成时间更新",
		Message: fmt.Sprintf("文件 %s 预计 %s 内完成", file.FileName, timeText),
		FileID:  &file.ID,
		Data: map[string]interface{}{
			"fileId":          file.ID,
			"fileName":        file.FileName,
			"estimateMinutes": minutes,
			"timeText":        timeText,
		},
	})

	return nil
}

// SetPrice 写入价格。负数在任何写入前被拒绝。
func (s *fileService) SetPrice(ctx context.Context, fileID string, price decimal.Decimal, actor *model.User) error {
	if price.IsNegative() {
		return ErrNegativePrice
	}
	file, err := s.load(fileID)
	if err != nil {
		return err
	}

	oldPrice := file.Price.String()
	if err := s.fileRepo.UpdateFields(fileID, map[string]interface{}{"price": price}); err != nil {
		return err
	}

	s.audit(fileID, actor, model.AuditActionPriceSet, oldPrice, price.String())

	s.notify.Notify(ctx, Event{
		Type:    model.NotifyTypePriceSet,
		UserID:  file.UserID,
		Title:   "文件已定价",
		Message: fmt.Sprintf("文件 %s 的价格已设置为 %s", file.FileName, price.String()),
		FileID:  &file.ID,
		Data: map[string]interface{}{
			"fileId":   file.ID,
			"fileName": file.FileName,
			"price":    price.String(),
		},
	})

	return nil
}

// SetPaymentStatus 写入支付状态。转为 PAID 时追加付款确认通知与邮件
// （邮件失败在扇出边界内被记录并吞掉，不影响本次调用）。
func (s *fileService) SetPaymentStatus(ctx context.Context, fileID, status string, actor *model.User) error {
	if !model.ValidPaymentStatus(status) {
		return ErrInvalidPaymentStatus
	}
	file, err := s.load(fileID)
	if err != nil {
		return err
	}
	if file.PaymentStatus == status {
		return nil
	}

	oldStatus := file.PaymentStatus
	if err := s.fileRepo.UpdateFields(fileID, map[string]interface{}{"payment_status": status}); err != nil {
		return err
	}

	s.audit(fileID, actor, model.AuditActionPaymentStatusChange, oldStatus, status)

	if status == model.PaymentStatusPaid {
		s.notify.Notify(ctx, Event{
			Type:    model.NotifyTypePaymentConfirmed,
			UserID:  file.UserID,
			Title:   "付款已确认",
			Message: fmt.Sprintf("文件 %s 的付款已确认，我们会尽快开始处理", file.FileName),
			FileID:  &file.ID,
			Data: map[string]interface{}{
				"fileId":   file.ID,
				"fileName": file.FileName,
			},
		})
	}

	return nil
}

// SetAdminNotes 写入工作人员备注，超过 2000 字符在写入前拒绝。
// 备注非空时同时通知客户（"工作人员已留言"）和其他工作人员
// （让同事看到这个文件有了新的动态）。
func (s *fileService) SetAdminNotes(ctx context.Context, fileID, notes string, actor *model.User) error {
	if utf8.RuneCountInString(notes) > adminNotesMaxLen {
		return ErrNotesTooLong
	}
	file, err := s.load(fileID)
	if err != nil {
		return err
	}

	oldNotes := file.AdminNotes
	if err := s.fileRepo.UpdateFields(fileID, map[string]interface{}{"admin_notes": notes}); err != nil {
		return err
	}

	s.audit(fileID, actor, model.AuditActionAdminNotesUpdated, oldNotes, notes)

	if notes != "" {
		s.notify.Notify(ctx, Event{
			Type:    model.NotifyTypeAdminNotes,
			UserID:  file.UserID,
			Title:   "工作人员留言",
			Message: fmt.Sprintf("工作人员对文件 %s 添加了备注", file.FileName),
			FileID:  &file.ID,
			Data: map[string]interface{}{
				"fileId":   file.ID,
				"fileName": file.FileName,
			},
		})
		s.notify.NotifyAdmins(ctx, Event{
			Type:    model.NotifyTypeAdminNotes,
			Title:   "文件备注更新",
			Message: fmt.Sprintf("%s 更新了文件 %s 的备注", actor.Username, file.FileName),
			FileID:  &file.ID,
			Data: map[string]interface{}{
				"fileId":   file.ID,
				"fileName": file.FileName,
				"actor":    actor.Username,
			},
		}, actor.ID)
	}

	return nil
}

// AttachModifiedFile 登记工作人员上传的成品交付件。
// 这是把状态置为 READY 的前置条件。
func (s *fileService) AttachModifiedFile(ctx context.Context, fileID, storageKey, fileName string, size int64, contentType string, actor *model.User) error {
	if _, err := s.load(fileID); err != nil {
		return err
	}
	return s.fileRepo.UpdateFields(fileID, map[string]interface{}{
		"modified_storage_key":  storageKey,
		"modified_file_name":    fileName,
		"modified_file_size":    size,
		"modified_content_type": contentType,
	})
}

// Countdown 按需推导倒计时视图。文件不在 PENDING 或未设置窗口时返回 nil。
func (s *fileService) Countdown(file *model.TuningFile) *CountdownInfo {
	if file.Status != model.FileStatusPending ||
		file.EstimatedProcessingTime == nil || file.EstimatedProcessingTimeSetAt == nil {
		return nil
	}

	totalMs := int64(*file.EstimatedProcessingTime) * 60_000
	elapsedMs := time.Since(*file.EstimatedProcessingTimeSetAt).Milliseconds()
	remainingMs := totalMs - elapsedMs
	if remainingMs < 0 {
		remainingMs = 0
	}

	percent := 100.0
	if totalMs > 0 {
		percent = float64(totalMs-remainingMs) / float64(totalMs) * 100
	}

	return &CountdownInfo{
		RemainingMs:     remainingMs,
		TotalMs:         totalMs,
		PercentComplete: percent,
		Expired:         remainingMs == 0,
	}
}

// AuditTrail 返回文件的完整审计记录。
func (s *fileService) AuditTrail(fileID string) ([]model.AuditLogEntry, error) {
	return s.auditRepo.FindByFileID(fileID)
}
