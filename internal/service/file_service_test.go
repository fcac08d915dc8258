package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tuneflow-go/internal/model"
)

// fakeFileRepo 是内存版的文件仓库，UpdateFields 按字段名写回结构体，
// 行为对齐 GORM 的 Updates(map) 语义（map 中的 nil 写 NULL）。
type fakeFileRepo struct {
	files map[string]*model.TuningFile
}

func newFakeFileRepo(files ...*model.TuningFile) *fakeFileRepo {
	r := &fakeFileRepo{files: make(map[string]*model.TuningFile)}
	for _, f := range files {
		r.files[f.ID] = f
	}
	return r
}

func (r *fakeFileRepo) Create(file *model.TuningFile) error {
	r.files[file.ID] = file
	return nil
}

func (r *fakeFileRepo) FindByID(fileID string) (*model.TuningFile, error) {
	f, ok := r.files[fileID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *fakeFileRepo) FindByUserID(userID uint) ([]model.TuningFile, error) {
	var out []model.TuningFile
	for _, f := range r.files {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) FindAll() ([]model.TuningFile, error) {
	var out []model.TuningFile
	for _, f := range r.files {
		out = append(out, *f)
	}
	return out, nil
}

func (r *fakeFileRepo) UpdateFields(fileID string, fields map[string]interface{}) error {
	f, ok := r.files[fileID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for name, value := range fields {
		switch name {
		case "status":
			f.Status = value.(string)
		case "payment_status":
			f.PaymentStatus = value.(string)
		case "price":
			f.Price = value.(decimal.Decimal)
		case "admin_notes":
			f.AdminNotes = value.(string)
		case "estimated_processing_time":
			if value == nil {
				f.EstimatedProcessingTime = nil
			} else {
				v := value.(int)
				f.EstimatedProcessingTime = &v
			}
		case "estimated_processing_time_set_at":
			if value == nil {
				f.EstimatedProcessingTimeSetAt = nil
			} else {
				v := value.(time.Time)
				f.EstimatedProcessingTimeSetAt = &v
			}
		case "modified_storage_key":
			v := value.(string)
			f.ModifiedStorageKey = &v
		case "modified_file_name":
			v := value.(string)
			f.ModifiedFileName = &v
		case "modified_file_size":
			v := value.(int64)
			f.ModifiedFileSize = &v
		case "modified_content_type":
			v := value.(string)
			f.ModifiedContentType = &v
		}
	}
	return nil
}

func (r *fakeFileRepo) AttachModifications(file *model.TuningFile, modIDs []uint) error {
	return nil
}

// fakeAuditRepo 把审计记录收进切片。
type fakeAuditRepo struct {
	entries []model.AuditLogEntry
}

func (r *fakeAuditRepo) Append(entry *model.AuditLogEntry) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) FindByFileID(fileID string) ([]model.AuditLogEntry, error) {
	var out []model.AuditLogEntry
	for _, e := range r.entries {
		if e.FileID == fileID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeNotify 记录所有扇出调用。
type fakeNotify struct {
	events      []Event
	adminEvents []Event
	excluded    []uint
}

func (n *fakeNotify) Notify(ctx context.Context, event Event) {
	n.events = append(n.events, event)
}

func (n *fakeNotify) NotifyAdmins(ctx context.Context, event Event, excludeUserID uint) {
	n.adminEvents = append(n.adminEvents, event)
	n.excluded = append(n.excluded, excludeUserID)
}

func (n *fakeNotify) SetChatNotifier(chat ChatNotifier) {}

func testActor() *model.User {
	return &model.User{ID: 9, Username: "staff", Role: "ADMIN"}
}

func receivedFile(id string) *model.TuningFile {
	return &model.TuningFile{
		ID:            id,
		UserID:        7,
		FileName:      "stage1.bin",
		StorageKey:    "uploads/7/x/stage1.bin",
		Status:        model.FileStatusReceived,
		PaymentStatus: model.PaymentStatusNotPaid,
		Price:         decimal.Zero,
	}
}

func newTestFileService(files ...*model.TuningFile) (FileService, *fakeFileRepo, *fakeAuditRepo, *fakeNotify) {
	fileRepo := newFakeFileRepo(files...)
	auditRepo := &fakeAuditRepo{}
	notify := &fakeNotify{}
	return NewFileService(fileRepo, auditRepo, notify), fileRepo, auditRepo, notify
}

func TestSetStatusTransition(t *testing.T) {
	svc, repo, audit, notify := newTestFileService(receivedFile("f1"))
	minutes := 30

	file, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &minutes, testActor())
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if file.Status != model.FileStatusPending {
		t.Errorf("status = %s, want %s", file.Status, model.FileStatusPending)
	}
	// 进入 PENDING 且带预估：倒计时窗口两个字段一并写入
	stored := repo.files["f1"]
	if stored.EstimatedProcessingTime == nil || *stored.EstimatedProcessingTime != 30 {
		t.Errorf("estimated time 未写入")
	}
	if stored.EstimatedProcessingTimeSetAt == nil {
		t.Errorf("estimated time set at 未写入")
	}
	// 恰好一条审计
	if len(audit.entries) != 1 {
		t.Fatalf("审计记录数 = %d, want 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.Action != model.AuditActionStatusChange || e.OldValue != model.FileStatusReceived || e.NewValue != model.FileStatusPending {
		t.Errorf("审计内容错误: %+v", e)
	}
	// 恰好一次客户通知
	if len(notify.events) != 1 || notify.events[0].Type != model.NotifyTypeFileStatusUpdate {
		t.Errorf("扇出事件错误: %+v", notify.events)
	}
	if notify.events[0].UserID != 7 {
		t.Errorf("通知接收者 = %d, want 7", notify.events[0].UserID)
	}
}

func TestSetStatusReplayIsNoop(t *testing.T) {
	svc, _, audit, notify := newTestFileService(receivedFile("f1"))
	minutes := 15

	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &minutes, testActor()); err != nil {
		t.Fatalf("首次 SetStatus: %v", err)
	}
	// webhook 重复投递：同状态重放按成功返回，不追加审计和通知
	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &minutes, testActor()); err != nil {
		t.Fatalf("重放 SetStatus: %v", err)
	}
	if len(audit.entries) != 1 {
		t.Errorf("重放后审计记录数 = %d, want 1", len(audit.entries))
	}
	if len(notify.events) != 1 {
		t.Errorf("重放后扇出次数 = %d, want 1", len(notify.events))
	}
}

func TestSetStatusReadyRequiresModifiedFile(t *testing.T) {
	svc, repo, _, _ := newTestFileService(receivedFile("f1"))

	_, err := svc.SetStatus(context.Background(), "f1", model.FileStatusReady, nil, testActor())
	if err != ErrModifiedFileMissing {
		t.Fatalf("err = %v, want ErrModifiedFileMissing", err)
	}
	if repo.files["f1"].Status != model.FileStatusReceived {
		t.Errorf("拒绝后状态被修改: %s", repo.files["f1"].Status)
	}

	// 挂上成品后允许 READY
	if err := svc.AttachModifiedFile(context.Background(), "f1", "modified/f1/out.bin", "out.bin", 1024, "application/octet-stream", testActor()); err != nil {
		t.Fatalf("AttachModifiedFile: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusReady, nil, testActor()); err != nil {
		t.Fatalf("SetStatus READY: %v", err)
	}
}

func TestSetStatusLeavingPendingClearsCountdown(t *testing.T) {
	svc, repo, _, _ := newTestFileService(receivedFile("f1"))
	minutes := 20

	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &minutes, testActor()); err != nil {
		t.Fatalf("SetStatus PENDING: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusReceived, nil, testActor()); err != nil {
		t.Fatalf("SetStatus RECEIVED: %v", err)
	}
	stored := repo.files["f1"]
	if stored.EstimatedProcessingTime != nil || stored.EstimatedProcessingTimeSetAt != nil {
		t.Errorf("离开 PENDING 后倒计时字段未清空")
	}
}

func TestSetStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _, _ := newTestFileService(receivedFile("f1"))
	if _, err := svc.SetStatus(context.Background(), "f1", "SHIPPED", nil, testActor()); err != ErrInvalidStatus {
		t.Errorf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestSetStatusRejectsNonPositiveEstimate(t *testing.T) {
	svc, repo, audit, _ := newTestFileService(receivedFile("f1"))

	for _, minutes := range []int{0, -30} {
		m := minutes
		if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &m, testActor()); err != ErrInvalidEstimate {
			t.Errorf("minutes=%d: err = %v, want ErrInvalidEstimate", minutes, err)
		}
	}

	// 校验失败发生在任何写入之前
	file, _ := repo.FindByID("f1")
	if file.Status != model.FileStatusReceived || file.EstimatedProcessingTime != nil {
		t.Errorf("非法预估写入了状态或倒计时窗口: %+v", file)
	}
	if len(audit.entries) != 0 {
		t.Errorf("非法预估产生了审计记录")
	}
}

func TestSetStatusFileNotFound(t *testing.T) {
	svc, _, _, _ := newTestFileService()
	if _, err := svc.SetStatus(context.Background(), "missing", model.FileStatusPending, nil, testActor()); err != ErrFileNotFound {
		t.Errorf("err = %v, want ErrFileNotFound", err)
	}
}

func TestSetPrice(t *testing.T) {
	svc, repo, audit, notify := newTestFileService(receivedFile("f1"))
	price := decimal.RequireFromString("150.50")

	if err := svc.SetPrice(context.Background(), "f1", price, testActor()); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	if !repo.files["f1"].Price.Equal(price) {
		t.Errorf("price = %s, want %s", repo.files["f1"].Price, price)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != model.AuditActionPriceSet {
		t.Fatalf("审计记录错误: %+v", audit.entries)
	}
	if audit.entries[0].OldValue != "0" {
		t.Errorf("审计旧值 = %q, want \"0\"", audit.entries[0].OldValue)
	}
	if len(notify.events) != 1 || notify.events[0].Type != model.NotifyTypePriceSet {
		t.Errorf("扇出事件错误: %+v", notify.events)
	}
}

func TestSetPriceRejectsNegative(t *testing.T) {
	svc, repo, audit, _ := newTestFileService(receivedFile("f1"))

	err := svc.SetPrice(context.Background(), "f1", decimal.RequireFromString("-1"), testActor())
	if err != ErrNegativePrice {
		t.Fatalf("err = %v, want ErrNegativePrice", err)
	}
	// 任何写入前被拒绝：价格保持原值，无审计
	if !repo.files["f1"].Price.Equal(decimal.Zero) {
		t.Errorf("拒绝后价格被修改: %s", repo.files["f1"].Price)
	}
	if len(audit.entries) != 0 {
		t.Errorf("拒绝后产生了审计记录")
	}
}

func TestSetPaymentStatusPaid(t *testing.T) {
	svc, _, audit, notify := newTestFileService(receivedFile("f1"))

	if err := svc.SetPaymentStatus(context.Background(), "f1", model.PaymentStatusPaid, testActor()); err != nil {
		t.Fatalf("SetPaymentStatus: %v", err)
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != model.AuditActionPaymentStatusChange {
		t.Fatalf("审计记录错误: %+v", audit.entries)
	}
	if len(notify.events) != 1 || notify.events[0].Type != model.NotifyTypePaymentConfirmed {
		t.Errorf("扇出事件错误: %+v", notify.events)
	}

	// 支付状态重放同样是幂等无操作
	if err := svc.SetPaymentStatus(context.Background(), "f1", model.PaymentStatusPaid, testActor()); err != nil {
		t.Fatalf("重放 SetPaymentStatus: %v", err)
	}
	if len(audit.entries) != 1 || len(notify.events) != 1 {
		t.Errorf("重放追加了审计或通知")
	}
}

func TestSetAdminNotes(t *testing.T) {
	svc, repo, audit, notify := newTestFileService(receivedFile("f1"))
	actor := testActor()

	if err := svc.SetAdminNotes(context.Background(), "f1", "需要客户确认 DTC P0301", actor); err != nil {
		t.Fatalf("SetAdminNotes: %v", err)
	}
	if repo.files["f1"].AdminNotes == "" {
		t.Errorf("备注未写入")
	}
	if len(audit.entries) != 1 || audit.entries[0].Action != model.AuditActionAdminNotesUpdated {
		t.Fatalf("审计记录错误: %+v", audit.entries)
	}
	// 客户收到一条，同事广播一次且排除操作者本人
	if len(notify.events) != 1 || notify.events[0].UserID != 7 {
		t.Errorf("客户通知错误: %+v", notify.events)
	}
	if len(notify.adminEvents) != 1 || notify.excluded[0] != actor.ID {
		t.Errorf("同事广播错误: events=%+v excluded=%v", notify.adminEvents, notify.excluded)
	}
}

func TestSetAdminNotesTooLong(t *testing.T) {
	svc, repo, audit, _ := newTestFileService(receivedFile("f1"))

	err := svc.SetAdminNotes(context.Background(), "f1", strings.Repeat("长", adminNotesMaxLen+1), testActor())
	if err != ErrNotesTooLong {
		t.Fatalf("err = %v, want ErrNotesTooLong", err)
	}
	if repo.files["f1"].AdminNotes != "" || len(audit.entries) != 0 {
		t.Errorf("超长备注被写入")
	}
}

func TestSetAdminNotesBoundary(t *testing.T) {
	// 恰好 2000 字符（按 rune 计数）可以通过
	svc, _, _, _ := newTestFileService(receivedFile("f1"))
	if err := svc.SetAdminNotes(context.Background(), "f1", strings.Repeat("长", adminNotesMaxLen), testActor()); err != nil {
		t.Errorf("2000 字符备注被拒绝: %v", err)
	}
}

func TestSetEstimatedTimeRequiresPending(t *testing.T) {
	svc, _, _, _ := newTestFileService(receivedFile("f1"))
	if err := svc.SetEstimatedTime(context.Background(), "f1", 30, testActor()); err != ErrEstimateNotPending {
		t.Errorf("err = %v, want ErrEstimateNotPending", err)
	}
}

func TestSetEstimatedTimeRejectsNonPositive(t *testing.T) {
	minutes := 10
	svc, _, _, _ := newTestFileService(receivedFile("f1"))
	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &minutes, testActor()); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	for _, m := range []int{0, -5} {
		if err := svc.SetEstimatedTime(context.Background(), "f1", m, testActor()); err != ErrInvalidEstimate {
			t.Errorf("minutes=%d: err = %v, want ErrInvalidEstimate", m, err)
		}
	}
}

func TestSetEstimatedTimeHumanizes(t *testing.T) {
	svc, _, audit, notify := newTestFileService(receivedFile("f1"))
	minutes := 10
	if _, err := svc.SetStatus(context.Background(), "f1", model.FileStatusPending, &minutes, testActor()); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	if err := svc.SetEstimatedTime(context.Background(), "f1", 1, testActor()); err != nil {
		t.Fatalf("SetEstimatedTime: %v", err)
	}
	last := audit.entries[len(audit.entries)-1]
	if last.OldValue != "10 minutes" || last.NewValue != "1 minute" {
		t.Errorf("审计值 = %q -> %q, want \"10 minutes\" -> \"1 minute\"", last.OldValue, last.NewValue)
	}
	ev := notify.events[len(notify.events)-1]
	if ev.Type != model.NotifyTypeEstimatedTimeUpdate || ev.Data["timeText"] != "1 minute" {
		t.Errorf("扇出事件错误: %+v", ev)
	}
}

func TestCountdown(t *testing.T) {
	svc, _, _, _ := newTestFileService()
	minutes := 2

	t.Run("进行中", func(t *testing.T) {
		setAt := time.Now().Add(-30 * time.Second)
		file := &model.TuningFile{
			Status:                       model.FileStatusPending,
			EstimatedProcessingTime:      &minutes,
			EstimatedProcessingTimeSetAt: &setAt,
		}
		info := svc.Countdown(file)
		if info == nil {
			t.Fatal("Countdown 返回 nil")
		}
		// 2 分钟窗口过去 30 秒，剩余约 90 秒
		if info.RemainingMs < 89_000 || info.RemainingMs > 91_000 {
			t.Errorf("remaining = %d, want ~90000", info.RemainingMs)
		}
		if info.TotalMs != 120_000 || info.Expired {
			t.Errorf("info = %+v", info)
		}
	})

	t.Run("已过期", func(t *testing.T) {
		setAt := time.Now().Add(-3 * time.Minute)
		file := &model.TuningFile{
			Status:                       model.FileStatusPending,
			EstimatedProcessingTime:      &minutes,
			EstimatedProcessingTimeSetAt: &setAt,
		}
		info := svc.Countdown(file)
		if info == nil {
			t.Fatal("Countdown 返回 nil")
		}
		// 过期固定在 0，不出现负数
		if info.RemainingMs != 0 || !info.Expired || info.PercentComplete != 100 {
			t.Errorf("info = %+v", info)
		}
	})

	t.Run("非PENDING无倒计时", func(t *testing.T) {
		setAt := time.Now()
		file := &model.TuningFile{
			Status:                       model.FileStatusReady,
			EstimatedProcessingTime:      &minutes,
			EstimatedProcessingTimeSetAt: &setAt,
		}
		if info := svc.Countdown(file); info != nil {
			t.Errorf("非 PENDING 仍返回倒计时: %+v", info)
		}
	})

	t.Run("未设置窗口", func(t *testing.T) {
		file := &model.TuningFile{Status: model.FileStatusPending}
		if info := svc.Countdown(file); info != nil {
			t.Errorf("未设置窗口仍返回倒计时: %+v", info)
		}
	})
}

func TestUploadConfirmed(t *testing.T) {
	svc, repo, _, notify := newTestFileService()

	file, err := svc.UploadConfirmed(context.Background(), UploadConfirmedInput{
		UserID:      7,
		FileName:    "ecu.bin",
		StorageKey:  "uploads/7/x/ecu.bin",
		FileSize:    2048,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		t.Fatalf("UploadConfirmed: %v", err)
	}
	if file.Status != model.FileStatusReceived || file.PaymentStatus != model.PaymentStatusNotPaid {
		t.Errorf("初始状态错误: status=%s payment=%s", file.Status, file.PaymentStatus)
	}
	if !file.Price.Equal(decimal.Zero) {
		t.Errorf("初始价格 = %s, want 0", file.Price)
	}
	if _, ok := repo.files[file.ID]; !ok {
		t.Errorf("文件未落库")
	}
	if len(notify.adminEvents) != 1 || notify.adminEvents[0].Type != model.NotifyTypeNewUpload {
		t.Errorf("新上传广播错误: %+v", notify.adminEvents)
	}
}
