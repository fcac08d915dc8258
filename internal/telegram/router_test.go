package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tuneflow-go/internal/config"
	"tuneflow-go/internal/model"
	"tuneflow-go/internal/service"
)

// statusCall 记录一次状态变更调用。
type statusCall struct {
	fileID string
	status string
	actor  *model.User
}

// fakeFileService 只实现路由用到的 SetStatus，其余方法空转。
type fakeFileService struct {
	calls []statusCall
	file  *model.TuningFile
	err   error
}

func (f *fakeFileService) SetStatus(ctx context.Context, fileID, newStatus string, estimateMinutes *int, actor *model.User) (*model.TuningFile, error) {
	f.calls = append(f.calls, statusCall{fileID: fileID, status: newStatus, actor: actor})
	if f.err != nil {
		return nil, f.err
	}
	return f.file, nil
}

func (f *fakeFileService) UploadConfirmed(ctx context.Context, input service.UploadConfirmedInput) (*model.TuningFile, error) {
	return nil, nil
}
func (f *fakeFileService) GetFile(fileID string) (*model.TuningFile, error)      { return nil, nil }
func (f *fakeFileService) ListByUser(userID uint) ([]model.TuningFile, error)    { return nil, nil }
func (f *fakeFileService) ListAll() ([]model.TuningFile, error)                  { return nil, nil }
func (f *fakeFileService) SetEstimatedTime(ctx context.Context, fileID string, minutes int, actor *model.User) error {
	return nil
}
func (f *fakeFileService) SetPrice(ctx context.Context, fileID string, price decimal.Decimal, actor *model.User) error {
	return nil
}
func (f *fakeFileService) SetPaymentStatus(ctx context.Context, fileID, status string, actor *model.User) error {
	return nil
}
func (f *fakeFileService) SetAdminNotes(ctx context.Context, fileID, notes string, actor *model.User) error {
	return nil
}
func (f *fakeFileService) AttachModifiedFile(ctx context.Context, fileID, storageKey, fileName string, size int64, contentType string, actor *model.User) error {
	return nil
}
func (f *fakeFileService) Countdown(file *model.TuningFile) *service.CountdownInfo { return nil }
func (f *fakeFileService) AuditTrail(fileID string) ([]model.AuditLogEntry, error) {
	return nil, nil
}

// fakeUserRepo 是内存版的用户仓库。
type fakeUserRepo struct {
	users map[uint]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint]*model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(user *model.User) error { r.users[user.ID] = user; return nil }

func (r *fakeUserRepo) FindByUsername(username string) (*model.User, error) {
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) FindByEmail(email string) (*model.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) FindByID(userID uint) (*model.User, error) {
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) FindByTelegramChatID(chatID int64) (*model.User, error) {
	for _, u := range r.users {
		if u.TelegramChatID != nil && *u.TelegramChatID == chatID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) FindAdmins() ([]model.User, error) { return nil, nil }
func (r *fakeUserRepo) Update(user *model.User) error     { r.users[user.ID] = user; return nil }

func (r *fakeUserRepo) LinkTelegram(userID uint, chatID int64, tgUsername string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	u.TelegramChatID = &chatID
	u.TelegramUsername = &tgUsername
	u.TelegramLinkedAt = &now
	return nil
}

func (r *fakeUserRepo) UnlinkTelegram(userID uint) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.TelegramChatID = nil
	u.TelegramUsername = nil
	u.TelegramLinkedAt = nil
	return nil
}

// newTestRouter 手工组装路由：处理逻辑不依赖出站 API 客户端。
func newTestRouter(fs *fakeFileService, userRepo *fakeUserRepo) *Router {
	return &Router{
		fileService: fs,
		userRepo:    userRepo,
		identities: map[Role]*Identity{
			RoleSuperAdmin: {Role: RoleSuperAdmin, cfg: config.BotIdentityConfig{AllowedChatIDs: []int64{100}}},
			RoleFileAdmin:  {Role: RoleFileAdmin, cfg: config.BotIdentityConfig{AllowedChatIDs: []int64{200}}},
			RoleCustomer:   {Role: RoleCustomer, cfg: config.BotIdentityConfig{}},
		},
	}
}

func TestProcessCallbackAuthorized(t *testing.T) {
	fileID := uuid.NewString()
	fs := &fakeFileService{file: &model.TuningFile{ID: fileID, FileName: "stage1.bin", Status: model.FileStatusReady}}
	r := newTestRouter(fs, newFakeUserRepo())

	reply := r.processCallback(context.Background(), r.identities[RoleFileAdmin], 200, 200,
		"file_admin_status_"+fileID+"_READY")

	if len(fs.calls) != 1 {
		t.Fatalf("状态变更调用数 = %d, want 1", len(fs.calls))
	}
	if fs.calls[0].fileID != fileID || fs.calls[0].status != "READY" {
		t.Errorf("调用参数错误: %+v", fs.calls[0])
	}
	if reply == "" {
		t.Error("授权操作缺少反馈文案")
	}
}

func TestProcessCallbackGroupChatUsesChatAllowlistAndFromActor(t *testing.T) {
	// 群聊场景：白名单里是群聊 ID，按钮由某个成员按下。
	// 授权按群聊 ID 通过，审计操作者按成员的用户 ID 解析。
	fileID := uuid.NewString()
	memberID := int64(3001)
	staff := &model.User{ID: 5, Username: "carol", Role: "ADMIN", TelegramChatID: &memberID}
	fs := &fakeFileService{file: &model.TuningFile{ID: fileID, FileName: "stage1.bin", Status: model.FileStatusReady}}
	r := newTestRouter(fs, newFakeUserRepo(staff))

	reply := r.processCallback(context.Background(), r.identities[RoleFileAdmin], 200, memberID,
		"file_admin_status_"+fileID+"_READY")

	if len(fs.calls) != 1 {
		t.Fatalf("群聊白名单内的回调未触发状态变更")
	}
	if fs.calls[0].actor == nil || fs.calls[0].actor.ID != 5 {
		t.Errorf("操作者未按成员用户 ID 解析: %+v", fs.calls[0].actor)
	}
	if reply == "" {
		t.Error("授权操作缺少反馈文案")
	}
}

func TestCallbackChatID(t *testing.T) {
	cq := &models.CallbackQuery{
		From:    models.User{ID: 3001},
		Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: -100200}}},
	}
	if got := callbackChatID(cq); got != -100200 {
		t.Errorf("可达消息: chatID = %d, want -100200", got)
	}

	cq.Message = models.MaybeInaccessibleMessage{
		InaccessibleMessage: &models.InaccessibleMessage{Chat: models.Chat{ID: -100300}},
	}
	if got := callbackChatID(cq); got != -100300 {
		t.Errorf("不可达消息: chatID = %d, want -100300", got)
	}

	cq.Message = models.MaybeInaccessibleMessage{}
	if got := callbackChatID(cq); got != 3001 {
		t.Errorf("消息缺失时退回发起人 ID: chatID = %d, want 3001", got)
	}
}

func TestProcessCallbackUnauthorizedChatIsSilent(t *testing.T) {
	fileID := uuid.NewString()
	fs := &fakeFileService{}
	r := newTestRouter(fs, newFakeUserRepo())

	// 聊天 ID 不在白名单：已确认，静默无操作
	reply := r.processCallback(context.Background(), r.identities[RoleFileAdmin], 999, 999,
		"file_admin_status_"+fileID+"_READY")

	if reply != "" {
		t.Errorf("未授权回调返回了文案: %q", reply)
	}
	if len(fs.calls) != 0 {
		t.Errorf("未授权回调触发了状态变更")
	}
}

func TestProcessCallbackCustomerIdentityIsSilent(t *testing.T) {
	fileID := uuid.NewString()
	fs := &fakeFileService{}
	r := newTestRouter(fs, newFakeUserRepo())

	// 客户身份不是员工侧，即使负载合法也不允许驱动状态机
	reply := r.processCallback(context.Background(), r.identities[RoleCustomer], 100, 100,
		"file_admin_status_"+fileID+"_READY")

	if reply != "" || len(fs.calls) != 0 {
		t.Errorf("客户身份触发了状态变更: reply=%q calls=%d", reply, len(fs.calls))
	}
}

func TestProcessCallbackCrossRouting(t *testing.T) {
	// 文档化的跨路由回退：超级管理员身份接受 file_admin 前缀的负载
	fileID := uuid.NewString()
	fs := &fakeFileService{file: &model.TuningFile{ID: fileID, FileName: "stage1.bin", Status: model.FileStatusPending}}
	r := newTestRouter(fs, newFakeUserRepo())

	reply := r.processCallback(context.Background(), r.identities[RoleSuperAdmin], 100, 100,
		"file_admin_status_"+fileID+"_PENDING")

	if len(fs.calls) != 1 {
		t.Fatalf("跨路由回调未触发状态变更")
	}
	if reply == "" {
		t.Error("跨路由回调缺少反馈文案")
	}
}

func TestProcessCallbackMalformed(t *testing.T) {
	fs := &fakeFileService{}
	r := newTestRouter(fs, newFakeUserRepo())

	for _, data := range []string{"", "garbage", "file_admin_status_notauuid_READY"} {
		reply := r.processCallback(context.Background(), r.identities[RoleFileAdmin], 200, 200, data)
		if reply != msgCallbackMalformed {
			t.Errorf("data=%q: reply=%q, want %q", data, reply, msgCallbackMalformed)
		}
	}
	if len(fs.calls) != 0 {
		t.Errorf("畸形负载触发了状态变更")
	}
}

func TestProcessCallbackFileNotFound(t *testing.T) {
	fs := &fakeFileService{err: service.ErrFileNotFound}
	r := newTestRouter(fs, newFakeUserRepo())

	reply := r.processCallback(context.Background(), r.identities[RoleFileAdmin], 200, 200,
		"file_admin_status_"+uuid.NewString()+"_READY")

	if reply != msgFileNotFound {
		t.Errorf("reply = %q, want %q", reply, msgFileNotFound)
	}
}

func TestResolveActor(t *testing.T) {
	chatID := int64(200)
	staff := &model.User{ID: 3, Username: "alice", Role: "ADMIN", TelegramChatID: &chatID}
	r := newTestRouter(&fakeFileService{}, newFakeUserRepo(staff))

	// 已关联：返回真实账号
	if actor := r.resolveActor(200); actor.ID != 3 {
		t.Errorf("actor = %+v, want alice", actor)
	}
	// 未关联：合成操作者，审计行仍可追溯到聊天 ID
	if actor := r.resolveActor(999); actor.Username != "telegram:999" {
		t.Errorf("合成操作者用户名 = %q", actor.Username)
	}
}

func TestProcessLink(t *testing.T) {
	customer := &model.User{ID: 7, Username: "bob", Email: "bob@example.com", Role: "USER"}
	repo := newFakeUserRepo(customer)
	r := newTestRouter(&fakeFileService{}, repo)

	t.Run("缺少邮箱", func(t *testing.T) {
		if reply := r.processLink(100, "bob_tg", ""); reply != msgLinkUsage {
			t.Errorf("reply = %q, want %q", reply, msgLinkUsage)
		}
	})

	t.Run("邮箱不存在", func(t *testing.T) {
		if reply := r.processLink(100, "bob_tg", "nobody@example.com"); reply != msgLinkNotFound {
			t.Errorf("reply = %q, want %q", reply, msgLinkNotFound)
		}
	})

	t.Run("关联成功", func(t *testing.T) {
		if reply := r.processLink(100, "bob_tg", "bob@example.com"); reply != msgLinkOK {
			t.Fatalf("reply = %q, want %q", reply, msgLinkOK)
		}
		u := repo.users[7]
		if u.TelegramChatID == nil || *u.TelegramChatID != 100 {
			t.Errorf("chatID 未写入: %+v", u)
		}
		if u.TelegramUsername == nil || *u.TelegramUsername != "bob_tg" {
			t.Errorf("tg 用户名未写入: %+v", u)
		}
		if u.TelegramLinkedAt == nil {
			t.Errorf("关联时间未写入")
		}
	})

	t.Run("同聊天重复关联刷新时间戳", func(t *testing.T) {
		before := *repo.users[7].TelegramLinkedAt
		time.Sleep(time.Millisecond)
		if reply := r.processLink(100, "bob_tg", "bob@example.com"); reply != msgLinkOK {
			t.Fatalf("reply = %q", reply)
		}
		if !repo.users[7].TelegramLinkedAt.After(before) {
			t.Errorf("重复关联未刷新时间戳")
		}
	})

	t.Run("已被他人占用", func(t *testing.T) {
		if reply := r.processLink(555, "eve_tg", "bob@example.com"); reply != msgLinkConflict {
			t.Errorf("reply = %q, want %q", reply, msgLinkConflict)
		}
		// 冲突不覆盖原有关联
		if *repo.users[7].TelegramChatID != 100 {
			t.Errorf("冲突覆盖了原关联")
		}
	})
}

func TestProcessUnlink(t *testing.T) {
	chatID := int64(100)
	customer := &model.User{ID: 7, Username: "bob", Email: "bob@example.com", Role: "USER", TelegramChatID: &chatID}
	repo := newFakeUserRepo(customer)
	r := newTestRouter(&fakeFileService{}, repo)

	t.Run("未关联", func(t *testing.T) {
		if reply := r.processUnlink(999); reply != msgUnlinkNotLinked {
			t.Errorf("reply = %q, want %q", reply, msgUnlinkNotLinked)
		}
	})

	t.Run("解除成功", func(t *testing.T) {
		if reply := r.processUnlink(100); reply != msgUnlinkOK {
			t.Fatalf("reply = %q, want %q", reply, msgUnlinkOK)
		}
		u := repo.users[7]
		if u.TelegramChatID != nil || u.TelegramUsername != nil || u.TelegramLinkedAt != nil {
			t.Errorf("关联字段未清空: %+v", u)
		}
	})
}
