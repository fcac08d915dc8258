package telegram

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParseCallback(t *testing.T) {
	fileID := uuid.NewString()

	tests := []struct {
		name string
		data string
		want CallbackData
	}{
		{
			name: "文件管理前缀",
			data: "file_admin_status_" + fileID + "_READY",
			want: CallbackData{Scope: "file_admin", Subject: "status", FileID: fileID, Status: "READY"},
		},
		{
			name: "超级管理前缀",
			data: "super_admin_status_" + fileID + "_PENDING",
			want: CallbackData{Scope: "super_admin", Subject: "status", FileID: fileID, Status: "PENDING"},
		},
		{
			name: "单段前缀",
			data: "admin_status_" + fileID + "_RECEIVED",
			want: CallbackData{Scope: "admin", Subject: "status", FileID: fileID, Status: "RECEIVED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseCallback(tt.data)
			if !ok {
				t.Fatalf("ParseCallback(%q) 解析失败", tt.data)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestParseCallbackRejectsMalformed(t *testing.T) {
	fileID := uuid.NewString()

	tests := []struct {
		name string
		data string
	}{
		{"空串", ""},
		{"段数不足", "status_" + fileID},
		{"文件ID不是UUID", "file_admin_status_notauuid_READY"},
		{"纯文本", "hello world"},
		// 文件 ID 位置被其它内容占据
		{"缺少文件ID", "file_admin_status_READY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, ok := ParseCallback(tt.data); ok {
				t.Errorf("ParseCallback(%q) = %+v, 期望解析失败", tt.data, got)
			}
		})
	}
}

func TestCallbackEncodeRoundTrip(t *testing.T) {
	orig := CallbackData{Scope: "file_admin", Subject: "status", FileID: uuid.NewString(), Status: "READY"}

	got, ok := ParseCallback(orig.Encode())
	if !ok {
		t.Fatalf("回编码负载解析失败: %q", orig.Encode())
	}
	if *got != orig {
		t.Errorf("round trip: got %+v, want %+v", *got, orig)
	}
}

func TestIsStatusChange(t *testing.T) {
	fileID := uuid.NewString()

	cb, ok := ParseCallback("file_admin_status_" + fileID + "_READY")
	if !ok || !cb.IsStatusChange() {
		t.Errorf("status 负载未被识别为状态变更")
	}

	// 防御性接受任意 "<scope>_status" 形态，但其它 subject 不是状态变更
	other, ok := ParseCallback("file_admin_price_" + fileID + "_READY")
	if !ok {
		t.Fatal("负载解析失败")
	}
	if other.IsStatusChange() {
		t.Errorf("price 负载被误判为状态变更")
	}
}

func TestStatusKeyboard(t *testing.T) {
	fileID := uuid.NewString()
	kb := statusKeyboard(fileID)

	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 3 {
		t.Fatalf("键盘布局错误: %+v", kb.InlineKeyboard)
	}
	// 每个按钮的负载都必须能被回调解析器还原
	for _, btn := range kb.InlineKeyboard[0] {
		cb, ok := ParseCallback(btn.CallbackData)
		if !ok {
			t.Errorf("按钮负载无法解析: %q", btn.CallbackData)
			continue
		}
		if cb.FileID != fileID || !cb.IsStatusChange() || !strings.HasPrefix(btn.CallbackData, "file_admin_") {
			t.Errorf("按钮负载错误: %+v", cb)
		}
	}
}
