package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLocalTimeJSONRoundTrip(t *testing.T) {
	src := LocalTime(time.Date(2026, 3, 15, 9, 30, 0, 0, time.Local))

	data, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	if string(data) != `"2026-03-15 09:30:00"` {
		t.Fatalf("序列化结果 = %s", data)
	}

	var dst LocalTime
	if err := json.Unmarshal(data, &dst); err != nil {
		t.Fatalf("反序列化失败: %v", err)
	}
	if !time.Time(dst).Equal(time.Time(src)) {
		t.Errorf("往返后时间不一致: %v != %v", time.Time(dst), time.Time(src))
	}
}

func TestLocalTimeUnmarshalTolerant(t *testing.T) {
	var lt LocalTime

	// null 与空串保持零值，不报错
	for _, data := range []string{`null`, `""`} {
		if err := json.Unmarshal([]byte(data), &lt); err != nil {
			t.Errorf("data=%s: err = %v", data, err)
		}
	}

	if err := json.Unmarshal([]byte(`"not-a-time"`), &lt); err == nil {
		t.Error("非法时间串未报错")
	}
}
