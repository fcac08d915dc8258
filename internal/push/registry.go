// Package push 实现了在线推送注册表：每个已认证用户至多持有一条
// 长连接（SSE 或 WebSocket），由各自的 handler goroutine 消费发送队列。
// 注册表是进程级内存状态，不做持久化；进程重启或客户端重连后
// 由客户端重新建立连接。
package push

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"tuneflow-go/internal/model"
	"tuneflow-go/pkg/log"
)

// ClientClass 标识连接来自哪类客户端，在建立连接的请求中声明。
type ClientClass string

const (
	// ClientClassWeb 浏览器 EventSource 客户端。中间代理会超时空闲流，
	// 因此这一类连接需要服务端定期发送心跳帧。
	ClientClassWeb ClientClass = "web"
	// ClientClassApp 桌面/移动客户端，自带传输层保活，不需要心跳。
	ClientClassApp ClientClass = "app"
)

// 推送帧类型。
const (
	FrameTypeConnected = "connected"
	FrameTypeHeartbeat = "heartbeat"
)

// Frame 是写入推送流的统一帧结构。
type Frame struct {
	Type      string          `json:"type"`
	Data      interface{}     `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Date      model.LocalTime `json:"date"`
}

// NewFrame 构造一个带当前时间戳的推送帧。
func NewFrame(frameType string, data interface{}) Frame {
	now := model.NowLocal()
	return Frame{
		Type:      frameType,
		Data:      data,
		Timestamp: time.Time(now).UnixMilli(),
		Date:      now,
	}
}

// Connection 表示注册表中的一条活动连接。
// handler goroutine 通过 Frames() 消费序列化好的帧并写入传输层，
// 通过 Done() 感知连接被替换或被清扫。
type Connection struct {
	userID     uint
	class      ClientClass
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.Mutex
	lastActive time.Time
}

// Frames 返回待写出的帧队列。
func (c *Connection) Frames() <-chan []byte { return c.send }

// Done 在连接被关闭（替换、清扫或显式注销）时关闭。
func (c *Connection) Done() <-chan struct{} { return c.done }

// Class 返回连接的客户端类别。
func (c *Connection) Class() ClientClass { return c.class }

// close 幂等地关闭 done 通道。
func (c *Connection) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// touch 刷新最后活动时间。
func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActive = time.Now()
	c.mu.Unlock()
}

// idleSince 返回最后活动时间。
func (c *Connection) idleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Registry 维护 userID → 连接 的映射。map 操作由互斥锁串行化，
// 单条连接的写出由其 send 通道天然串行化，推送不会因为某个
// 慢客户端而阻塞其它用户。
type Registry struct {
	mu    sync.RWMutex
	conns map[uint]*Connection

	staleAfter     time.Duration
	heartbeatEvery time.Duration
	sendBuffer     int
}

// NewRegistry 创建一个推送注册表。
// staleAfter 为连接的空闲清扫阈值，heartbeatEvery 为 web 类连接的心跳间隔。
func NewRegistry(staleAfter, heartbeatEvery time.Duration) *Registry {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	if heartbeatEvery <= 0 {
		heartbeatEvery = 30 * time.Second
	}
	return &Registry{
		conns:          make(map[uint]*Connection),
		staleAfter:     staleAfter,
		heartbeatEvery: heartbeatEvery,
		sendBuffer:     16,
	}
}

// Register 为用户登记一条新连接。同一用户已有连接时先关闭旧连接再替换，
// 避免浏览器重连后留下重复/幽灵流。
func (r *Registry) Register(userID uint, class ClientClass) *Connection {
	conn := &Connection{
		userID:     userID,
		class:      class,
		send:       make(chan []byte, r.sendBuffer),
		done:       make(chan struct{}),
		lastActive: time.Now(),
	}

	r.mu.Lock()
	if old, ok := r.conns[userID]; ok {
		old.close()
	}
	r.conns[userID] = conn
	r.mu.Unlock()

	log.Infof("推送连接已注册, userID=%d, class=%s", userID, class)
	return conn
}

// Unregister 移除用户的连接。仅当传入的连接仍是当前连接时才移除，
// 防止晚到的断开回调误删替换后的新连接。
func (r *Registry) Unregister(userID uint, conn *Connection) {
	r.mu.Lock()
	if cur, ok := r.conns[userID]; ok && cur == conn {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
	conn.close()
}

// Touch 刷新用户连接的最后活动时间（由传输层在收到客户端活动时调用）。
func (r *Registry) Touch(userID uint) {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	if ok {
		conn.touch()
	}
}

// Push 向指定用户推送一帧。返回 false 表示未送达：
// 用户没有打开的连接，或连接的发送队列已满（视为死连接并移除）。
// 未送达不是错误，调用方按 best-effort 处理。
func (r *Registry) Push(userID uint, frame Frame) bool {
	r.mu.RLock()
	conn, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return r.deliver(conn, frame)
}

// PushAll 向所有打开的连接推送一帧，返回送达的连接数。
func (r *Registry) PushAll(frame Frame) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if r.deliver(c, frame) {
			delivered++
		}
	}
	return delivered
}

// deliver 序列化帧并投递到连接的发送队列。队列满说明消费端早已停写，
// 按写失败处理：移除连接并报告未送达。
func (r *Registry) deliver(conn *Connection, frame Frame) bool {
	payload, err := json.Marshal(frame)
	if err != nil {
		log.Errorf("推送帧序列化失败, userID=%d, type=%s, err=%v", conn.userID, frame.Type, err)
		return false
	}

	select {
	case conn.send <- payload:
		conn.touch()
		return true
	case <-conn.done:
		return false
	default:
		log.Warnf("推送队列已满，丢弃连接, userID=%d, class=%s", conn.userID, conn.class)
		r.Unregister(conn.userID, conn)
		return false
	}
}

// Size 返回当前打开的连接数。
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Run 启动周期性清扫和心跳循环，直到 ctx 结束。
// 清扫移除空闲超过 staleAfter 的连接，限制悄悄消失的客户端造成的内存增长；
// 心跳只发给 web 类连接。
func (r *Registry) Run(ctx context.Context) {
	sweep := time.NewTicker(r.staleAfter / 2)
	heartbeat := time.NewTicker(r.heartbeatEvery)
	defer sweep.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			r.sweepStale()
		case <-heartbeat.C:
			r.sendHeartbeats()
		}
	}
}

// sweepStale 清除空闲超时的连接。
func (r *Registry) sweepStale() {
	cutoff := time.Now().Add(-r.staleAfter)

	r.mu.Lock()
	var stale []*Connection
	for userID, conn := range r.conns {
		if conn.idleSince().Before(cutoff) {
			delete(r.conns, userID)
			stale = append(stale, conn)
		}
	}
	r.mu.Unlock()

	for _, conn := range stale {
		conn.close()
		log.Infof("清扫空闲推送连接, userID=%d, class=%s", conn.userID, conn.class)
	}
}

// sendHeartbeats 向 web 类连接发送心跳帧，防止中间代理超时断流。
func (r *Registry) sendHeartbeats() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		if c.class == ClientClassWeb {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	frame := NewFrame(FrameTypeHeartbeat, nil)
	for _, c := range conns {
		r.deliver(c, frame)
	}
}
