// Package ws 把订单和套餐事件推送到用户的浏览器连接
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qhuy1504/smart-tro-server/internal/pkg/notify"
)

const writeWait = 10 * time.Second

// 推送给前端的事件，order.created 由下单接口直接返回，不推送
var userFacing = map[notify.EventType]bool{
	notify.EventOrderPaid:        true,
	notify.EventOrderCancelled:   true,
	notify.EventPaymentFailed:    true,
	notify.EventPackageActivated: true,
	notify.EventPackageExpired:   true,
	notify.EventRoleChanged:      true,
}

type Hub struct {
	// 每个用户可以有多个连接（多标签页、支付页与订单页同时打开）
	clients map[int64]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
}

type Client struct {
	UserID int64
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，防止并发写入
}

// Notification 前端收到的消息
type Notification struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	PlanName   string    `json:"plan_name,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}
	h.logger.Debug("ws connected", "user_id", client.UserID, "user_conns", len(h.clients[client.UserID]))
}

// Unregister 可重复调用
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	h.logger.Debug("ws disconnected", "user_id", client.UserID)
}

func (h *Hub) connections(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[userID]
	out := make([]*Client, 0, len(conns))
	for c := range conns {
		out = append(out, c)
	}
	return out
}

// Send 向用户的所有连接推送，返回写入成功的连接数；写失败的连接会被关闭并移除
func (h *Hub) Send(userID int64, n *Notification) int {
	clients := h.connections(userID)
	if len(clients) == 0 {
		return 0
	}
	data, err := json.Marshal(n)
	if err != nil {
		h.logger.Error("ws marshal failed", "user_id", userID, "error", err)
		return 0
	}

	sent := 0
	for _, c := range clients {
		c.mu.Lock()
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			h.logger.Warn("ws write failed, dropping connection", "user_id", userID, "error", err)
			h.Unregister(c)
			c.Conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// Deliver 订阅回调：只推送用户关心的事件
func (h *Hub) Deliver(event *notify.Event) {
	if event == nil || event.UserID == 0 || !userFacing[event.Type] {
		return
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	n := h.Send(event.UserID, &Notification{
		Type:       string(event.Type),
		OrderID:    event.OrderID,
		InstanceID: event.InstanceID,
		PlanName:   event.PlanName,
		Amount:     event.Amount,
		Message:    event.Message,
		At:         at,
	})
	if n > 0 {
		h.logger.Debug("ws event delivered", "type", event.Type, "user_id", event.UserID, "conns", n)
	}
}

// IsOnline 检查用户是否在线
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount 在线连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
