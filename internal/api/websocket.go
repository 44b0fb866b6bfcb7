// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Corphon/HeartSyncMCP/internal/services"
	"github.com/Corphon/HeartSyncMCP/internal/utils"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 单设备本地服务，放开来源检查
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
)

// wsClient 表示一个已连接的UI客户端
type wsClient struct {
	conn        *websocket.Conn
	characterID string
	send        chan []byte
}

// EventHub 管理所有 WebSocket 连接并按角色广播回合事件
// Abandoning a screen does not cancel an in-flight turn; the eventual
// result is delivered here if the client is still connected, or dropped
// if it is not.
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]map[*wsClient]bool // characterID -> clients
}

// NewEventHub 创建事件中心
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]map[*wsClient]bool),
	}
}

func (h *EventHub) register(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.characterID] == nil {
		h.clients[client.characterID] = make(map[*wsClient]bool)
	}
	h.clients[client.characterID][client] = true
}

func (h *EventHub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[client.characterID]; exists {
		if clients[client] {
			delete(clients, client)
			close(client.send)
			if len(clients) == 0 {
				delete(h.clients, client.characterID)
			}
		}
	}
}

// Broadcast 向订阅了指定角色的所有客户端推送事件
func (h *EventHub) Broadcast(event services.TurnEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		utils.GetLogger().Error("failed to serialize turn event", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[event.CharacterID] {
		select {
		case client.send <- data:
		default:
			// 慢客户端直接丢消息，不阻塞广播
		}
	}
}

// serveClient 处理一个客户端连接的读写
func (h *EventHub) serveClient(client *wsClient) {
	go h.writePump(client)
	h.readPump(client)
}

func (h *EventHub) readPump(client *wsClient) {
	defer func() {
		h.unregister(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// 客户端不发送业务消息；读循环只消费控制帧并检测断开
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
