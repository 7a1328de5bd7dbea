// Package notify 把核心发出的领域信号广播给在线的后台客户端。
// 信号是“发出即忘”的：没有客户端在线就直接丢弃，核心不感知投递结果。
package notify

import (
	"encoding/json"
	"net/http"
	"sync"

	"hospital_backoffice_go/internal/service"
	"hospital_backoffice_go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// envelope 是推送给客户端的消息结构：事件名 + 负载。
type envelope struct {
	Event string        `json:"event"`
	Data  service.Event `json:"data"`
}

// Hub 维护在线的 websocket 连接，并实现 service.EventSink。
// Publish 串行广播给所有连接；写失败的连接视为已断开，就地摘除。
type Hub struct {
	mu       sync.Mutex
	conns    map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 后台前端与 API 不同源，来源校验交给认证中间件
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve 是 gin 处理函数：把请求升级为 websocket 连接并登记到 Hub。
// 连接只用于下行推送，上行数据全部丢弃。
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("notify: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	// 读循环只为感知断开；客户端不应上行业务数据
	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish 实现 service.EventSink。
func (h *Hub) Publish(event service.Event) {
	payload, err := json.Marshal(envelope{Event: event.EventName(), Data: event})
	if err != nil {
		log.Errorf("notify: failed to marshal event %s: %v", event.EventName(), err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			_ = conn.Close()
			delete(h.conns, conn)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_ = conn.Close()
	delete(h.conns, conn)
}
