package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/serial-scope/internal/plot"
	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心
// 持有所有浏览器端渲染客户端，并把每个采集周期的帧广播给它们
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan *Message

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 绘图控制接口（由上层注入）
	controller Controller

	// 图表元信息，客户端连接时下发，配置热更新时可替换
	metadata   Metadata
	metadataMu sync.RWMutex

	// 日志
	logger *zap.Logger
}

// Controller 客户端控制消息的处理接口
type Controller interface {
	Pause()
	Resume()
	SetBounds(bounds plot.Bounds) error
	Snapshot() *plot.Frame
}

// Metadata 图表元信息
type Metadata struct {
	Title        string        `json:"title"`
	YLabel       string        `json:"y_label"`
	Capacity     int           `json:"capacity"`
	TickInterval time.Duration `json:"tick_interval_ms"`
	SerialPort   string        `json:"serial_port"`
}

// Message WebSocket消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// MessageType 消息类型
const (
	// 系统消息
	MessageTypeConnected = "connected"
	MessageTypeMetadata  = "metadata"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"

	// 绘图消息
	MessageTypeFrame  = "frame"
	MessageTypePause  = "pause"
	MessageTypeResume = "resume"
	MessageTypeBounds = "bounds"
)

// NewHub 创建Hub
func NewHub(controller Controller, metadata Metadata, logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		controller: controller,
		metadata:   metadata,
		logger:     logger,
	}
}

// SetController 注入绘图控制接口
// Hub与Plotter互相引用（Hub广播帧、Plotter接收控制），因此在构造后注入
func (h *Hub) SetController(controller Controller) {
	h.controller = controller
}

// SetMetadata 更新图表元信息
// 推送给已连接的客户端，之后注册的客户端也拿到新值
func (h *Hub) SetMetadata(metadata Metadata) {
	h.metadataMu.Lock()
	h.metadata = metadata
	h.metadataMu.Unlock()

	data, err := json.Marshal(metadata)
	if err != nil {
		h.logger.Error("序列化元信息失败", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeMetadata,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("广播通道已满，丢弃元信息更新")
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	// 启动心跳检测
	go h.runHeartbeat()

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID))

	// 下发元信息，客户端据此初始化图表
	h.metadataMu.RLock()
	metaData, _ := json.Marshal(h.metadata)
	h.metadataMu.RUnlock()
	h.SendToClient(client.ID, &Message{
		Type:      MessageTypeMetadata,
		Data:      metaData,
		Timestamp: time.Now().Unix(),
	})

	// 下发当前窗口快照，避免等到下一个周期才有画面
	if h.controller != nil {
		frameData, _ := json.Marshal(h.controller.Snapshot())
		h.SendToClient(client.ID, &Message{
			Type:      MessageTypeFrame,
			Data:      frameData,
			Timestamp: time.Now().Unix(),
		})
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息
func (h *Hub) broadcastMessage(message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("序列化消息失败", zap.Error(err))
		return
	}

	h.clientsMu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			// 发送缓冲区满，丢弃该帧（下个周期会有新帧）
			h.logger.Warn("客户端发送缓冲区满",
				zap.String("client_id", client.ID))
		}
	}
	h.clientsMu.RUnlock()
}

// SendToClient 发送消息给指定客户端
func (h *Hub) SendToClient(clientID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMu.RLock()
	client, ok := h.clients[clientID]
	h.clientsMu.RUnlock()

	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// BroadcastFrame 广播一帧窗口快照（实现plot.Broadcaster）
func (h *Hub) BroadcastFrame(frame *plot.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("序列化帧失败", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeFrame,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	select {
	case h.broadcast <- msg:
	default:
		// 广播通道拥塞时丢帧
		h.logger.Warn("广播通道已满，丢弃帧")
	}
}

// GetOnlineCount 获取在线客户端数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// runHeartbeat 运行心跳检测
func (h *Hub) runHeartbeat() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		<-ticker.C
		ping := &Message{
			Type:      MessageTypePing,
			Timestamp: time.Now().Unix(),
		}
		h.broadcast <- ping
	}
}

// Broadcast 广播消息（公开方法）
func (h *Hub) Broadcast(message *Message) {
	h.broadcast <- message
}

// Register 注册客户端（公开方法）
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销客户端（公开方法）
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}
