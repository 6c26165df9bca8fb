package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chat/backend/internal/service/chat"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 54 * time.Second
)

// WebSocketHandler WebSocket命令通道处理器
type WebSocketHandler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(chatSvc *chatservice.Service, logger *zap.Logger) *WebSocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHandler{
		chatSvc: chatSvc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SendPayload 发送消息
type SendPayload struct {
	Message string `json:"message"`
	ReplyTo *int   `json:"replyTo,omitempty"`
}

// TargetPayload 针对单条消息的命令
type TargetPayload struct {
	ID      int    `json:"id"`
	Message string `json:"message,omitempty"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// connWriter serializes writes; gorilla connections allow one writer.
type connWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connWriter) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *connWriter) writeControl(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(messageType, data, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	store, err := h.chatSvc.Store(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("session", sessionID))
	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, unsubscribe := store.Subscribe()
	defer unsubscribe()

	writer := &connWriter{conn: conn}
	if err := writer.writeJSON(snapshotMessage(sessionID, store.Snapshot())); err != nil {
		logger.Warn("write initial snapshot failed", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, writer, sessionID, updates)
	}()
	defer wg.Wait()
	defer cancel()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var msg inboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", zap.Error(err))
			}
			logger.Info("websocket disconnected")
			return
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			h.sendError(writer, "session mismatch")
			continue
		}

		if err := h.applyCommand(ctx, sessionID, msg); err != nil {
			h.sendError(writer, err.Error())
		}
	}
}

// writeLoop forwards snapshots and keeps the connection alive. When the
// session closes it tells the client and closes the connection.
func (h *WebSocketHandler) writeLoop(ctx context.Context, writer *connWriter, sessionID string, updates <-chan []chat.Entry) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-updates:
			if !ok {
				_ = writer.writeJSON(outgoingMessage{Type: "closed", SessionID: sessionID, Timestamp: time.Now().Unix()})
				_ = writer.writeControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := writer.writeJSON(snapshotMessage(sessionID, snapshot)); err != nil {
				h.logger.Warn("write snapshot failed", zap.String("session", sessionID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := writer.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// applyCommand maps one inbound frame to a service call. Resulting state
// reaches the client through the subscription, not as a direct reply.
func (h *WebSocketHandler) applyCommand(ctx context.Context, sessionID string, msg inboundMessage) error {
	var err error
	switch msg.Type {
	case "send":
		var p SendPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err = h.chatSvc.SendMessage(ctx, sessionID, p.Message, p.ReplyTo)
	case "edit":
		var p TargetPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		_, err = h.chatSvc.EditMessage(ctx, sessionID, p.ID, p.Message)
	case "delete", "upvote", "downvote":
		var p TargetPayload
		if err := decode(msg.Data, &p); err != nil {
			return err
		}
		switch msg.Type {
		case "delete":
			_, err = h.chatSvc.DeleteMessage(ctx, sessionID, p.ID)
		case "upvote":
			_, err = h.chatSvc.Upvote(ctx, sessionID, p.ID)
		default:
			_, err = h.chatSvc.Downvote(ctx, sessionID, p.ID)
		}
	case "clear":
		_, err = h.chatSvc.Clear(ctx, sessionID)
	default:
		return fmt.Errorf("unsupported message type: %s", msg.Type)
	}

	if errors.Is(err, chatservice.ErrSessionNotFound) {
		return chatservice.ErrSessionNotFound
	}
	return err
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New("invalid payload")
	}
	return nil
}

func snapshotMessage(sessionID string, snapshot []chat.Entry) outgoingMessage {
	return outgoingMessage{
		Type:      "snapshot",
		SessionID: sessionID,
		Data:      snapshot,
		Timestamp: time.Now().Unix(),
	}
}

func (h *WebSocketHandler) sendError(writer *connWriter, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := writer.writeJSON(msg); err != nil {
		h.logger.Warn("write error failed", zap.Error(err))
	}
}
