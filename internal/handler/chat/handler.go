package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	chatService "github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreateSession)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Delete("/", h.handleCloseSession)
		r.Get("/messages", h.handleListMessages)
		r.Post("/messages", h.handleSendMessage)
		r.Delete("/messages", h.handleClearMessages)
		r.Put("/messages/{messageID}", h.handleEditMessage)
		r.Delete("/messages/{messageID}", h.handleDeleteMessage)
		r.Post("/messages/{messageID}/upvote", h.handleUpvote)
		r.Post("/messages/{messageID}/downvote", h.handleDownvote)
	})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, session)
}

// handleCloseSession 关闭会话
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.CloseSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListMessages 返回当前消息快照
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.chatSvc.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	h.respondSnapshot(w, snapshot, err)
}

// handleSendMessage 保存用户消息并触发机器人回复
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Message string `json:"message"`
		ReplyTo *int   `json:"replyTo"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.chatSvc.SendMessage(r.Context(), chi.URLParam(r, "sessionID"), payload.Message, payload.ReplyTo)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, entry)
}

// handleClearMessages 清空会话
func (h *Handler) handleClearMessages(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.chatSvc.Clear(r.Context(), chi.URLParam(r, "sessionID"))
	h.respondSnapshot(w, snapshot, err)
}

// handleEditMessage 编辑消息内容
func (h *Handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snapshot, err := h.chatSvc.EditMessage(r.Context(), chi.URLParam(r, "sessionID"), id, payload.Message)
	h.respondSnapshot(w, snapshot, err)
}

// handleDeleteMessage 删除消息
func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.chatSvc.DeleteMessage(r.Context(), chi.URLParam(r, "sessionID"), id)
	h.respondSnapshot(w, snapshot, err)
}

// handleUpvote 点赞
func (h *Handler) handleUpvote(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.chatSvc.Upvote(r.Context(), chi.URLParam(r, "sessionID"), id)
	h.respondSnapshot(w, snapshot, err)
}

// handleDownvote 点踩
func (h *Handler) handleDownvote(w http.ResponseWriter, r *http.Request) {
	id, ok := messageID(w, r)
	if !ok {
		return
	}
	snapshot, err := h.chatSvc.Downvote(r.Context(), chi.URLParam(r, "sessionID"), id)
	h.respondSnapshot(w, snapshot, err)
}

func (h *Handler) respondSnapshot(w http.ResponseWriter, snapshot []chat.Entry, err error) {
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, chatService.ErrSessionNotFound.Error())
	case errors.Is(err, chatService.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatService.ErrServiceClosed):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("chat request failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}

func messageID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "messageID"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid message id")
		return 0, false
	}
	return id, true
}
